package cache

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/pkg/domain"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	return map[string]KV{
		"memory": NewMemoryKV(),
		"bolt":   bolt,
		"redis":  NewRedisKV(mr.Addr(), "", 0),
	}
}

func TestStoreRoundTripAcrossBackends(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(kv)
			defer s.Close()

			_, ok, err := s.Session()
			require.NoError(t, err)
			assert.False(t, ok)

			sess := domain.Session{Email: "a@x.io", Token: "t", Role: domain.RoleAdmin, UserID: "1"}
			require.NoError(t, s.SetSession(sess))
			got, ok, err := s.Session()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sess, got)

			reviewers := map[int][]domain.User{2: {{UserID: "7", Username: "bob"}}}
			require.NoError(t, s.SetAssignLabels("d1", []string{"", "", "Assigned to bob"}))
			require.NoError(t, s.SetSelectedReviewers("d1", reviewers))
			require.NoError(t, s.SetAIAnalysis("d1", json.RawMessage(`{"score":3}`)))

			labels, ok, err := s.AssignLabels("d1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "Assigned to bob", labels[2])

			gotReviewers, _, err := s.SelectedReviewers("d1")
			require.NoError(t, err)
			assert.Equal(t, reviewers, gotReviewers)

			require.NoError(t, s.ForgetDocument("d1"))
			_, ok, err = s.AssignLabels("d1")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = s.AIAnalysis("d1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.ClearSession())
			_, ok, err = s.Session()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreTreatsOtherSchemaVersionAsMiss(t *testing.T) {
	kv := NewMemoryKV()
	s := New(kv)
	require.NoError(t, kv.Set("v1:session", []byte(`{"v":0,"data":{"token":"old"}}`)))

	_, ok, err := s.Session()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set("v1:session", []byte(`not json`)))
	_, ok, err = s.Session()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreKeysAreVersionedAndScoped(t *testing.T) {
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	s := New(bolt)
	defer s.Close()

	require.NoError(t, s.SetSubmissionStatuses("a@x.io", map[string]domain.SubmissionStatus{"q1": domain.StatusSubmitted}))
	require.NoError(t, s.SetAssignedAnswers("a@x.io", map[string]string{"q1": "yes"}))

	keys, err := bolt.Keys("v1:")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1:assignedQuestions:a@x.io", "v1:submissionStatus:a@x.io"}, keys)
}

func TestRedisKVHonorsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	kv := NewRedisKV(mr.Addr(), "", time.Minute)
	require.NoError(t, kv.Set("k", []byte("v")))
	assert.True(t, mr.Exists("rfpdesk:k"))
	mr.FastForward(61 * time.Second)
	_, err := kv.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}
