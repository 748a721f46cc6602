package assignment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/internal/cache"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

type fakeAPI struct {
	mu          sync.Mutex
	records     []domain.Assignment
	assignErr   error
	assignCalls int
	removed     [][2]string
	notified    chan []string
	countCalls  int
}

func (f *fakeAPI) AssignedReviewers(ctx context.Context, docID string) ([]domain.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Assignment(nil), f.records...), nil
}

func (f *fakeAPI) AssignReviewers(ctx context.Context, docID, questionID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls++
	return f.assignErr
}

func (f *fakeAPI) RemoveReviewer(ctx context.Context, questionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, [2]string{questionID, userID})
	return nil
}

func (f *fakeAPI) NotifyAssignment(ctx context.Context, questionID string, userIDs []string) error {
	if f.notified != nil {
		f.notified <- userIDs
	}
	return errors.New("mail relay down")
}

func (f *fakeAPI) DocumentCounts(ctx context.Context, docID string) (apiclient.DocumentCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	return apiclient.DocumentCounts{Assigned: 1, Unassigned: 2, Total: 3}, nil
}

var (
	bob   = domain.User{UserID: "7", Username: "bob"}
	amy   = domain.User{UserID: "8", Username: "amy"}
	carl  = domain.User{UserID: "9", Username: "carl"}
	users = []domain.User{bob, amy, carl}
	qs    = []domain.Question{{ID: "q1"}, {ID: "q2"}, {ID: "q3"}}
)

func newSync(t *testing.T, api *fakeAPI) (*Synchronizer, *cache.Store) {
	t.Helper()
	store := cache.New(cache.NewMemoryKV())
	return NewSynchronizer(api, store, time.Second), store
}

func TestAssignToUnassignedQuestion(t *testing.T) {
	api := &fakeAPI{notified: make(chan []string, 1)}
	s, store := newSync(t, api)
	ctx := context.Background()

	_, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)
	require.NoError(t, s.Assign(ctx, "d1", 2, []domain.User{bob}))
	s.Wait()

	view, err := s.View("d1")
	require.NoError(t, err)
	assert.Equal(t, "Assigned to bob", view.Labels[2])
	assert.Equal(t, []domain.User{bob}, view.Reviewers[2])
	assert.Equal(t, 3, view.Counts.Total)
	assert.Equal(t, []string{"7"}, <-api.notified)

	labels, ok, err := store.AssignLabels("d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Assigned to bob", labels[2])
}

func TestAssignMergesWithExisting(t *testing.T) {
	api := &fakeAPI{records: []domain.Assignment{{QuestionID: "q1", Username: "bob", UserID: "7"}}}
	s, _ := newSync(t, api)
	ctx := context.Background()

	view, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)
	assert.Equal(t, "Assigned to bob", view.Labels[0])

	require.NoError(t, s.Assign(ctx, "d1", 0, []domain.User{amy, bob}))
	s.Wait()
	view, _ = s.View("d1")
	assert.Equal(t, "Assigned to bob, amy", view.Labels[0])
	assert.Equal(t, []domain.User{bob, amy}, view.Reviewers[0])
	assert.Equal(t, []string{"bob", "amy"}, ParseLabel(view.Labels[0]))
}

func TestAssignFailureWritesErrorLabel(t *testing.T) {
	api := &fakeAPI{assignErr: &apiclient.APIError{Status: 500, Message: "db down"}}
	s, _ := newSync(t, api)
	ctx := context.Background()
	_, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)

	err = s.Assign(ctx, "d1", 1, []domain.User{amy})
	require.Error(t, err)
	view, _ := s.View("d1")
	assert.Equal(t, "Error: db down", view.Labels[1])
	assert.Empty(t, view.Reviewers[1])
}

func TestAssignAfterFailureKeepsEarlierNames(t *testing.T) {
	api := &fakeAPI{records: []domain.Assignment{{QuestionID: "q1", Username: "bob", UserID: "7"}}}
	s, _ := newSync(t, api)
	ctx := context.Background()
	_, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)

	api.mu.Lock()
	api.assignErr = &apiclient.APIError{Status: 500, Message: "db down"}
	api.mu.Unlock()
	require.Error(t, s.Assign(ctx, "d1", 0, []domain.User{amy}))
	view, _ := s.View("d1")
	assert.Equal(t, "Error: db down", view.Labels[0])

	api.mu.Lock()
	api.assignErr = nil
	api.mu.Unlock()
	require.NoError(t, s.Assign(ctx, "d1", 0, []domain.User{carl}))
	s.Wait()

	view, _ = s.View("d1")
	assert.Equal(t, "Assigned to bob, carl", view.Labels[0])
	assert.Equal(t, []domain.User{bob, carl}, view.Reviewers[0])
	assert.Equal(t, []string{"bob", "carl"}, ParseLabel(view.Labels[0]))
}

func TestAssignGuards(t *testing.T) {
	api := &fakeAPI{}
	s, _ := newSync(t, api)
	ctx := context.Background()

	assert.ErrorIs(t, s.Assign(ctx, "nope", 0, []domain.User{bob}), ErrUnknownDocument)
	_, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)
	assert.NoError(t, s.Assign(ctx, "d1", 0, nil))
	assert.ErrorIs(t, s.Assign(ctx, "d1", 5, []domain.User{bob}), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Assign(ctx, "d1", 0, []domain.User{{UserID: "1", Username: "smith, j"}}), ErrInvalidUsername)
	assert.Equal(t, 0, api.assignCalls)
}

func TestUnassignRemovesFromBothViews(t *testing.T) {
	api := &fakeAPI{records: []domain.Assignment{
		{QuestionID: "q2", Username: "bob", UserID: "7"},
		{QuestionID: "q2", Username: "amy", UserID: "8"},
	}}
	s, store := newSync(t, api)
	ctx := context.Background()
	_, err := s.Load(ctx, "d1", qs, users)
	require.NoError(t, err)

	require.NoError(t, s.Unassign(ctx, "d1", 1, bob))
	view, _ := s.View("d1")
	assert.Equal(t, "Assigned to amy", view.Labels[1])
	assert.Equal(t, []domain.User{amy}, view.Reviewers[1])
	assert.Equal(t, [][2]string{{"q2", "7"}}, api.removed)

	require.NoError(t, s.Unassign(ctx, "d1", 1, amy))
	view, _ = s.View("d1")
	assert.Equal(t, "", view.Labels[1])
	assert.NotContains(t, view.Reviewers, 1)

	reviewers, _, err := store.SelectedReviewers("d1")
	require.NoError(t, err)
	assert.NotContains(t, reviewers, 1)
}

func TestLoadKeepsCachedViewWhenFetchFails(t *testing.T) {
	store := cache.New(cache.NewMemoryKV())
	require.NoError(t, store.SetAssignLabels("d1", []string{"Assigned to carl", "", ""}))
	s := NewSynchronizer(failingAPI{&fakeAPI{}}, store, time.Second)

	view, err := s.Load(context.Background(), "d1", qs, users)
	require.Error(t, err)
	assert.Equal(t, "Assigned to carl", view.Labels[0])
}

type failingAPI struct{ *fakeAPI }

func (failingAPI) AssignedReviewers(ctx context.Context, docID string) ([]domain.Assignment, error) {
	return nil, errors.New("offline")
}
