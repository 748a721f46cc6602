package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/internal/cache"
	"rfpdesk/pkg/domain"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(cache.New(cache.NewMemoryKV()), opts...)
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return Event{}
	}
}

func TestSetGetClearPublishesEvents(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := s.Subscribe(ctx)

	_, err := s.Require()
	assert.ErrorIs(t, err, ErrLoginRequired)

	sess := domain.Session{Email: " a@x.io ", Token: "tok", Role: domain.RoleAdmin, UserID: "1"}
	require.NoError(t, s.Set(ctx, sess))
	ev := nextEvent(t, events)
	assert.Equal(t, EventLogin, ev.Kind)
	assert.Equal(t, "a@x.io", ev.Session.Email)
	assert.Equal(t, "tok", s.Token())

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, EventLogout, nextEvent(t, events).Kind)
	_, ok, err := s.Get()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "", s.Token())
}

func TestSetRejectsTokenlessSession(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Set(context.Background(), domain.Session{Email: "a@x.io"}))
}

func TestSubscribeClosesOnCancel(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	events := s.Subscribe(ctx)
	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSavedCredentialsAreSealed(t *testing.T) {
	sealer, err := LoadOrCreateSealer(filepath.Join(t.TempDir(), "secret"))
	require.NoError(t, err)
	kv := cache.NewMemoryKV()
	s := NewStore(cache.New(kv), WithSealer(sealer))

	creds := domain.SavedCredentials{Email: "a@x.io", Password: "hunter2", RememberMe: true}
	require.NoError(t, s.SaveCredentials(creds))

	raw, err := kv.Get("v1:savedCredentials")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	got, ok, err := s.Credentials()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, creds, got)

	require.NoError(t, s.SaveCredentials(domain.SavedCredentials{Email: "a@x.io"}))
	_, ok, err = s.Credentials()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSealerSecretIsReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	first, err := LoadOrCreateSealer(path)
	require.NoError(t, err)
	sealed, err := first.Seal([]byte("payload"))
	require.NoError(t, err)

	second, err := LoadOrCreateSealer(path)
	require.NoError(t, err)
	out, err := second.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(out))

	_, err = second.Open(sealed[:10])
	assert.Error(t, err)
}

func TestRelayDeliversRemoteEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newStore(t, WithBroadcaster(NewRedisBroadcaster(mr.Addr(), "", "rfpdesk:session")))
	b := newStore(t, WithBroadcaster(NewRedisBroadcaster(mr.Addr(), "", "rfpdesk:session")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := b.Subscribe(ctx)
	go func() { _ = b.Relay(ctx) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("rfpdesk:session")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Clear(ctx))
	ev := nextEvent(t, events)
	assert.Equal(t, EventLogout, ev.Kind)
}

func TestResolveRole(t *testing.T) {
	users := []domain.User{
		{Username: "bob", Email: "bob@x.io", Role: domain.RoleAdmin},
		{Username: "amy", Email: "amy@x.io"},
	}
	assert.Equal(t, domain.RoleAdmin, ResolveRole(users, "BOB@x.io"))
	assert.Equal(t, domain.RoleAdmin, ResolveRole(users, "bob"))
	assert.Equal(t, domain.RoleReviewer, ResolveRole(users, "amy@x.io"))
	assert.Equal(t, domain.RoleReviewer, ResolveRole(users, "nobody"))
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "7",
		"email": "bob@x.io",
		"exp":   exp.Unix(),
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)

	info, err := InspectToken(token)
	require.NoError(t, err)
	assert.Equal(t, "7", info.Subject)
	assert.Equal(t, "bob@x.io", info.Email)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Minute)))

	_, err = InspectToken("not-a-jwt")
	assert.Error(t, err)
}
