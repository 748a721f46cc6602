package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"rfpdesk/internal/cache"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/domain"
)

// ErrLoginRequired means there is no usable session; the caller must log in.
var ErrLoginRequired = errors.New("login required")

type EventKind string

const (
	EventLogin  EventKind = "login"
	EventLogout EventKind = "logout"
)

// Event is published on every session change.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Session domain.Session `json:"session"`
	Origin  string         `json:"origin"`
}

// Broadcaster carries session events to other processes.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
	Listen(ctx context.Context, fn func(Event)) error
}

// Store is the single owner of the authenticated session.
type Store struct {
	cache  *cache.Store
	sealer *Sealer
	remote Broadcaster
	origin string

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithSealer enables saved credentials.
func WithSealer(s *Sealer) Option {
	return func(st *Store) { st.sealer = s }
}

// WithBroadcaster mirrors events to other processes.
func WithBroadcaster(b Broadcaster) Option {
	return func(st *Store) { st.remote = b }
}

// NewStore builds a session store over the client cache.
func NewStore(c *cache.Store, opts ...Option) *Store {
	s := &Store{
		cache:  c,
		origin: util.NewID("proc"),
		subs:   make(map[chan Event]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current session. A stored session without a token counts
// as absent.
func (s *Store) Get() (domain.Session, bool, error) {
	sess, ok, err := s.cache.Session()
	if err != nil {
		return domain.Session{}, false, err
	}
	if !ok || !sess.Valid() {
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

// Require is Get that turns absence into ErrLoginRequired.
func (s *Store) Require() (domain.Session, error) {
	sess, ok, err := s.Get()
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, ErrLoginRequired
	}
	return sess, nil
}

// Token implements apiclient.TokenSource.
func (s *Store) Token() string {
	sess, ok, err := s.Get()
	if err != nil || !ok {
		return ""
	}
	return sess.Token
}

func (s *Store) Set(ctx context.Context, sess domain.Session) error {
	if !sess.Valid() {
		return fmt.Errorf("session: token is required")
	}
	sess.Email = strings.TrimSpace(sess.Email)
	if err := s.cache.SetSession(sess); err != nil {
		return err
	}
	s.publish(ctx, Event{Kind: EventLogin, Session: sess})
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.cache.ClearSession(); err != nil {
		return err
	}
	s.publish(ctx, Event{Kind: EventLogout})
	return nil
}

// Subscribe delivers session events until ctx is done. Slow subscribers
// miss events rather than block writers.
func (s *Store) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}()
	return ch
}

// Relay forwards events published by other processes to local subscribers.
// It blocks until ctx is done.
func (s *Store) Relay(ctx context.Context) error {
	if s.remote == nil {
		<-ctx.Done()
		return nil
	}
	return s.remote.Listen(ctx, func(ev Event) {
		if ev.Origin == s.origin {
			return
		}
		s.fanOut(ev)
	})
}

func (s *Store) publish(ctx context.Context, ev Event) {
	ev.Origin = s.origin
	s.fanOut(ev)
	if s.remote == nil {
		return
	}
	if err := s.remote.Publish(ctx, ev); err != nil {
		util.LoggerFromContext(ctx).Warn("session event publish failed", "kind", ev.Kind, "err", err)
	}
}

func (s *Store) fanOut(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("session subscriber lagging, event dropped", "kind", ev.Kind)
		}
	}
}

// ResolveRole picks the role for a freshly logged-in identity from the user
// directory, matching by email or username. Reviewer is the fallback.
func ResolveRole(users []domain.User, identity string) domain.UserRole {
	identity = strings.TrimSpace(identity)
	for _, u := range users {
		if strings.EqualFold(u.Email, identity) || u.Username == identity {
			if u.Role != "" {
				return u.Role
			}
			break
		}
	}
	return domain.RoleReviewer
}
