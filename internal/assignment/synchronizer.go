package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rfpdesk/internal/cache"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

var (
	// ErrUnknownDocument is returned for a document that was never loaded.
	ErrUnknownDocument = errors.New("assignment: document not loaded")
	ErrIndexOutOfRange = errors.New("assignment: question index out of range")
)

// API is the slice of the backend the synchronizer needs.
type API interface {
	AssignedReviewers(ctx context.Context, docID string) ([]domain.Assignment, error)
	AssignReviewers(ctx context.Context, docID, questionID string, userIDs []string) error
	RemoveReviewer(ctx context.Context, questionID, userID string) error
	NotifyAssignment(ctx context.Context, questionID string, userIDs []string) error
	DocumentCounts(ctx context.Context, docID string) (apiclient.DocumentCounts, error)
}

// View is the assignment state of one document, indexed by the question's
// position in the flattened question list.
type View struct {
	Labels    []string
	Reviewers map[int][]domain.User
	Counts    apiclient.DocumentCounts
}

// names holds the assigned usernames per index. labels is only the
// display form and may carry an error instead.
type docState struct {
	questions []domain.Question
	labels    []string
	names     map[int][]string
	reviewers map[int][]domain.User
	counts    apiclient.DocumentCounts
}

func (d *docState) view() View {
	v := View{
		Labels:    append([]string(nil), d.labels...),
		Reviewers: make(map[int][]domain.User, len(d.reviewers)),
		Counts:    d.counts,
	}
	for idx, users := range d.reviewers {
		v.Reviewers[idx] = append([]domain.User(nil), users...)
	}
	return v
}

// Synchronizer keeps the label view, the reviewer view and the cached
// snapshot of each document consistent with the backend.
type Synchronizer struct {
	api           API
	cache         *cache.Store
	notifyTimeout time.Duration

	mu   sync.Mutex
	docs map[string]*docState

	notifications sync.WaitGroup
}

func NewSynchronizer(api API, store *cache.Store, notifyTimeout time.Duration) *Synchronizer {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &Synchronizer{
		api:           api,
		cache:         store,
		notifyTimeout: notifyTimeout,
		docs:          make(map[string]*docState),
	}
}

// Load restores the cached snapshot for docID, then replaces it with the
// backend's assignment records. users resolves usernames to reviewer
// records; names with no match stay in the label only. When the fetch fails
// the cached view is returned together with the error.
func (s *Synchronizer) Load(ctx context.Context, docID string, questions []domain.Question, users []domain.User) (View, error) {
	state := &docState{
		questions: append([]domain.Question(nil), questions...),
		labels:    make([]string, len(questions)),
		names:     make(map[int][]string),
		reviewers: make(map[int][]domain.User),
	}
	if labels, ok, err := s.cache.AssignLabels(docID); err == nil && ok {
		copy(state.labels, labels)
		for idx, label := range state.labels {
			if parsed := ParseLabel(label); len(parsed) > 0 {
				state.names[idx] = parsed
			}
		}
	}
	if reviewers, ok, err := s.cache.SelectedReviewers(docID); err == nil && ok {
		for idx, rs := range reviewers {
			if idx >= 0 && idx < len(questions) {
				state.reviewers[idx] = rs
			}
		}
	}
	s.mu.Lock()
	s.docs[docID] = state
	s.mu.Unlock()

	records, err := s.api.AssignedReviewers(ctx, docID)
	if err != nil {
		util.LoggerFromContext(ctx).Error("load assignments failed", "doc_id", docID, "err", err)
		s.mu.Lock()
		defer s.mu.Unlock()
		return state.view(), fmt.Errorf("load assignments: %w", err)
	}

	byUsername := make(map[string]domain.User, len(users))
	for _, u := range users {
		byUsername[u.Username] = u
	}
	names := make(map[string][]string)
	reviewers := make(map[string][]domain.User)
	for _, rec := range records {
		names[rec.QuestionID] = append(names[rec.QuestionID], rec.Username)
		if u, ok := byUsername[rec.Username]; ok {
			reviewers[rec.QuestionID] = appendUser(reviewers[rec.QuestionID], u)
		}
	}

	s.mu.Lock()
	for idx, q := range state.questions {
		state.labels[idx] = FormatLabel(names[q.ID])
		if assigned := dedupe(names[q.ID]); len(assigned) > 0 {
			state.names[idx] = assigned
		} else {
			delete(state.names, idx)
		}
		if rs := reviewers[q.ID]; len(rs) > 0 {
			state.reviewers[idx] = rs
		} else {
			delete(state.reviewers, idx)
		}
	}
	s.persistLocked(ctx, docID, state)
	s.mu.Unlock()

	s.refreshCounts(ctx, docID)
	return s.View(docID)
}

// View returns the current state of a loaded document.
func (s *Synchronizer) View(docID string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.docs[docID]
	if !ok {
		return View{}, ErrUnknownDocument
	}
	return state.view(), nil
}

// Assign gives every user in users the question at idx with one request.
// On success the new names are merged into the label, the reviewers are
// merged into the reviewer view, and the reviewers are notified in the
// background. On failure the label shows the error.
func (s *Synchronizer) Assign(ctx context.Context, docID string, idx int, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}
	for _, u := range users {
		if !validUsername(u.Username) {
			return fmt.Errorf("%w: %q", ErrInvalidUsername, u.Username)
		}
	}
	question, err := s.question(docID, idx)
	if err != nil {
		return err
	}
	userIDs := make([]string, 0, len(users))
	newNames := make([]string, 0, len(users))
	for _, u := range users {
		userIDs = append(userIDs, u.UserID)
		newNames = append(newNames, u.Username)
	}

	if err := s.api.AssignReviewers(ctx, docID, question.ID, userIDs); err != nil {
		util.LoggerFromContext(ctx).Error("assign reviewers failed", "doc_id", docID, "question_id", question.ID, "err", err)
		s.mu.Lock()
		if state, ok := s.docs[docID]; ok {
			state.labels[idx] = ErrorLabel(apiclient.UserMessage(err))
		}
		s.mu.Unlock()
		return fmt.Errorf("assign question %s: %w", question.ID, err)
	}

	s.mu.Lock()
	if state, ok := s.docs[docID]; ok {
		state.names[idx] = dedupe(append(state.names[idx], newNames...))
		state.labels[idx] = FormatLabel(state.names[idx])
		merged := state.reviewers[idx]
		for _, u := range users {
			merged = appendUser(merged, u)
		}
		state.reviewers[idx] = merged
		s.persistLocked(ctx, docID, state)
	}
	s.mu.Unlock()

	s.notify(question.ID, userIDs)
	s.refreshCounts(ctx, docID)
	return nil
}

// Unassign removes one reviewer from the question at idx.
func (s *Synchronizer) Unassign(ctx context.Context, docID string, idx int, user domain.User) error {
	question, err := s.question(docID, idx)
	if err != nil {
		return err
	}
	if err := s.api.RemoveReviewer(ctx, question.ID, user.UserID); err != nil {
		util.LoggerFromContext(ctx).Error("unassign reviewer failed", "doc_id", docID, "question_id", question.ID, "user_id", user.UserID, "err", err)
		return fmt.Errorf("unassign question %s: %w", question.ID, err)
	}

	s.mu.Lock()
	if state, ok := s.docs[docID]; ok {
		remaining := make([]string, 0)
		for _, name := range state.names[idx] {
			if name != user.Username {
				remaining = append(remaining, name)
			}
		}
		if len(remaining) == 0 {
			delete(state.names, idx)
		} else {
			state.names[idx] = remaining
		}
		state.labels[idx] = FormatLabel(remaining)
		kept := state.reviewers[idx][:0:0]
		for _, r := range state.reviewers[idx] {
			if r.UserID != user.UserID {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(state.reviewers, idx)
		} else {
			state.reviewers[idx] = kept
		}
		s.persistLocked(ctx, docID, state)
	}
	s.mu.Unlock()

	s.refreshCounts(ctx, docID)
	return nil
}

// Wait blocks until background notifications have finished.
func (s *Synchronizer) Wait() {
	s.notifications.Wait()
}

func (s *Synchronizer) question(docID string, idx int) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.docs[docID]
	if !ok {
		return domain.Question{}, ErrUnknownDocument
	}
	if idx < 0 || idx >= len(state.questions) {
		return domain.Question{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, idx)
	}
	return state.questions[idx], nil
}

// notify runs detached from the caller's context; failures are logged only.
func (s *Synchronizer) notify(questionID string, userIDs []string) {
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.api.NotifyAssignment(ctx, questionID, userIDs); err != nil {
			slog.Warn("assignment notification failed", "question_id", questionID, "err", err)
		}
	}()
}

func (s *Synchronizer) refreshCounts(ctx context.Context, docID string) {
	counts, err := s.api.DocumentCounts(ctx, docID)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("refresh document counts failed", "doc_id", docID, "err", err)
		return
	}
	s.mu.Lock()
	if state, ok := s.docs[docID]; ok {
		state.counts = counts
	}
	s.mu.Unlock()
}

func (s *Synchronizer) persistLocked(ctx context.Context, docID string, state *docState) {
	if err := s.cache.SetAssignLabels(docID, state.labels); err != nil {
		util.LoggerFromContext(ctx).Warn("persist assignment labels failed", "doc_id", docID, "err", err)
	}
	if err := s.cache.SetSelectedReviewers(docID, state.reviewers); err != nil {
		util.LoggerFromContext(ctx).Warn("persist selected reviewers failed", "doc_id", docID, "err", err)
	}
}

func appendUser(users []domain.User, u domain.User) []domain.User {
	for _, existing := range users {
		if existing.UserID == u.UserID {
			return users
		}
	}
	return append(users, u)
}
