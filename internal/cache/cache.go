package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rfpdesk/pkg/domain"
)

// SchemaVersion tags every stored value. Entries written under another
// version read as misses.
const SchemaVersion = 1

var keyPrefix = fmt.Sprintf("v%d:", SchemaVersion)

type envelope struct {
	V       int             `json:"v"`
	SavedAt time.Time       `json:"savedAt"`
	Data    json.RawMessage `json:"data"`
}

// Store is the only path to persisted client state. Every key has a typed
// accessor; last writer wins and there are no cross-key transactions.
type Store struct {
	kv  KV
	now func() time.Time
}

// New wraps kv.
func New(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

func key(parts ...string) string {
	k := keyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func get[T any](s *Store, k string) (T, bool, error) {
	var zero T
	raw, err := s.kv.Get(k)
	if errors.Is(err, ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("cache get %s: %w", k, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.V != SchemaVersion {
		return zero, false, nil
	}
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return zero, false, nil
	}
	return out, true, nil
}

func put[T any](s *Store, k string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", k, err)
	}
	raw, err := json.Marshal(envelope{V: SchemaVersion, SavedAt: s.now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", k, err)
	}
	if err := s.kv.Set(k, raw); err != nil {
		return fmt.Errorf("cache set %s: %w", k, err)
	}
	return nil
}

func (s *Store) del(k string) error {
	if err := s.kv.Delete(k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("cache delete %s: %w", k, err)
	}
	return nil
}

func (s *Store) Session() (domain.Session, bool, error) {
	return get[domain.Session](s, key("session"))
}

func (s *Store) SetSession(sess domain.Session) error {
	return put(s, key("session"), sess)
}

func (s *Store) ClearSession() error {
	return s.del(key("session"))
}

// SealedCredentials holds the encrypted remember-me record.
func (s *Store) SealedCredentials() ([]byte, bool, error) {
	return get[[]byte](s, key("savedCredentials"))
}

func (s *Store) SetSealedCredentials(sealed []byte) error {
	return put(s, key("savedCredentials"), sealed)
}

func (s *Store) ClearSealedCredentials() error {
	return s.del(key("savedCredentials"))
}

// AssignLabels returns the per-question-index assignment labels of a document.
func (s *Store) AssignLabels(docID string) ([]string, bool, error) {
	return get[[]string](s, key("assignStatus", docID))
}

func (s *Store) SetAssignLabels(docID string, labels []string) error {
	return put(s, key("assignStatus", docID), labels)
}

// SelectedReviewers returns reviewers keyed by question index.
func (s *Store) SelectedReviewers(docID string) (map[int][]domain.User, bool, error) {
	return get[map[int][]domain.User](s, key("selectedReviewers", docID))
}

func (s *Store) SetSelectedReviewers(docID string, reviewers map[int][]domain.User) error {
	return put(s, key("selectedReviewers", docID), reviewers)
}

// AssignedAnswers returns locally drafted answers keyed by question id.
func (s *Store) AssignedAnswers(email string) (map[string]string, bool, error) {
	return get[map[string]string](s, key("assignedQuestions", email))
}

func (s *Store) SetAssignedAnswers(email string, answers map[string]string) error {
	return put(s, key("assignedQuestions", email), answers)
}

// SubmissionStatuses returns the last known status per question id.
func (s *Store) SubmissionStatuses(email string) (map[string]domain.SubmissionStatus, bool, error) {
	return get[map[string]domain.SubmissionStatus](s, key("submissionStatus", email))
}

func (s *Store) SetSubmissionStatuses(email string, statuses map[string]domain.SubmissionStatus) error {
	return put(s, key("submissionStatus", email), statuses)
}

// AIAnalysis returns the stored analysis for a document, verbatim.
func (s *Store) AIAnalysis(docID string) (json.RawMessage, bool, error) {
	return get[json.RawMessage](s, key("aiAnalysis", docID))
}

func (s *Store) SetAIAnalysis(docID string, result json.RawMessage) error {
	return put(s, key("aiAnalysis", docID), result)
}

// ForgetDocument drops every entry scoped to a document.
func (s *Store) ForgetDocument(docID string) error {
	for _, k := range []string{
		key("assignStatus", docID),
		key("selectedReviewers", docID),
		key("aiAnalysis", docID),
	} {
		if err := s.del(k); err != nil {
			return err
		}
	}
	return nil
}
