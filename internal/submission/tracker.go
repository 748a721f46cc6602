package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"rfpdesk/internal/cache"
	"rfpdesk/internal/session"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

const msgEmptyAnswer = "No answer provided to save."

var (
	ErrUnknownQuestion = errors.New("submission: question not loaded")
	ErrEmptyAnswer     = errors.New(msgEmptyAnswer)
)

// API is the slice of the backend the tracker needs.
type API interface {
	AssignedQuestions(ctx context.Context) ([]domain.Question, error)
	SubmittedAnswers(ctx context.Context) ([]domain.SubmittedQuestion, error)
	GenerateAnswer(ctx context.Context, questionID string) (string, error)
	UpdateAnswer(ctx context.Context, questionID, answer string) (*domain.AnswerVersion, error)
	Submit(ctx context.Context, questionID string, status domain.SubmissionStatus, answer string) error
	RefineAnswer(ctx context.Context, questionID, userID, message string) (*domain.AnswerVersion, error)
	QuestionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]domain.Question, int, error)
}

type Sessions interface {
	Require() (domain.Session, error)
	Clear(ctx context.Context) error
}

// Versions is the part of the version browser the tracker keeps in step.
type Versions interface {
	Prepend(questionID string, v domain.AnswerVersion)
	Reload(ctx context.Context, questionID string) ([]domain.AnswerVersion, error)
	Select(questionID, versionID string) (domain.AnswerVersion, error)
}

// Item is one assigned question with its local answer and lifecycle state.
// Finalizing is set while a submit or decline request is in flight.
type Item struct {
	Question   domain.Question
	State      State
	Answer     string
	Err        string
	Finalizing bool
}

// Tracker owns the answer lifecycle of the session user's assigned
// questions.
type Tracker struct {
	api      API
	sessions Sessions
	cache    *cache.Store
	versions Versions

	mu     sync.Mutex
	email  string
	items  map[string]*Item
	order  []string
	counts domain.StatusCounts
}

func NewTracker(api API, sessions Sessions, store *cache.Store, versions Versions) *Tracker {
	return &Tracker{
		api:      api,
		sessions: sessions,
		cache:    store,
		versions: versions,
		items:    make(map[string]*Item),
	}
}

// Load fetches the assigned questions and overlays locally kept drafts.
// Admins also see answers from the submission listing. A status reported by
// the server wins over a cached one.
func (t *Tracker) Load(ctx context.Context, role domain.UserRole) ([]Item, error) {
	sess, err := t.sessions.Require()
	if err != nil {
		return nil, err
	}
	questions, err := t.api.AssignedQuestions(ctx)
	if err != nil {
		return nil, t.fail(ctx, "", err)
	}

	answers, _, err := t.cache.AssignedAnswers(sess.Email)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("read cached answers failed", "err", err)
	}
	statuses, _, err := t.cache.SubmissionStatuses(sess.Email)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("read cached statuses failed", "err", err)
	}
	submitted := make(map[string]string)
	if role == domain.RoleAdmin {
		rows, err := t.api.SubmittedAnswers(ctx)
		if err != nil {
			util.LoggerFromContext(ctx).Warn("load submitted answers failed", "err", err)
		}
		for _, r := range rows {
			if r.Answer != "" {
				submitted[r.QuestionID] = r.Answer
			}
		}
	}

	items := make(map[string]*Item, len(questions))
	order := make([]string, 0, len(questions))
	for _, q := range questions {
		if _, dup := items[q.ID]; dup {
			continue
		}
		status := q.Status
		if status == domain.StatusUnset {
			status = statuses[q.ID]
		}
		answer := q.Answer
		if !status.Terminal() {
			answer = firstNonEmpty(submitted[q.ID], answers[q.ID], q.Answer)
		}
		items[q.ID] = &Item{Question: q, State: FromStatus(status), Answer: answer}
		order = append(order, q.ID)
	}

	t.mu.Lock()
	t.email = sess.Email
	t.items = items
	t.order = order
	t.persistLocked(ctx)
	t.mu.Unlock()
	return t.Items(), nil
}

// Items returns a snapshot in server order.
func (t *Tracker) Items() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Item, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.items[id])
	}
	return out
}

func (t *Tracker) Item(questionID string) (Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[questionID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Generate drafts an answer for an untouched question.
func (t *Tracker) Generate(ctx context.Context, questionID string) (string, error) {
	if err := t.apply(questionID, GenerateStart); err != nil {
		return "", err
	}
	text, err := t.api.GenerateAnswer(ctx, questionID)
	if err != nil {
		_ = t.apply(questionID, GenerateFail)
		return "", t.fail(ctx, questionID, err)
	}
	t.mu.Lock()
	if it, ok := t.items[questionID]; ok {
		it.Answer = text
	}
	t.mu.Unlock()
	if err := t.apply(questionID, GenerateOK); err != nil {
		util.LoggerFromContext(ctx).Debug("generated answer arrived after state change", "question_id", questionID, "err", err)
	}
	t.persist(ctx)
	return text, nil
}

// ToggleEdit starts editing, or saves when already editing. It reports
// whether the question is in edit mode afterwards.
func (t *Tracker) ToggleEdit(ctx context.Context, questionID string) (bool, error) {
	it, ok := t.Item(questionID)
	if !ok {
		return false, ErrUnknownQuestion
	}
	if it.State.Phase == Editing {
		if err := t.saveEdit(ctx, questionID); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := t.apply(questionID, EditStart); err != nil {
		return false, err
	}
	return true, nil
}

// CancelEdit leaves edit mode without saving.
func (t *Tracker) CancelEdit(questionID string) error {
	return t.apply(questionID, EditCancel)
}

func (t *Tracker) saveEdit(ctx context.Context, questionID string) error {
	t.mu.Lock()
	it, ok := t.items[questionID]
	if !ok {
		t.mu.Unlock()
		return ErrUnknownQuestion
	}
	if _, err := Transition(it.State, EditSave); err != nil {
		t.mu.Unlock()
		return err
	}
	answer := it.Answer
	if answer == "" {
		it.Err = msgEmptyAnswer
		t.mu.Unlock()
		return ErrEmptyAnswer
	}
	it.Err = ""
	t.mu.Unlock()

	v, err := t.api.UpdateAnswer(ctx, questionID, answer)
	if err != nil {
		return t.fail(ctx, questionID, err)
	}
	if err := t.apply(questionID, EditSave); err != nil {
		util.LoggerFromContext(ctx).Debug("save arrived after state change", "question_id", questionID, "err", err)
	}
	t.recordVersion(ctx, questionID, v)
	t.persist(ctx)
	t.refreshCounts(ctx)
	return nil
}

// SetAnswer replaces the local answer text. Nothing is sent.
func (t *Tracker) SetAnswer(questionID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if it.State.Phase.Terminal() || it.State.Phase == Generating {
		return fmt.Errorf("%w: edit while %s", ErrIllegalTransition, it.State.Phase)
	}
	it.Answer = text
	t.persistLocked(context.Background())
	return nil
}

// UseVersion copies a saved version into the local answer and closes the
// version dropdown.
func (t *Tracker) UseVersion(questionID, versionID string) (string, error) {
	v, err := t.versions.Select(questionID, versionID)
	if err != nil {
		return "", err
	}
	if err := t.SetAnswer(questionID, v.Answer); err != nil {
		return "", err
	}
	return v.Answer, nil
}

// Submit sends the final answer. An empty answer submits the local draft.
// Questions already submitted or declined are rejected without a request.
func (t *Tracker) Submit(ctx context.Context, questionID, answer string) error {
	draft, err := t.beginFinal(questionID, Submit)
	if err != nil {
		return err
	}
	defer t.endFinal(questionID)
	if answer == "" {
		answer = draft
	}

	if err := t.api.Submit(ctx, questionID, domain.StatusSubmitted, answer); err != nil {
		return t.fail(ctx, questionID, err)
	}
	t.mu.Lock()
	if it, ok := t.items[questionID]; ok {
		it.Answer = answer
	}
	t.mu.Unlock()
	if err := t.apply(questionID, Submit); err != nil {
		util.LoggerFromContext(ctx).Debug("submit arrived after state change", "question_id", questionID, "err", err)
	}
	t.persist(ctx)
	t.refreshCounts(ctx)
	return nil
}

// MarkNotForMe declines an untouched question and clears its answer.
func (t *Tracker) MarkNotForMe(ctx context.Context, questionID string) error {
	if _, err := t.beginFinal(questionID, MarkNotForMe); err != nil {
		return err
	}
	defer t.endFinal(questionID)
	if err := t.api.Submit(ctx, questionID, domain.StatusNotSubmitted, ""); err != nil {
		return t.fail(ctx, questionID, err)
	}
	t.mu.Lock()
	if it, ok := t.items[questionID]; ok {
		it.Answer = ""
	}
	t.mu.Unlock()
	if err := t.apply(questionID, MarkNotForMe); err != nil {
		util.LoggerFromContext(ctx).Debug("decline arrived after state change", "question_id", questionID, "err", err)
	}
	t.persist(ctx)
	t.refreshCounts(ctx)
	return nil
}

// Refine asks the backend to rework the answer. When a new version comes
// back it becomes the answer; otherwise the version list is re-read.
func (t *Tracker) Refine(ctx context.Context, questionID, prompt string) (string, error) {
	if err := t.check(questionID, Refined); err != nil {
		return "", err
	}
	sess, err := t.sessions.Require()
	if err != nil {
		return "", err
	}
	v, err := t.api.RefineAnswer(ctx, questionID, sess.UserID, prompt)
	if err != nil {
		return "", t.fail(ctx, questionID, err)
	}
	if v == nil {
		t.recordVersion(ctx, questionID, nil)
		it, _ := t.Item(questionID)
		return it.Answer, nil
	}
	t.mu.Lock()
	if it, ok := t.items[questionID]; ok {
		it.Answer = v.Answer
	}
	t.mu.Unlock()
	if err := t.apply(questionID, Refined); err != nil {
		util.LoggerFromContext(ctx).Debug("refine arrived after state change", "question_id", questionID, "err", err)
	}
	t.recordVersion(ctx, questionID, v)
	t.persist(ctx)
	return v.Answer, nil
}

// Counts fetches the per-status totals for the session user.
func (t *Tracker) Counts(ctx context.Context) (domain.StatusCounts, error) {
	var submitted, declined, pending int
	g, gctx := errgroup.WithContext(ctx)
	fetch := func(status domain.SubmissionStatus, dst *int) {
		g.Go(func() error {
			qs, n, err := t.api.QuestionsByStatus(gctx, status)
			if err != nil {
				return err
			}
			if n == 0 {
				n = len(qs)
			}
			*dst = n
			return nil
		})
	}
	fetch(domain.StatusSubmitted, &submitted)
	fetch(domain.StatusNotSubmitted, &declined)
	fetch(domain.StatusProcess, &pending)
	if err := g.Wait(); err != nil {
		return domain.StatusCounts{}, t.fail(ctx, "", err)
	}

	counts := domain.StatusCounts{
		Submitted:    submitted,
		NotSubmitted: declined,
		Process:      pending,
		Total:        submitted + declined + pending,
	}
	t.mu.Lock()
	t.counts = counts
	t.mu.Unlock()
	return counts, nil
}

// LastCounts returns the totals from the most recent fetch.
func (t *Tracker) LastCounts() domain.StatusCounts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts
}

func (t *Tracker) refreshCounts(ctx context.Context) {
	if _, err := t.Counts(ctx); err != nil {
		util.LoggerFromContext(ctx).Warn("refresh status counts failed", "err", err)
	}
}

func (t *Tracker) recordVersion(ctx context.Context, questionID string, v *domain.AnswerVersion) {
	if t.versions == nil {
		return
	}
	if v != nil {
		t.versions.Prepend(questionID, *v)
		return
	}
	if _, err := t.versions.Reload(ctx, questionID); err != nil {
		util.LoggerFromContext(ctx).Warn("reload versions failed", "question_id", questionID, "err", err)
	}
}

// check validates ev against the current state without applying it.
func (t *Tracker) check(questionID string, ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if _, err := Transition(it.State, ev); err != nil {
		return err
	}
	it.Err = ""
	return nil
}

// beginFinal checks ev and claims the question for one terminal request.
// It returns the local draft.
func (t *Tracker) beginFinal(questionID string, ev Event) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[questionID]
	if !ok {
		return "", ErrUnknownQuestion
	}
	if _, err := Transition(it.State, ev); err != nil {
		return "", err
	}
	if it.Finalizing {
		return "", fmt.Errorf("%w: %s while a final status is being sent", ErrIllegalTransition, ev)
	}
	it.Finalizing = true
	it.Err = ""
	return it.Answer, nil
}

func (t *Tracker) endFinal(questionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if it, ok := t.items[questionID]; ok {
		it.Finalizing = false
	}
}

func (t *Tracker) apply(questionID string, ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	next, err := Transition(it.State, ev)
	if err != nil {
		return err
	}
	it.State = next
	if ev == GenerateStart {
		it.Err = ""
	}
	return nil
}

// fail turns an API error into the caller's error. Auth failures end the
// session; anything else is recorded against the question.
func (t *Tracker) fail(ctx context.Context, questionID string, err error) error {
	logger := util.LoggerFromContext(ctx)
	if apiclient.IsAuth(err) {
		if cerr := t.sessions.Clear(ctx); cerr != nil {
			logger.Error("clear session failed", "err", cerr)
		}
		return fmt.Errorf("%w: %v", session.ErrLoginRequired, err)
	}
	logger.Error("submission request failed", "question_id", questionID, "err", err)
	if questionID != "" {
		t.mu.Lock()
		if it, ok := t.items[questionID]; ok {
			it.Err = apiclient.UserMessage(err)
		}
		t.mu.Unlock()
	}
	return err
}

func (t *Tracker) persist(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.persistLocked(ctx)
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if t.cache == nil || t.email == "" {
		return
	}
	answers := make(map[string]string, len(t.items))
	statuses := make(map[string]domain.SubmissionStatus, len(t.items))
	for id, it := range t.items {
		if it.Answer != "" {
			answers[id] = it.Answer
		}
		if s := it.State.Status(); s != domain.StatusUnset {
			statuses[id] = s
		}
	}
	if err := t.cache.SetAssignedAnswers(t.email, answers); err != nil {
		util.LoggerFromContext(ctx).Warn("persist answers failed", "err", err)
	}
	if err := t.cache.SetSubmissionStatuses(t.email, statuses); err != nil {
		util.LoggerFromContext(ctx).Warn("persist statuses failed", "err", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
