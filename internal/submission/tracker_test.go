package submission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/internal/cache"
	"rfpdesk/internal/session"
	"rfpdesk/internal/versions"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/domain"
)

type fakeAPI struct {
	mu          sync.Mutex
	questions   []domain.Question
	submitted   []domain.SubmittedQuestion
	generated   string
	generateErr error
	submitErr   error
	version     *domain.AnswerVersion
	refined     *domain.AnswerVersion
	submits     []domain.SubmissionStatus
	submitGate  chan struct{}
	submitSeen  chan struct{}
	updates     int
	versionRead int
	byStatus    map[domain.SubmissionStatus]int
}

func (f *fakeAPI) AssignedQuestions(ctx context.Context) ([]domain.Question, error) {
	return append([]domain.Question(nil), f.questions...), nil
}

func (f *fakeAPI) SubmittedAnswers(ctx context.Context) ([]domain.SubmittedQuestion, error) {
	return f.submitted, nil
}

func (f *fakeAPI) GenerateAnswer(ctx context.Context, questionID string) (string, error) {
	return f.generated, f.generateErr
}

func (f *fakeAPI) UpdateAnswer(ctx context.Context, questionID, answer string) (*domain.AnswerVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return f.version, nil
}

func (f *fakeAPI) Submit(ctx context.Context, questionID string, status domain.SubmissionStatus, answer string) error {
	f.mu.Lock()
	f.submits = append(f.submits, status)
	gate, seen, err := f.submitGate, f.submitSeen, f.submitErr
	f.mu.Unlock()
	if seen != nil {
		seen <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAPI) RefineAnswer(ctx context.Context, questionID, userID, message string) (*domain.AnswerVersion, error) {
	return f.refined, nil
}

func (f *fakeAPI) QuestionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]domain.Question, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.byStatus[status], nil
}

func (f *fakeAPI) AnswerVersions(ctx context.Context, questionID string) ([]domain.AnswerVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionRead++
	return []domain.AnswerVersion{{ID: "v1", Answer: "old"}}, nil
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fixture struct {
	api      *fakeAPI
	store    *cache.Store
	sessions *session.Store
	browser  *versions.Browser
	tracker  *Tracker
}

func newFixture(t *testing.T, api *fakeAPI) *fixture {
	t.Helper()
	store := cache.New(cache.NewMemoryKV())
	sessions := session.NewStore(store)
	require.NoError(t, sessions.Set(context.Background(), domain.Session{Email: "rev@x.io", Token: "tok", UserID: "7", Role: domain.RoleReviewer}))
	browser := versions.NewBrowser(api)
	if api.byStatus == nil {
		api.byStatus = map[domain.SubmissionStatus]int{}
	}
	return &fixture{api: api, store: store, sessions: sessions, browser: browser, tracker: NewTracker(api, sessions, store, browser)}
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	_, err := f.tracker.Load(context.Background(), domain.RoleReviewer)
	require.NoError(t, err)
}

func TestLoadOverlaysCachedDrafts(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{
		{ID: "q1", Text: "Encrypt?"},
		{ID: "q2", Text: "SSO?", Status: domain.StatusSubmitted, Answer: "yes"},
	}}
	f := newFixture(t, api)
	require.NoError(t, f.store.SetAssignedAnswers("rev@x.io", map[string]string{"q1": "draft", "q2": "stale"}))
	require.NoError(t, f.store.SetSubmissionStatuses("rev@x.io", map[string]domain.SubmissionStatus{"q1": domain.StatusSaved, "q2": domain.StatusSaved}))

	f.load(t)
	items := f.tracker.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "draft", items[0].Answer)
	assert.Equal(t, Saved, items[0].State.Phase)
	assert.Equal(t, "yes", items[1].Answer)
	assert.Equal(t, Submitted, items[1].State.Phase)
}

func TestLoadAdminSeesSubmittedAnswers(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1"}},
		submitted: []domain.SubmittedQuestion{{QuestionID: "q1", Answer: "from reviewer"}},
	}
	f := newFixture(t, api)
	_, err := f.tracker.Load(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, "from reviewer", it.Answer)
}

func TestGenerate(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{{ID: "q1"}}, generated: "We encrypt at rest."}
	f := newFixture(t, api)
	f.load(t)

	text, err := f.tracker.Generate(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "We encrypt at rest.", text)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, Generated, it.State.Phase)

	_, err = f.tracker.Generate(context.Background(), "q1")
	assert.ErrorIs(t, err, ErrIllegalTransition)

	answers, _, _ := f.store.AssignedAnswers("rev@x.io")
	assert.Equal(t, "We encrypt at rest.", answers["q1"])
}

func TestGenerateFailureReturnsToUnset(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{{ID: "q1"}}, generateErr: &apiclient.APIError{Status: 500, Message: "model offline"}}
	f := newFixture(t, api)
	f.load(t)

	_, err := f.tracker.Generate(context.Background(), "q1")
	require.Error(t, err)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, Unset, it.State.Phase)
	assert.Equal(t, "model offline", it.Err)
}

func TestSubmitTwiceIssuesOneRequest(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1", Answer: "draft"}},
		byStatus:  map[domain.SubmissionStatus]int{domain.StatusSubmitted: 1, domain.StatusProcess: 4},
	}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	require.NoError(t, f.tracker.Submit(ctx, "q1", ""))
	err := f.tracker.Submit(ctx, "q1", "")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 1, api.submitCount())

	counts := f.tracker.LastCounts()
	assert.Equal(t, domain.StatusCounts{Submitted: 1, Process: 4, Total: 5}, counts)
}

func TestOverlappingFinalRequestsSendOnce(t *testing.T) {
	api := &fakeAPI{
		questions:  []domain.Question{{ID: "q1", Answer: "draft"}},
		submitGate: make(chan struct{}),
		submitSeen: make(chan struct{}, 1),
	}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.tracker.Submit(ctx, "q1", "") }()
	<-api.submitSeen

	it, _ := f.tracker.Item("q1")
	assert.True(t, it.Finalizing)
	assert.ErrorIs(t, f.tracker.Submit(ctx, "q1", ""), ErrIllegalTransition)
	assert.ErrorIs(t, f.tracker.MarkNotForMe(ctx, "q1"), ErrIllegalTransition)

	close(api.submitGate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.submitCount())
	it, _ = f.tracker.Item("q1")
	assert.False(t, it.Finalizing)
	assert.Equal(t, Submitted, it.State.Phase)
}

func TestFailedSubmitCanBeRetried(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1", Answer: "draft"}},
		submitErr: &apiclient.APIError{Status: 500, Message: "db down"},
	}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	require.Error(t, f.tracker.Submit(ctx, "q1", ""))
	it, _ := f.tracker.Item("q1")
	assert.False(t, it.Finalizing)

	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()
	require.NoError(t, f.tracker.Submit(ctx, "q1", ""))
	assert.Equal(t, 2, api.submitCount())
}

func TestMarkNotForMe(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{
		{ID: "q1", Answer: "something"},
		{ID: "q2", Status: domain.StatusSubmitted},
	}}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	err := f.tracker.MarkNotForMe(ctx, "q2")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 0, api.submitCount())

	require.NoError(t, f.tracker.MarkNotForMe(ctx, "q1"))
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, NotSubmitted, it.State.Phase)
	assert.Empty(t, it.Answer)
	assert.Equal(t, []domain.SubmissionStatus{domain.StatusNotSubmitted}, api.submits)
}

func TestToggleEditWithEmptyAnswer(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{{ID: "q1"}}}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	editing, err := f.tracker.ToggleEdit(ctx, "q1")
	require.NoError(t, err)
	assert.True(t, editing)

	_, err = f.tracker.ToggleEdit(ctx, "q1")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, "No answer provided to save.", it.Err)
	assert.Equal(t, Editing, it.State.Phase)
	assert.Equal(t, 0, api.updates)
}

func TestToggleEditSavesAndPrependsVersion(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1"}},
		version:   &domain.AnswerVersion{ID: "v2", Answer: "new"},
	}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	_, err := f.browser.Toggle(ctx, "q1")
	require.NoError(t, err)
	_, err = f.tracker.ToggleEdit(ctx, "q1")
	require.NoError(t, err)
	require.NoError(t, f.tracker.SetAnswer("q1", "new"))
	editing, err := f.tracker.ToggleEdit(ctx, "q1")
	require.NoError(t, err)
	assert.False(t, editing)

	it, _ := f.tracker.Item("q1")
	assert.Equal(t, Saved, it.State.Phase)
	list, _ := f.browser.Versions("q1")
	require.Len(t, list, 2)
	assert.Equal(t, "v2", list[0].ID)
	assert.Equal(t, 1, api.versionRead)
}

func TestSaveWithoutVersionRereadsList(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{{ID: "q1", Answer: "text"}}}
	f := newFixture(t, api)
	f.load(t)
	ctx := context.Background()

	_, err := f.tracker.ToggleEdit(ctx, "q1")
	require.NoError(t, err)
	_, err = f.tracker.ToggleEdit(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.versionRead)
}

func TestUseVersion(t *testing.T) {
	api := &fakeAPI{questions: []domain.Question{{ID: "q1", Answer: "current"}}}
	f := newFixture(t, api)
	f.load(t)

	_, err := f.browser.Toggle(context.Background(), "q1")
	require.NoError(t, err)
	answer, err := f.tracker.UseVersion("q1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "old", answer)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, "old", it.Answer)
	assert.Equal(t, 0, api.submitCount())
}

func TestRefineReplacesAnswer(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1", Answer: "long"}},
		refined:   &domain.AnswerVersion{ID: "v9", Answer: "short"},
	}
	f := newFixture(t, api)
	f.load(t)

	answer, err := f.tracker.Refine(context.Background(), "q1", "make it shorter")
	require.NoError(t, err)
	assert.Equal(t, "short", answer)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, Saved, it.State.Phase)
}

func TestAuthFailureClearsSession(t *testing.T) {
	api := &fakeAPI{
		questions: []domain.Question{{ID: "q1"}},
		submitErr: &apiclient.APIError{Status: 401, Message: "expired"},
	}
	f := newFixture(t, api)
	f.load(t)

	err := f.tracker.Submit(context.Background(), "q1", "final")
	assert.True(t, errors.Is(err, session.ErrLoginRequired), "got %v", err)
	_, ok, err := f.sessions.Get()
	require.NoError(t, err)
	assert.False(t, ok)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, Unset, it.State.Phase)
}

func TestInvalidRequestIsRecorded(t *testing.T) {
	apiErr := &apiclient.APIError{Status: 422, Message: "field required"}
	api := &fakeAPI{questions: []domain.Question{{ID: "q1"}}, submitErr: apiErr}
	f := newFixture(t, api)
	f.load(t)

	err := f.tracker.Submit(context.Background(), "q1", "final")
	require.Error(t, err)
	it, _ := f.tracker.Item("q1")
	assert.Equal(t, apiclient.UserMessage(apiErr), it.Err)
}
