package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/internal/config"
	"rfpdesk/internal/fakeapi"
	"rfpdesk/internal/session"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/auth"
	"rfpdesk/pkg/domain"
)

const rfpText = `# Security
1.1 Do you encrypt data at rest?
1.2 Do you support SSO?
# Pricing
2.1 What is the annual cost?
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	srv, err := fakeapi.New(fakeapi.Config{Seed: []fakeapi.SeedUser{
		{Username: "alice", Email: "alice@x.io", Password: "adminpass1", Role: domain.RoleAdmin},
		{Username: "bob", Email: "bob@x.io", Password: "reviewpass1", Role: domain.RoleReviewer},
	}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	a, err := New(context.Background(), Config{
		APIBaseURL:   ts.URL,
		DataDir:      dir,
		CacheBackend: config.CacheMemory,
		JWKSURL:      ts.URL + "/.well-known/jwks.json",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeRFP(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme.txt")
	require.NoError(t, os.WriteFile(path, []byte(rfpText), 0o600))
	return path
}

// uploadAndAssign uploads the sample RFP as admin and assigns its first
// question to bob.
func uploadAndAssign(t *testing.T, a *App) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.Login(ctx, "alice@x.io", "adminpass1", false)
	require.NoError(t, err)
	batch, err := a.Upload(ctx, "Acme", []string{writeRFP(t)})
	require.NoError(t, err)
	require.NotEmpty(t, batch.DocID)

	view, err := a.Assign(ctx, batch.DocID, 0, []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, "Assigned to bob", view.Labels[0])
	return batch.DocID
}

func TestLoginStoresSession(t *testing.T) {
	a := newTestApp(t)
	sess, err := a.Login(context.Background(), "alice@x.io", "adminpass1", true)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, sess.Role)

	id, err := a.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice@x.io", id.Session.Email)
	assert.Equal(t, "alice@x.io", id.Token.Email)
	assert.False(t, id.Expired)
	assert.True(t, id.Verified, "verify error: %v", id.VerifyErr)

	creds, ok, err := a.SavedLogin()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "adminpass1", creds.Password)

	require.NoError(t, a.Logout(context.Background()))
	_, err = a.WhoAmI(context.Background())
	assert.ErrorIs(t, err, session.ErrLoginRequired)
}

func TestLoginWithoutRememberForgetsCredentials(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.Login(ctx, "bob@x.io", "reviewpass1", true)
	require.NoError(t, err)
	_, err = a.Login(ctx, "bob@x.io", "reviewpass1", false)
	require.NoError(t, err)
	_, ok, err := a.SavedLogin()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginRejectsEmptyCredentials(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Login(context.Background(), " ", "x", false)
	assert.ErrorIs(t, err, ErrCredentialsRequired)
}

func TestUploadAssignAndLabels(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	docID := uploadAndAssign(t, a)

	loaded, err := a.LoadAssignments(ctx, docID)
	require.NoError(t, err)
	require.Len(t, loaded.Questions, 3)
	assert.Equal(t, "Assigned to bob", loaded.View.Labels[0])
	assert.Equal(t, 1, loaded.View.Counts.Assigned)

	view, err := a.Unassign(ctx, docID, 0, "bob")
	require.NoError(t, err)
	assert.Empty(t, view.Labels[0])
	assert.Empty(t, view.Reviewers[0])
}

func TestAssignUnknownUser(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	docID := uploadAndAssign(t, a)
	_, err := a.Assign(ctx, docID, 1, []string{"carol"})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestReviewerSubmitsAndAdminReviews(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	uploadAndAssign(t, a)

	_, err := a.Login(ctx, "bob@x.io", "reviewpass1", false)
	require.NoError(t, err)
	items, err := a.Questions(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	qid := items[0].Question.ID

	draft, err := a.Tracker().Generate(ctx, qid)
	require.NoError(t, err)
	assert.Contains(t, draft, "Draft response")
	require.NoError(t, a.Tracker().Submit(ctx, qid, ""))

	counts, err := a.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCounts{Submitted: 1, Total: 1}, counts)

	_, err = a.Login(ctx, "alice@x.io", "adminpass1", false)
	require.NoError(t, err)
	rows, err := a.SubmittedQuestions(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Submitted", DisplayStatus(rows[0].Status))
	assert.Equal(t, "bob", rows[0].Username)

	stats, err := a.Workload(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Submitted)

	require.NoError(t, a.AdminEditAnswer(ctx, qid, "Edited by admin."))
	require.NoError(t, a.SendBack(ctx, rows[0]))
}

func TestReviewerForbiddenFromAdminEndpointLosesSession(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.Login(ctx, "bob@x.io", "reviewpass1", false)
	require.NoError(t, err)
	_, err = a.SubmittedQuestions(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrLoginRequired)
	_, ok, err := a.Sessions().Get()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportDownloadLandsInStore(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	docID := uploadAndAssign(t, a)

	rep, err := a.GenerateReport(ctx, docID)
	require.NoError(t, err)
	docs, err := a.Reports(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, rep.FileName, docs[0].FileName)

	stored, err := a.DownloadReport(ctx, docID, docs[0])
	require.NoError(t, err)
	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "1.1 Do you encrypt data at rest?"))

	local, err := a.LocalReports()
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, docID, local[0].DocID)

	require.NoError(t, a.DeleteDocument(ctx, docID))
	local, err = a.LocalReports()
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestAnalyzeIsCached(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	docID := uploadAndAssign(t, a)

	_, ok, err := a.Analysis(docID)
	require.NoError(t, err)
	assert.False(t, ok)
	result, err := a.Analyze(ctx, docID)
	require.NoError(t, err)
	cached, ok, err := a.Analysis(docID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, string(result), string(cached))
}

func TestScorecardGroupsBySectionNumber(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	docID := uploadAndAssign(t, a)

	sections, err := a.Scorecard(ctx, docID)
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, "Section 1.1", sections[0].Title)
	assert.Equal(t, "2.1", sections[2].Key)
	assert.Equal(t, 1, sections[0].Total)
	assert.Equal(t, "bob", sections[0].Questions[0].AssignedTo)
}

func TestBuildScorecard(t *testing.T) {
	questions := []domain.Question{
		{ID: "1", Text: "3.2.1 Uptime?"},
		{ID: "2", Text: "Any references?"},
		{ID: "3", Text: "3.2.4 Support hours?"},
	}
	entries := []domain.CompletionEntry{
		{QuestionID: "1", Status: domain.CompletionDone, Percentage: 100},
		{QuestionID: "3", Status: domain.CompletionInProgress, Percentage: 50},
	}
	sections := buildScorecard(questions, entries)
	require.Len(t, sections, 2)
	assert.Equal(t, "3.2", sections[0].Key)
	assert.Equal(t, 2, sections[0].Total)
	assert.Equal(t, 1, sections[0].Completed)
	assert.Equal(t, 1, sections[0].InProgress)
	assert.Equal(t, "3.2.4", sections[0].Questions[1].Number)
	assert.Equal(t, "General", sections[1].Key)
	assert.Equal(t, domain.CompletionNotStarted, sections[1].Questions[0].Status)
}

func TestAddMemberCanLogIn(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.Login(ctx, "alice@x.io", "adminpass1", false)
	require.NoError(t, err)

	password, err := a.AddMember(ctx, "carol", "carol@x.io", domain.RoleReviewer)
	require.NoError(t, err)
	assert.Len(t, password, auth.DefaultGeneratedChars)

	carol, err := a.FindUser(ctx, "carol@x.io")
	require.NoError(t, err)
	assert.Equal(t, "carol", carol.Username)

	_, err = a.Login(ctx, "carol@x.io", password, false)
	require.NoError(t, err)
	_, err = a.Login(ctx, "alice@x.io", "adminpass1", false)
	require.NoError(t, err)
	require.NoError(t, a.RemoveMember(ctx, carol))
	_, err = a.FindUser(ctx, "carol")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestChangePasswordValidatesLocally(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.Login(ctx, "bob@x.io", "reviewpass1", false)
	require.NoError(t, err)

	assert.ErrorIs(t, a.ChangePassword(ctx, "reviewpass1", "newpass123", "other"), auth.ErrPasswordMismatch)
	assert.ErrorIs(t, a.ChangePassword(ctx, "reviewpass1", "reviewpass1", "reviewpass1"), auth.ErrPasswordReused)
	assert.ErrorIs(t, a.ChangePassword(ctx, "reviewpass1", "short", "short"), auth.ErrPasswordTooShort)

	require.NoError(t, a.ChangePassword(ctx, "reviewpass1", "newpass123", "newpass123"))
	_, err = a.Login(ctx, "bob@x.io", "newpass123", false)
	require.NoError(t, err)
}

func TestUploadRequiresProject(t *testing.T) {
	a := newTestApp(t)
	batch, err := a.Upload(context.Background(), " ", []string{writeRFP(t)})
	require.Error(t, err)
	assert.Equal(t, "Project name is required.", batch.Message)
	assert.False(t, errors.Is(err, session.ErrLoginRequired))
}

func TestUpdateProfileRefreshesSession(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, err := a.Login(ctx, "bob@x.io", "reviewpass1", false)
	require.NoError(t, err)

	user, err := a.UpdateProfile(ctx, apiclient.ProfileUpdate{Email: "robert@x.io", ImageName: "me.png", Image: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, "robert@x.io", user.Email)

	id, err := a.WhoAmI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "robert@x.io", id.Session.Email)
	assert.NotEmpty(t, id.Session.ImageURL)

	_, err = a.UpdateProfile(ctx, apiclient.ProfileUpdate{Email: "alice@x.io"})
	assert.Error(t, err)
}

func TestWatchSessionSeesOtherProcess(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, err := fakeapi.New(fakeapi.Config{Seed: []fakeapi.SeedUser{
		{Username: "bob", Email: "bob@x.io", Password: "reviewpass1", Role: domain.RoleReviewer},
	}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	open := func() *App {
		a, err := New(context.Background(), Config{
			APIBaseURL:     ts.URL,
			DataDir:        t.TempDir(),
			CacheBackend:   config.CacheMemory,
			RedisAddr:      mr.Addr(),
			SessionChannel: "rfpdesk:test",
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = a.Close() })
		return a
	}
	writer, watcher := open(), open()

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan session.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- watcher.WatchSession(ctx, func(ev session.Event) { events <- ev })
	}()

	// The subscription starts asynchronously; keep publishing until it lands.
	require.Eventually(t, func() bool {
		_ = writer.Logout(context.Background())
		select {
		case ev := <-events:
			return ev.Kind == session.EventLogout
		default:
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatchSessionNeedsRedis(t *testing.T) {
	a := newTestApp(t)
	err := a.WatchSession(context.Background(), func(session.Event) {})
	assert.ErrorIs(t, err, ErrSessionEventsDisabled)
}
