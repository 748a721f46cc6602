package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rfpdesk/internal/assignment"
	"rfpdesk/internal/submission"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/apiclient"
	"rfpdesk/pkg/auth"
	"rfpdesk/pkg/domain"
)

// ErrUnknownUser is returned when a username is not in the user directory.
var ErrUnknownUser = errors.New("unknown user")

// DocumentAssignments is a document's questions with their assignment view.
type DocumentAssignments struct {
	Questions []domain.Question
	View      assignment.View
}

// LoadAssignments fetches a document's questions and the user directory and
// loads both into the synchronizer. A failed assignment fetch still returns
// the cached view together with the error.
func (a *App) LoadAssignments(ctx context.Context, docID string) (DocumentAssignments, error) {
	details, err := a.Details(ctx, docID, "all")
	if err != nil {
		return DocumentAssignments{}, err
	}
	users, err := a.Users(ctx)
	if err != nil {
		return DocumentAssignments{}, err
	}
	view, err := a.assignments.Load(ctx, docID, details.Questions, users)
	out := DocumentAssignments{Questions: details.Questions, View: view}
	if err != nil {
		return out, a.authFailure(ctx, err)
	}
	return out, nil
}

// Assign gives the question at idx to every named user.
func (a *App) Assign(ctx context.Context, docID string, idx int, usernames []string) (assignment.View, error) {
	if _, err := a.LoadAssignments(ctx, docID); err != nil {
		return assignment.View{}, err
	}
	users, err := a.lookupUsers(ctx, usernames)
	if err != nil {
		return assignment.View{}, err
	}
	if err := a.assignments.Assign(ctx, docID, idx, users); err != nil {
		view, _ := a.assignments.View(docID)
		return view, a.authFailure(ctx, err)
	}
	return a.assignments.View(docID)
}

// Unassign removes one reviewer from the question at idx.
func (a *App) Unassign(ctx context.Context, docID string, idx int, username string) (assignment.View, error) {
	if _, err := a.LoadAssignments(ctx, docID); err != nil {
		return assignment.View{}, err
	}
	users, err := a.lookupUsers(ctx, []string{username})
	if err != nil {
		return assignment.View{}, err
	}
	if err := a.assignments.Unassign(ctx, docID, idx, users[0]); err != nil {
		return assignment.View{}, a.authFailure(ctx, err)
	}
	return a.assignments.View(docID)
}

// AssignText assigns an extracted question, known only by its text.
func (a *App) AssignText(ctx context.Context, question, username string) (string, error) {
	users, err := a.lookupUsers(ctx, []string{username})
	if err != nil {
		return "", err
	}
	label, err := assignment.AssignText(ctx, a.api, question, users[0])
	if err != nil {
		return label, a.authFailure(ctx, err)
	}
	return label, nil
}

// Workload summarises every reviewer's assignments.
func (a *App) Workload(ctx context.Context) ([]domain.ReviewerStats, error) {
	rows, err := a.api.AssignmentStatuses(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("assignment status: %w", err))
	}
	return assignment.Workload(rows), nil
}

// ReviewerQuestions lists one reviewer's assignments in a status.
func (a *App) ReviewerQuestions(ctx context.Context, username string, status domain.SubmissionStatus) ([]domain.ReviewerAssignment, error) {
	rows, err := a.api.AssignmentStatuses(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("assignment status: %w", err))
	}
	return assignment.QuestionsFor(rows, username, status), nil
}

// Questions loads the session user's assigned questions into the tracker.
func (a *App) Questions(ctx context.Context) ([]submission.Item, error) {
	sess, err := a.sessions.Require()
	if err != nil {
		return nil, err
	}
	return a.tracker.Load(ctx, sess.Role)
}

// Counts refreshes the session user's submission counts.
func (a *App) Counts(ctx context.Context) (domain.StatusCounts, error) {
	return a.tracker.Counts(ctx)
}

// DisplayStatus is the label shown for a final status.
func DisplayStatus(status domain.SubmissionStatus) string {
	switch status {
	case domain.StatusSubmitted:
		return "Submitted"
	case domain.StatusNotSubmitted:
		return "Not for Me"
	case domain.StatusSaved:
		return "Saved"
	default:
		return "Pending"
	}
}

// SubmittedQuestions lists final answers across reviewers. A non-empty
// filter keeps only that status.
func (a *App) SubmittedQuestions(ctx context.Context, filter domain.SubmissionStatus) ([]domain.SubmittedQuestion, error) {
	rows, err := a.api.SubmittedAnswers(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("submitted answers: %w", err))
	}
	out := rows[:0:0]
	for _, r := range rows {
		if !r.Status.Terminal() {
			continue
		}
		if filter != "" && r.Status != filter {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (a *App) AdminEditAnswer(ctx context.Context, questionID, answer string) error {
	if strings.TrimSpace(answer) == "" {
		return errors.New("answer is required")
	}
	if err := a.api.AdminEditAnswer(ctx, questionID, answer); err != nil {
		return a.authFailure(ctx, fmt.Errorf("edit answer %s: %w", questionID, err))
	}
	return nil
}

// SendBack returns a final answer to its reviewer for another pass.
func (a *App) SendBack(ctx context.Context, row domain.SubmittedQuestion) error {
	if err := a.api.Reassign(ctx, row.UserID, row.QuestionID, row.FileID); err != nil {
		return a.authFailure(ctx, fmt.Errorf("send back %s: %w", row.QuestionID, err))
	}
	util.LoggerFromContext(ctx).Info("answer sent back", "question_id", row.QuestionID, "user_id", row.UserID)
	return nil
}

func (a *App) Users(ctx context.Context) ([]domain.User, error) {
	users, err := a.api.ListUsers(ctx)
	if err != nil {
		return nil, a.authFailure(ctx, fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

// AddMember registers a team member with a generated password, which is
// returned so it can be handed over.
func (a *App) AddMember(ctx context.Context, username, email string, role domain.UserRole) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return "", errors.New("username and email are required")
	}
	if role == "" {
		role = domain.RoleReviewer
	}
	password, err := auth.GeneratePassword(auth.DefaultGeneratedChars)
	if err != nil {
		return "", err
	}
	reg := apiclient.Registration{Username: username, Email: email, Password: password, Role: role, Mode: "add"}
	if err := a.api.Register(ctx, reg); err != nil {
		return "", a.authFailure(ctx, fmt.Errorf("add member %s: %w", email, err))
	}
	util.LoggerFromContext(ctx).Info("team member added", "email", email, "role", role)
	return password, nil
}

func (a *App) RemoveMember(ctx context.Context, user domain.User) error {
	if err := a.api.DeleteUser(ctx, user.UserID, user.Role); err != nil {
		return a.authFailure(ctx, fmt.Errorf("remove member %s: %w", user.UserID, err))
	}
	return nil
}

// FindUser resolves a username or email from the user directory.
func (a *App) FindUser(ctx context.Context, name string) (domain.User, error) {
	users, err := a.lookupUsers(ctx, []string{name})
	if err != nil {
		return domain.User{}, err
	}
	return users[0], nil
}

func (a *App) lookupUsers(ctx context.Context, names []string) ([]domain.User, error) {
	dir, err := a.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		found := false
		for _, u := range dir {
			if u.Username == name || strings.EqualFold(u.Email, name) {
				out = append(out, u)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownUser, name)
		}
	}
	return out, nil
}
