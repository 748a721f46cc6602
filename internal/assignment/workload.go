package assignment

import (
	"context"
	"errors"
	"strings"

	"rfpdesk/internal/util"
	"rfpdesk/pkg/domain"
)

// Workload aggregates assignment rows per reviewer in first-seen order.
// Anything not submitted counts as pending.
func Workload(rows []domain.ReviewerAssignment) []domain.ReviewerStats {
	index := make(map[string]int)
	var out []domain.ReviewerStats
	for _, row := range rows {
		if row.Username == "" {
			continue
		}
		i, ok := index[row.Username]
		if !ok {
			i = len(out)
			index[row.Username] = i
			out = append(out, domain.ReviewerStats{Username: row.Username, Email: row.Email})
		}
		out[i].Total++
		if row.Status == domain.StatusSubmitted {
			out[i].Submitted++
		} else {
			out[i].Pending++
		}
	}
	return out
}

// QuestionsFor returns a reviewer's rows, optionally narrowed to one status.
// StatusProcess matches rows with no status yet.
func QuestionsFor(rows []domain.ReviewerAssignment, username string, status domain.SubmissionStatus) []domain.ReviewerAssignment {
	var out []domain.ReviewerAssignment
	for _, row := range rows {
		if row.Username != username {
			continue
		}
		switch {
		case status == "":
		case status == domain.StatusProcess:
			if row.Status != "" && row.Status != domain.StatusProcess {
				continue
			}
		case row.Status != status:
			continue
		}
		out = append(out, row)
	}
	return out
}

// TextAssigner assigns questions that exist only as extracted text.
type TextAssigner interface {
	AssignQuestionText(ctx context.Context, question string, user domain.User) error
}

// AssignText assigns question text to user and returns the label to show:
// "Assigned to <name>" on success, "Assignment failed" otherwise.
func AssignText(ctx context.Context, api TextAssigner, question string, user domain.User) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("assignment: question text is empty")
	}
	if err := api.AssignQuestionText(ctx, question, user); err != nil {
		util.LoggerFromContext(ctx).Error("assign question text failed", "username", user.Username, "err", err)
		return "Assignment failed", err
	}
	return FormatLabel([]string{user.Username}), nil
}
