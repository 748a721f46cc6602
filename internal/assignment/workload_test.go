package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfpdesk/pkg/domain"
)

func TestWorkloadAggregatesInFirstSeenOrder(t *testing.T) {
	rows := []domain.ReviewerAssignment{
		{Username: "amy", Email: "amy@x.io", Status: domain.StatusSubmitted},
		{Username: "bob", Status: domain.StatusNotSubmitted},
		{Username: "amy", Status: ""},
		{Username: "", Status: domain.StatusSubmitted},
	}
	got := Workload(rows)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ReviewerStats{Username: "amy", Email: "amy@x.io", Total: 2, Submitted: 1, Pending: 1}, got[0])
	assert.Equal(t, domain.ReviewerStats{Username: "bob", Total: 1, Pending: 1}, got[1])
}

func TestQuestionsForFiltersByStatus(t *testing.T) {
	rows := []domain.ReviewerAssignment{
		{QuestionID: "1", Username: "amy", Status: domain.StatusSubmitted},
		{QuestionID: "2", Username: "amy", Status: ""},
		{QuestionID: "3", Username: "amy", Status: domain.StatusProcess},
		{QuestionID: "4", Username: "bob"},
	}
	assert.Len(t, QuestionsFor(rows, "amy", ""), 3)
	assert.Len(t, QuestionsFor(rows, "amy", domain.StatusSubmitted), 1)
	process := QuestionsFor(rows, "amy", domain.StatusProcess)
	require.Len(t, process, 2)
	assert.Equal(t, "2", process[0].QuestionID)
}

type textAPI struct{ err error }

func (t textAPI) AssignQuestionText(ctx context.Context, question string, user domain.User) error {
	return t.err
}

func TestAssignText(t *testing.T) {
	label, err := AssignText(context.Background(), textAPI{}, "Q?", domain.User{Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "Assigned to bob", label)

	label, err = AssignText(context.Background(), textAPI{err: errors.New("nope")}, "Q?", domain.User{Username: "bob"})
	assert.Error(t, err)
	assert.Equal(t, "Assignment failed", label)
}
