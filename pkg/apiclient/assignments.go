package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"rfpdesk/pkg/domain"
)

func (c *Client) AssignedReviewers(ctx context.Context, docID string) ([]domain.Assignment, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/assigned-reviewers/"+url.PathEscape(docID), nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[assignmentRecord](raw, "data", "reviewers")
	if err != nil {
		return nil, fmt.Errorf("decode assigned reviewers: %w", err)
	}
	out := make([]domain.Assignment, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// AssignReviewers assigns every user in userIDs to one question in a single
// request.
func (c *Client) AssignReviewers(ctx context.Context, docID, questionID string, userIDs []string) error {
	payload := struct {
		UserIDs     []string                `json:"user_id"`
		QuestionIDs []string                `json:"ques_ids"`
		FileID      string                  `json:"file_id"`
		Status      domain.AssignmentStatus `json:"status"`
	}{
		UserIDs:     userIDs,
		QuestionIDs: []string{questionID},
		FileID:      docID,
		Status:      domain.AssignmentAssign,
	}
	return c.doJSON(ctx, http.MethodPost, "/assign-reviewer", payload, nil)
}

func (c *Client) RemoveReviewer(ctx context.Context, questionID, userID string) error {
	q := url.Values{}
	q.Set("ques_id", questionID)
	q.Set("user_id", userID)
	return c.doJSON(ctx, http.MethodDelete, "/reviewer-remove?"+q.Encode(), nil, nil)
}

func (c *Client) NotifyAssignment(ctx context.Context, questionID string, userIDs []string) error {
	payload := struct {
		UserIDs     []string `json:"user_id"`
		QuestionIDs []string `json:"ques_ids"`
	}{UserIDs: userIDs, QuestionIDs: []string{questionID}}
	return c.doJSON(ctx, http.MethodPost, "/send-assignment-notification", payload, nil)
}

// AssignQuestionText assigns a question known only by its text, as returned
// by the upload extraction.
func (c *Client) AssignQuestionText(ctx context.Context, question string, user domain.User) error {
	payload := map[string]string{
		"question": question,
		"username": user.Username,
		"email":    user.Email,
	}
	return c.doJSON(ctx, http.MethodPost, "/assign-question", payload, nil)
}

type reviewerAssignmentRecord struct {
	QuesID     flexID `json:"ques_id"`
	QuestionID flexID `json:"question_id"`
	ID         flexID `json:"id"`
	Question   string `json:"question"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	UserID     flexID `json:"user_id"`
	FileID     flexID `json:"file_id"`
	Status     string `json:"status"`
}

// AssignmentStatuses lists every assignment with its reviewer and status.
func (c *Client) AssignmentStatuses(ctx context.Context) ([]domain.ReviewerAssignment, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/assign_user_status", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[reviewerAssignmentRecord](raw)
	if err != nil {
		return nil, fmt.Errorf("decode assignment status: %w", err)
	}
	out := make([]domain.ReviewerAssignment, 0, len(records))
	for _, r := range records {
		out = append(out, domain.ReviewerAssignment{
			QuestionID: firstID(r.QuesID, r.QuestionID, r.ID),
			Question:   r.Question,
			Username:   r.Username,
			Email:      r.Email,
			UserID:     string(r.UserID),
			FileID:     string(r.FileID),
			Status:     domain.SubmissionStatus(r.Status),
		})
	}
	return out, nil
}

// Reassign sends an answered question back to its reviewer.
func (c *Client) Reassign(ctx context.Context, userID, questionID, fileID string) error {
	payload := map[string]string{"user_id": userID, "ques_id": questionID, "file_id": fileID}
	return c.doJSON(ctx, http.MethodPost, "/reassign", payload, nil)
}

// AssignedQuestions lists the questions assigned to the session user.
func (c *Client) AssignedQuestions(ctx context.Context) ([]domain.Question, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/assigned-questions", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[questionRecord](raw, "data", "questions")
	if err != nil {
		return nil, fmt.Errorf("decode assigned questions: %w", err)
	}
	return questionsFrom(records), nil
}

// QuestionsByStatus returns the session user's questions in one submission
// state together with the server's count for it.
func (c *Client) QuestionsByStatus(ctx context.Context, status domain.SubmissionStatus) ([]domain.Question, int, error) {
	if status == domain.StatusUnset {
		status = domain.StatusProcess
	}
	var resp struct {
		Count     int              `json:"count"`
		Questions []questionRecord `json:"questions"`
	}
	path := "/filter-questions-by-user/" + url.PathEscape(string(status))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return questionsFrom(resp.Questions), resp.Count, nil
}
