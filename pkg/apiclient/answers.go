package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"rfpdesk/pkg/domain"
)

// GenerateAnswer asks the backend to draft an answer for a question.
func (c *Client) GenerateAnswer(ctx context.Context, questionID string) (string, error) {
	var resp generatedAnswer
	if err := c.doJSON(ctx, http.MethodGet, "/generate-answers/"+url.PathEscape(questionID), nil, &resp); err != nil {
		return "", err
	}
	return resp.text(), nil
}

// UpdateAnswer saves a draft. The returned version is nil when the backend
// did not echo one.
func (c *Client) UpdateAnswer(ctx context.Context, questionID, answer string) (*domain.AnswerVersion, error) {
	var resp struct {
		Version *versionRecord `json:"version"`
	}
	payload := map[string]string{"answer": answer}
	if err := c.doJSON(ctx, http.MethodPatch, "/update-answer/"+url.PathEscape(questionID), payload, &resp); err != nil {
		return nil, err
	}
	if resp.Version == nil {
		return nil, nil
	}
	v := resp.Version.toDomain(questionID)
	return &v, nil
}

// Submit records a final status for a question. For StatusSubmitted the
// answer is sent; for StatusNotSubmitted the body is empty.
func (c *Client) Submit(ctx context.Context, questionID string, status domain.SubmissionStatus, answer string) error {
	q := url.Values{}
	q.Set("question_id", questionID)
	q.Set("status", string(status))
	payload := map[string]string{}
	if status == domain.StatusSubmitted {
		payload["answer"] = answer
	}
	return c.doJSON(ctx, http.MethodPatch, "/submit?"+q.Encode(), payload, nil)
}

// AnswerVersions lists saved versions newest first.
func (c *Client) AnswerVersions(ctx context.Context, questionID string) ([]domain.AnswerVersion, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/answers/%s/versions", url.PathEscape(questionID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[versionRecord](raw, "versions", "data")
	if err != nil {
		return nil, fmt.Errorf("decode versions: %w", err)
	}
	out := make([]domain.AnswerVersion, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain(questionID))
	}
	return out, nil
}

// RefineAnswer sends a free-text instruction for the answer. The new version
// is nil when the backend produced none.
func (c *Client) RefineAnswer(ctx context.Context, questionID, userID, message string) (*domain.AnswerVersion, error) {
	payload := map[string]string{
		"ques_id":      questionID,
		"chat_message": message,
		"user_id":      userID,
	}
	var resp struct {
		NewAnswerVersion *versionRecord `json:"new_answer_version"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/questions/chat_input", payload, &resp); err != nil {
		return nil, err
	}
	if resp.NewAnswerVersion == nil {
		return nil, nil
	}
	v := resp.NewAnswerVersion.toDomain(questionID)
	if v.Answer == "" {
		return nil, nil
	}
	return &v, nil
}

// SubmittedAnswers lists every reviewer answer with its status (admin view).
func (c *Client) SubmittedAnswers(ctx context.Context) ([]domain.SubmittedQuestion, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/check_submit", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[submittedRecord](raw)
	if err != nil {
		return nil, fmt.Errorf("decode submitted answers: %w", err)
	}
	out := make([]domain.SubmittedQuestion, 0, len(records))
	for _, r := range records {
		out = append(out, domain.SubmittedQuestion{
			QuestionID:   string(r.QuestionID),
			Question:     r.Question,
			Answer:       r.Answer,
			Status:       domain.SubmissionStatus(r.Status),
			Username:     r.Username,
			UserID:       string(r.UserID),
			FileID:       string(r.FileID),
			DocumentName: r.Filename,
			SubmittedAt:  r.SubmittedAt,
		})
	}
	return out, nil
}

func (c *Client) AdminEditAnswer(ctx context.Context, questionID, answer string) error {
	payload := map[string]string{"question_id": questionID, "answer": answer}
	return c.doJSON(ctx, http.MethodPatch, "/admin/edit-answer", payload, nil)
}
