package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rfpdesk/pkg/domain"
)

// Response shapes drift between endpoints. Everything below normalizes them
// once so callers only ever see pkg/domain types.

// flexID accepts ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func firstID(ids ...flexID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

// decodeList reads either a bare JSON array or an object wrapping one under
// the first present key. With no keys, "data" and "items" are tried.
func decodeList[T any](data []byte, keys ...string) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if len(keys) == 0 {
		keys = []string{"data", "items"}
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if raw, ok := envelope[key]; ok {
			return decodeList[T](raw)
		}
	}
	return nil, fmt.Errorf("list envelope missing %s", strings.Join(keys, "|"))
}

// stringList accepts an array, a single string, or an object whose string
// values are taken in document order.
func stringList(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
			return nil
		}
		return []string{s}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil && s != "" {
				out = append(out, s)
			}
		}
		return out
	case '{':
		return orderedStringValues(raw)
	}
	return nil
}

func orderedStringValues(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil
	}
	var out []string
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return out
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return out
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil && s != "" {
			out = append(out, s)
		}
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

type userRecord struct {
	UserID      flexID `json:"user_id"`
	UserIDCamel flexID `json:"userId"`
	ID          flexID `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsVerified  bool   `json:"is_verified"`
	ImageURL    string `json:"image_url"`
}

func (r userRecord) toDomain() domain.User {
	return domain.User{
		UserID:     firstID(r.UserID, r.UserIDCamel, r.ID),
		Username:   r.Username,
		Email:      r.Email,
		Role:       domain.UserRole(strings.ToLower(strings.TrimSpace(r.Role))),
		IsVerified: r.IsVerified,
		ImageURL:   r.ImageURL,
	}
}

type questionRecord struct {
	QuesID          flexID `json:"ques_id"`
	QuestionID      flexID `json:"question_id"`
	ID              flexID `json:"id"`
	QuestionIDCamel flexID `json:"questionId"`
	Question        string `json:"question"`
	QuestionText    string `json:"question_text"`
	Section         string `json:"section"`
	FileID          flexID `json:"file_id"`
	RFPID           flexID `json:"rfp_id"`
	Answer          string `json:"answer"`
	Status          string `json:"status"`
	UserID          flexID `json:"user_id"`
	Username        string `json:"username"`
}

func (r questionRecord) toDomain() domain.Question {
	return domain.Question{
		ID:         firstID(r.QuesID, r.QuestionID, r.ID, r.QuestionIDCamel),
		Text:       firstNonEmpty(r.Question, r.QuestionText),
		Section:    r.Section,
		DocumentID: firstID(r.FileID, r.RFPID),
		Answer:     r.Answer,
		Status:     domain.SubmissionStatus(strings.TrimSpace(r.Status)),
		UserID:     string(r.UserID),
		Username:   r.Username,
	}
}

func questionsFrom(records []questionRecord) []domain.Question {
	out := make([]domain.Question, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out
}

type assignmentRecord struct {
	QuesID     flexID `json:"ques_id"`
	QuestionID flexID `json:"question_id"`
	UserID     flexID `json:"user_id"`
	Username   string `json:"username"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (r assignmentRecord) toDomain() domain.Assignment {
	return domain.Assignment{
		QuestionID: firstID(r.QuesID, r.QuestionID),
		UserID:     string(r.UserID),
		Username:   strings.TrimSpace(r.Username),
		Status:     domain.AssignmentStatus(r.Status),
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}
}

type versionRecord struct {
	ID          flexID `json:"id"`
	VersionID   flexID `json:"version_id"`
	QuestionID  flexID `json:"question_id"`
	Answer      string `json:"answer"`
	Response    string `json:"response"`
	GeneratedAt string `json:"generated_at"`
	CreatedAt   string `json:"created_at"`
}

func (r versionRecord) toDomain(questionID string) domain.AnswerVersion {
	qid := string(r.QuestionID)
	if qid == "" {
		qid = questionID
	}
	return domain.AnswerVersion{
		ID:          firstID(r.ID, r.VersionID),
		QuestionID:  qid,
		Answer:      firstNonEmpty(r.Answer, r.Response),
		GeneratedAt: parseTime(firstNonEmpty(r.GeneratedAt, r.CreatedAt)),
	}
}

type documentRecord struct {
	ID          flexID `json:"id"`
	FileID      flexID `json:"file_id"`
	RFPID       flexID `json:"rfp_id"`
	Filename    string `json:"filename"`
	FileName    string `json:"file_name"`
	Name        string `json:"name"`
	ProjectName string `json:"project_name"`
	Category    string `json:"category"`
	UploadedAt  string `json:"uploaded_at"`
	CreatedAt   string `json:"created_at"`
}

func (r documentRecord) toDomain() domain.Document {
	return domain.Document{
		ID:          firstID(r.ID, r.FileID, r.RFPID),
		Filename:    firstNonEmpty(r.Filename, r.FileName, r.Name),
		ProjectName: r.ProjectName,
		Category:    domain.Category(strings.TrimSpace(r.Category)),
		UploadedAt:  parseTime(firstNonEmpty(r.UploadedAt, r.CreatedAt)),
	}
}

type generatedAnswer struct {
	Answer          string `json:"answer"`
	Response        string `json:"response"`
	GeneratedAnswer string `json:"generated_answer"`
}

const defaultGeneratedAnswer = "Generated answer"

func (g generatedAnswer) text() string {
	if s := firstNonEmpty(g.Answer, g.Response, g.GeneratedAnswer); s != "" {
		return s
	}
	return defaultGeneratedAnswer
}

type duplicateDetail struct {
	Detail json.RawMessage `json:"detail"`
}

func (d duplicateDetail) duplicate() bool {
	if len(d.Detail) == 0 {
		return false
	}
	var obj struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(d.Detail, &obj); err != nil {
		return false
	}
	return obj.Status == "duplicate"
}

type uploadResponse struct {
	duplicateDetail
	ID             flexID          `json:"id"`
	FileID         flexID          `json:"file_id"`
	Summary        string          `json:"summary"`
	TotalQuestions json.RawMessage `json:"total_questions"`
	Questions      json.RawMessage `json:"questions"`
	QuestionList   json.RawMessage `json:"question_list"`
}

func (u uploadResponse) questions() []string {
	if qs := stringList(u.TotalQuestions); len(qs) > 0 {
		return qs
	}
	if qs := stringList(u.Questions); len(qs) > 0 {
		return qs
	}
	return stringList(u.QuestionList)
}

type historyUploadResponse struct {
	ID            flexID `json:"id"`
	Filename      string `json:"filename"`
	ExtractedText struct {
		Summary   string          `json:"summary"`
		Checklist json.RawMessage `json:"checklist"`
		Responses json.RawMessage `json:"responses"`
	} `json:"extracted_text"`
}

type completionRecord struct {
	Status               string  `json:"status"`
	AssignedTo           *string `json:"assignedTo"`
	LastUpdated          string  `json:"lastUpdated"`
	CompletionPercentage float64 `json:"completionPercentage"`
}

type submittedRecord struct {
	QuestionID  flexID `json:"question_id"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Status      string `json:"status"`
	Username    string `json:"username"`
	UserID      flexID `json:"user_id"`
	FileID      flexID `json:"file_id"`
	Filename    string `json:"filename"`
	SubmittedAt string `json:"submitted_at"`
}

type reportRecord struct {
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
	CreatedAt   string `json:"created_at"`
}
