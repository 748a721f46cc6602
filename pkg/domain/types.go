package domain

import "time"

type Category string

const (
	CategoryHistory      Category = "history"
	CategoryClean        Category = "clean"
	CategoryTraining     Category = "training"
	CategoryLearning     Category = "learning"
	CategoryUploadCenter Category = "UploadCenter"
)

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleReviewer UserRole = "reviewer"
	RoleMember   UserRole = "member"
)

// SubmissionStatus is the server-side status of an answer.
// The empty value means untouched; the filter endpoints call it "process".
type SubmissionStatus string

const (
	StatusUnset        SubmissionStatus = ""
	StatusSaved        SubmissionStatus = "saved"
	StatusSubmitted    SubmissionStatus = "submitted"
	StatusNotSubmitted SubmissionStatus = "not submitted"
	StatusProcess      SubmissionStatus = "process"
)

// Terminal reports whether no further submission is allowed.
func (s SubmissionStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusNotSubmitted
}

type AssignmentStatus string

const (
	AssignmentAssign   AssignmentStatus = "assign"
	AssignmentAssigned AssignmentStatus = "assigned"
)

type Session struct {
	Email    string   `json:"email"`
	Token    string   `json:"token"`
	Role     UserRole `json:"role"`
	UserID   string   `json:"userId"`
	ImageURL string   `json:"image_url,omitempty"`
}

// Valid reports whether the session can authenticate requests.
func (s Session) Valid() bool {
	return s.Token != ""
}

type SavedCredentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type User struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	IsVerified bool     `json:"is_verified"`
	ImageURL   string   `json:"image_url,omitempty"`
}

type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ProjectName string    `json:"project_name,omitempty"`
	Category    Category  `json:"category"`
	UploadedAt  time.Time `json:"uploaded_at,omitempty"`
}

type Question struct {
	ID         string           `json:"id"`
	Text       string           `json:"question"`
	Section    string           `json:"section,omitempty"`
	DocumentID string           `json:"file_id,omitempty"`
	Answer     string           `json:"answer,omitempty"`
	Status     SubmissionStatus `json:"status,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	Username   string           `json:"username,omitempty"`
}

type Section struct {
	Name      string     `json:"section"`
	Questions []Question `json:"questions"`
}

// DocumentDetails is a document's questions grouped by section plus the
// flattened list in server order.
type DocumentDetails struct {
	Sections  []Section  `json:"sections"`
	Questions []Question `json:"questions"`
}

type Assignment struct {
	QuestionID string           `json:"ques_id"`
	UserID     string           `json:"user_id"`
	Username   string           `json:"username"`
	Status     AssignmentStatus `json:"status,omitempty"`
	CreatedAt  time.Time        `json:"created_at,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at,omitempty"`
}

type AnswerVersion struct {
	ID          string    `json:"id"`
	QuestionID  string    `json:"question_id,omitempty"`
	Answer      string    `json:"answer"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

type StatusCounts struct {
	Submitted    int `json:"submitted"`
	NotSubmitted int `json:"notSubmitted"`
	Process      int `json:"process"`
	Total        int `json:"total"`
}

type ReviewerStats struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Total     int    `json:"total"`
	Submitted int    `json:"submitted"`
	Pending   int    `json:"pending"`
}

type SubmittedQuestion struct {
	QuestionID   string           `json:"question_id"`
	Question     string           `json:"question"`
	Answer       string           `json:"answer"`
	Status       SubmissionStatus `json:"status"`
	Username     string           `json:"username"`
	UserID       string           `json:"user_id"`
	FileID       string           `json:"file_id"`
	DocumentName string           `json:"document_name"`
	SubmittedAt  string           `json:"submitted_at,omitempty"`
}

type CompletionState string

const (
	CompletionDone       CompletionState = "completed"
	CompletionInProgress CompletionState = "in_progress"
	CompletionNotStarted CompletionState = "not_started"
)

type CompletionEntry struct {
	QuestionID  string          `json:"question_id"`
	Question    string          `json:"question,omitempty"`
	Status      CompletionState `json:"status"`
	AssignedTo  string          `json:"assignedTo,omitempty"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
	Percentage  int             `json:"completionPercentage"`
}

type ReportDoc struct {
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// UploadResult is the normalized outcome of one RFP upload.
type UploadResult struct {
	Filename  string   `json:"filename"`
	Duplicate bool     `json:"duplicate"`
	Summary   string   `json:"summary,omitempty"`
	Questions []string `json:"questions,omitempty"`
	DocID     string   `json:"doc_id,omitempty"`
}

// HistoryUpload is the outcome of a plain document upload.
type HistoryUpload struct {
	ID        string   `json:"id"`
	Filename  string   `json:"filename"`
	Summary   string   `json:"summary,omitempty"`
	Checklist []string `json:"checklist,omitempty"`
	Responses []string `json:"responses,omitempty"`
}

// ReviewerAssignment is one row of the per-reviewer assignment listing.
type ReviewerAssignment struct {
	QuestionID string           `json:"question_id"`
	Question   string           `json:"question"`
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	UserID     string           `json:"user_id"`
	FileID     string           `json:"file_id"`
	Status     SubmissionStatus `json:"status"`
}
