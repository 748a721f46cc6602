package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"rfpdesk/pkg/domain"
)

func (c *Client) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/filedetails", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[documentRecord](raw, "data", "files", "items")
	if err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	docs := make([]domain.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.toDomain())
	}
	return docs, nil
}

// DocumentDetails fetches a document's questions, filtered by the server-side
// status view ("all", "assigned", ...), and flattens the section groups in
// order with the section name copied onto each question.
func (c *Client) DocumentDetails(ctx context.Context, docID, status string) (domain.DocumentDetails, error) {
	if strings.TrimSpace(status) == "" {
		status = "all"
	}
	var resp struct {
		QuestionsBySection []struct {
			Section   string           `json:"section"`
			Questions []questionRecord `json:"questions"`
		} `json:"questions_by_section"`
	}
	path := fmt.Sprintf("/rfpdetails/%s/%s", url.PathEscape(docID), url.PathEscape(status))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.DocumentDetails{}, err
	}
	details := domain.DocumentDetails{}
	for _, group := range resp.QuestionsBySection {
		section := domain.Section{Name: group.Section}
		for _, rec := range group.Questions {
			q := rec.toDomain()
			q.Section = group.Section
			if q.DocumentID == "" {
				q.DocumentID = docID
			}
			section.Questions = append(section.Questions, q)
			details.Questions = append(details.Questions, q)
		}
		details.Sections = append(details.Sections, section)
	}
	return details, nil
}

// DocumentCounts is the /filter summary for one document.
type DocumentCounts struct {
	Assigned   int `json:"assigned_count"`
	Unassigned int `json:"unassigned_count"`
	Total      int `json:"total_questions"`
}

func (c *Client) DocumentCounts(ctx context.Context, docID string) (DocumentCounts, error) {
	var counts DocumentCounts
	if err := c.doJSON(ctx, http.MethodGet, "/filter/"+url.PathEscape(docID), nil, &counts); err != nil {
		return DocumentCounts{}, err
	}
	return counts, nil
}

func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/rfp/"+url.PathEscape(docID), nil, nil)
}

// CompletionStatus returns per-question completion sorted by question id.
func (c *Client) CompletionStatus(ctx context.Context, docID string) ([]domain.CompletionEntry, error) {
	var resp map[string]completionRecord
	if err := c.doJSON(ctx, http.MethodGet, "/completion-status/"+url.PathEscape(docID), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.CompletionEntry, 0, len(resp))
	for qid, rec := range resp {
		entry := domain.CompletionEntry{
			QuestionID:  qid,
			Status:      domain.CompletionState(rec.Status),
			LastUpdated: rec.LastUpdated,
			Percentage:  int(rec.CompletionPercentage),
		}
		if rec.AssignedTo != nil {
			entry.AssignedTo = *rec.AssignedTo
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// UploadFile is one file handed to an upload endpoint.
type UploadFile struct {
	Name string
	Body io.Reader
}

// UploadRFP sends one RFP to the extraction endpoint. A duplicate is not an
// error: the result comes back with Duplicate set.
func (c *Client) UploadRFP(ctx context.Context, projectName string, file UploadFile) (domain.UploadResult, error) {
	fields := []formField{
		{name: "project_name", value: projectName},
		{name: "category", value: string(domain.CategoryUploadCenter)},
	}
	files := []formFile{{field: "file", filename: file.Name, r: file.Body}}
	var resp uploadResponse
	err := c.doMultipart(ctx, http.MethodPost, "/search-related-summary/", fields, files, &resp)
	if err != nil {
		if IsDuplicate(err) {
			return domain.UploadResult{Filename: file.Name, Duplicate: true}, nil
		}
		return domain.UploadResult{}, err
	}
	if resp.duplicate() {
		return domain.UploadResult{Filename: file.Name, Duplicate: true}, nil
	}
	return domain.UploadResult{
		Filename:  file.Name,
		Summary:   resp.Summary,
		Questions: resp.questions(),
		DocID:     firstID(resp.ID, resp.FileID),
	}, nil
}

// UploadHistory sends a past RFP to /upload and returns the extracted text.
func (c *Client) UploadHistory(ctx context.Context, file UploadFile) (domain.HistoryUpload, error) {
	files := []formFile{{field: "file", filename: file.Name, r: file.Body}}
	var resp historyUploadResponse
	if err := c.doMultipart(ctx, http.MethodPost, "/upload", nil, files, &resp); err != nil {
		return domain.HistoryUpload{}, err
	}
	name := resp.Filename
	if name == "" {
		name = file.Name
	}
	return domain.HistoryUpload{
		ID:        string(resp.ID),
		Filename:  name,
		Summary:   resp.ExtractedText.Summary,
		Checklist: stringList(resp.ExtractedText.Checklist),
		Responses: stringList(resp.ExtractedText.Responses),
	}, nil
}

// UploadLibrary adds reference documents to a knowledge category.
func (c *Client) UploadLibrary(ctx context.Context, category domain.Category, projectName string, uploads []UploadFile) error {
	if len(uploads) == 0 {
		return nil
	}
	fields := []formField{
		{name: "category", value: string(category)},
		{name: "project_name", value: projectName},
	}
	files := make([]formFile, 0, len(uploads))
	for _, u := range uploads {
		files = append(files, formFile{field: "files", filename: u.Name, r: u.Body})
	}
	return c.doMultipart(ctx, http.MethodPost, "/upload-library", fields, files, nil)
}

// AnalyzeAnswers runs the AI review over a document's answers. The result is
// returned verbatim; its shape is owned by the backend.
func (c *Client) AnalyzeAnswers(ctx context.Context, docID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("rfp_id", docID)
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/admin/analyze-answers?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// AnalyzeQuestion runs the AI review over one answered question.
func (c *Client) AnalyzeQuestion(ctx context.Context, docID, questionID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("rfp_id", docID)
	q.Set("question_id", questionID)
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, "/analyze-question?"+q.Encode(), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GeneratedReport is the /generate-rfp-doc/ acknowledgement.
type GeneratedReport struct {
	Message     string `json:"message"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
}

func (c *Client) GenerateReport(ctx context.Context, docID string) (GeneratedReport, error) {
	q := url.Values{}
	q.Set("rfp_id", docID)
	var out GeneratedReport
	if err := c.doJSON(ctx, http.MethodPost, "/generate-rfp-doc/?"+q.Encode(), nil, &out); err != nil {
		return GeneratedReport{}, err
	}
	return out, nil
}

func (c *Client) ListReports(ctx context.Context) ([]domain.ReportDoc, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/list-rfp-docs/", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[reportRecord](raw, "docs", "data")
	if err != nil {
		return nil, fmt.Errorf("decode reports: %w", err)
	}
	out := make([]domain.ReportDoc, 0, len(records))
	for _, r := range records {
		out = append(out, domain.ReportDoc{FileName: r.FileName, DownloadURL: r.DownloadURL, CreatedAt: r.CreatedAt})
	}
	return out, nil
}
