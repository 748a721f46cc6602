package fakeapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rfpdesk/pkg/domain"
)

const maxUploadBytes = 32 << 20

func questionJSON(q *question) map[string]any {
	return map[string]any{
		"ques_id":  num(q.ID),
		"question": q.Text,
		"section":  q.Section,
		"file_id":  num(q.DocumentID),
		"answer":   q.Answer,
		"status":   string(q.Status),
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	out := make([]map[string]any, 0, len(s.st.docOrder))
	for _, id := range s.st.docOrder {
		d := s.st.docs[id]
		out = append(out, map[string]any{
			"id":           num(d.ID),
			"filename":     d.Filename,
			"project_name": d.ProjectName,
			"category":     string(d.Category),
			"uploaded_at":  d.UploadedAt.Format(time.RFC3339),
		})
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func readUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Server) handleUploadRFP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeValidation(w, "file is required")
		return
	}
	project := strings.TrimSpace(r.FormValue("project_name"))
	filename := filepath.Base(files[0].Filename)
	text, err := readUpload(files[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	s.st.mu.Lock()
	if s.st.findDocument(project, filename) != nil {
		s.st.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]any{
			"detail": map[string]string{"status": "duplicate", "message": fmt.Sprintf("%s already exists", filename)},
		})
		return
	}
	category := domain.Category(r.FormValue("category"))
	if category == "" {
		category = domain.CategoryUploadCenter
	}
	d := s.st.addDocument(project, filename, category)
	questions := s.st.extractQuestions(d, text)
	s.st.mu.Unlock()

	s.audit(r, "stub.upload", "success", "doc_id", d.ID, "questions", len(questions))
	writeJSON(w, http.StatusOK, map[string]any{
		"id":              num(d.ID),
		"summary":         fmt.Sprintf("%d questions extracted from %s", len(questions), filename),
		"total_questions": questions,
	})
}

func (s *Server) handleUploadHistory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		writeValidation(w, "file is required")
		return
	}
	filename := filepath.Base(files[0].Filename)
	text, err := readUpload(files[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}
	var summary string
	checklist := []string{}
	responses := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case summary == "":
			summary = line
		case strings.HasPrefix(line, "- "):
			checklist = append(checklist, strings.TrimPrefix(line, "- "))
		default:
			responses = append(responses, line)
		}
	}
	s.st.mu.Lock()
	d := s.st.addDocument("", filename, domain.CategoryHistory)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       num(d.ID),
		"filename": filename,
		"extracted_text": map[string]any{
			"summary":   summary,
			"checklist": checklist,
			"responses": responses,
		},
	})
}

func (s *Server) handleUploadLibrary(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	category := domain.Category(strings.TrimSpace(r.FormValue("category")))
	if category == "" {
		writeValidation(w, "category is required")
		return
	}
	project := strings.TrimSpace(r.FormValue("project_name"))
	files := r.MultipartForm.File["files"]
	s.st.mu.Lock()
	for _, fh := range files {
		s.st.addDocument(project, filepath.Base(fh.Filename), category)
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Files uploaded", "count": len(files)})
}

func (s *Server) document(w http.ResponseWriter, id string) (*document, bool) {
	d, ok := s.st.docs[id]
	if !ok {
		s.st.mu.Unlock()
		writeError(w, http.StatusNotFound, "RFP not found")
		return nil, false
	}
	return d, true
}

func (s *Server) handleDocumentDetails(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	keep := map[string]func(*question) bool{
		"all":        func(*question) bool { return true },
		"assigned":   func(q *question) bool { return len(q.assignees) > 0 },
		"unassigned": func(q *question) bool { return len(q.assignees) == 0 },
		"submitted":  func(q *question) bool { return q.Status == domain.StatusSubmitted },
	}[status]
	if keep == nil {
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}
	s.st.mu.Lock()
	d, ok := s.document(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	sections := s.st.sections(d, keep)
	groups := make([]map[string]any, 0, len(sections))
	for _, sec := range sections {
		qs := make([]map[string]any, 0, len(sec.Questions))
		for _, q := range sec.Questions {
			qs = append(qs, questionJSON(s.st.questions[q.ID]))
		}
		groups = append(groups, map[string]any{"section": sec.Name, "questions": qs})
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"questions_by_section": groups})
}

func (s *Server) handleDocumentCounts(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	d, ok := s.document(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	assigned := 0
	for _, qid := range d.questions {
		if len(s.st.questions[qid].assignees) > 0 {
			assigned++
		}
	}
	total := len(d.questions)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{
		"assigned_count":   assigned,
		"unassigned_count": total - assigned,
		"total_questions":  total,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.st.mu.Lock()
	err := s.st.deleteDocument(id)
	s.st.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusNotFound, "RFP not found")
		return
	}
	s.audit(r, "stub.rfp.delete", "success", "doc_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "RFP deleted successfully"})
}

func (s *Server) handleCompletionStatus(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	d, ok := s.document(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	out := make(map[string]any, len(d.questions))
	for _, qid := range d.questions {
		q := s.st.questions[qid]
		state, pct := domain.CompletionNotStarted, 0
		switch {
		case q.Status.Terminal():
			state, pct = domain.CompletionDone, 100
		case q.Answer != "":
			state, pct = domain.CompletionInProgress, 50
		}
		var assignedTo any
		if names := s.st.usernames(q.assignees); len(names) > 0 {
			assignedTo = strings.Join(names, ", ")
		}
		out[qid] = map[string]any{
			"status":               string(state),
			"assignedTo":           assignedTo,
			"lastUpdated":          q.updatedAt.Format(time.RFC3339),
			"completionPercentage": pct,
		}
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAssignedReviewers(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	d, ok := s.document(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	rows := []map[string]any{}
	for _, qid := range d.questions {
		q := s.st.questions[qid]
		for _, uid := range q.assignees {
			acc := s.st.accounts[uid]
			rows = append(rows, map[string]any{
				"ques_id":  num(qid),
				"user_id":  num(uid),
				"username": acc.user.Username,
				"status":   string(domain.AssignmentAssigned),
			})
		}
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleAssignReviewer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs     []string `json:"user_id"`
		QuestionIDs []string `json:"ques_ids"`
		FileID      string   `json:"file_id"`
		Status      string   `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 || len(req.QuestionIDs) == 0 {
		writeValidation(w, "user_id and ques_ids are required")
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for _, uid := range req.UserIDs {
		if _, ok := s.st.accounts[uid]; !ok {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
	}
	for _, qid := range req.QuestionIDs {
		q, ok := s.st.questions[qid]
		if !ok || (req.FileID != "" && q.DocumentID != req.FileID) {
			writeError(w, http.StatusNotFound, "Question not found")
			return
		}
	}
	for _, qid := range req.QuestionIDs {
		for _, uid := range req.UserIDs {
			s.st.assign(qid, uid)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reviewers assigned successfully"})
}

func (s *Server) handleRemoveReviewer(w http.ResponseWriter, r *http.Request) {
	qid := r.URL.Query().Get("ques_id")
	uid := r.URL.Query().Get("user_id")
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	q, ok := s.st.questions[qid]
	if !ok {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	before := len(q.assignees)
	q.assignees = without(q.assignees, uid)
	if len(q.assignees) == before {
		writeError(w, http.StatusNotFound, errNotAssigned.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Reviewer removed successfully"})
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs     []string `json:"user_id"`
		QuestionIDs []string `json:"ques_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	s.st.notified = append(s.st.notified, append([]string(nil), req.UserIDs...))
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification sent"})
}

func (s *Server) handleAssignQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	acc := s.st.accountByEmail(req.Email)
	if acc == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	text := strings.TrimSpace(req.Question)
	for _, docID := range s.st.docOrder {
		for _, qid := range s.st.docs[docID].questions {
			if s.st.questions[qid].Text == text {
				s.st.assign(qid, acc.user.UserID)
				writeJSON(w, http.StatusOK, map[string]any{"message": "Question assigned", "ques_id": num(qid)})
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "Question not found")
}

func (s *Server) handleAssignmentStatus(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	rows := []map[string]any{}
	for _, docID := range s.st.docOrder {
		for _, qid := range s.st.docs[docID].questions {
			q := s.st.questions[qid]
			for _, uid := range q.assignees {
				acc := s.st.accounts[uid]
				rows = append(rows, map[string]any{
					"ques_id":  num(qid),
					"question": q.Text,
					"username": acc.user.Username,
					"email":    acc.user.Email,
					"user_id":  num(uid),
					"file_id":  num(q.DocumentID),
					"status":   string(q.Status),
				})
			}
		}
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		QuesID string `json:"ques_id"`
		FileID string `json:"file_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	q, ok := s.st.questions[req.QuesID]
	if !ok {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	if _, ok := s.st.accounts[req.UserID]; !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	q.Status = domain.StatusUnset
	q.updatedAt = time.Now().UTC()
	s.st.assign(q.ID, req.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Question reassigned"})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	d, ok := s.document(w, r.URL.Query().Get("rfp_id"))
	if !ok {
		return
	}
	rep := s.st.buildReport(d)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"message":      "Document generated successfully",
		"file_name":    rep.FileName,
		"download_url": rep.DownloadURL,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	docs := make([]domain.ReportDoc, 0, len(s.st.reports))
	for _, rep := range s.st.reports {
		docs = append(docs, rep.ReportDoc)
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"docs": docs})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.st.mu.Lock()
	var body []byte
	for _, rep := range s.st.reports {
		if rep.FileName == name {
			body = rep.body
		}
	}
	s.st.mu.Unlock()
	if body == nil {
		writeError(w, http.StatusNotFound, "Report not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(body)
}

func (s *Server) handleAnalyzeAnswers(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	d, ok := s.document(w, r.URL.Query().Get("rfp_id"))
	if !ok {
		return
	}
	answered := 0
	rows := make([]map[string]any, 0, len(d.questions))
	for _, qid := range d.questions {
		q := s.st.questions[qid]
		words := len(strings.Fields(q.Answer))
		if words > 0 {
			answered++
		}
		rows = append(rows, map[string]any{
			"question_id": num(qid),
			"status":      string(q.Status),
			"words":       words,
		})
	}
	total := len(d.questions)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"rfp_id":    num(d.ID),
		"answered":  answered,
		"total":     total,
		"summary":   fmt.Sprintf("%d of %d questions have answers", answered, total),
		"questions": rows,
	})
}

func (s *Server) handleAnalyzeQuestion(w http.ResponseWriter, r *http.Request) {
	qid := r.URL.Query().Get("question_id")
	s.st.mu.Lock()
	q, ok := s.st.questions[qid]
	var answer string
	if ok {
		answer = q.Answer
	}
	s.st.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	feedback := "Answer is missing."
	if n := len(strings.Fields(answer)); n > 0 {
		feedback = fmt.Sprintf("Answer has %d words.", n)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_id": num(qid),
		"rfp_id":      r.URL.Query().Get("rfp_id"),
		"feedback":    feedback,
	})
}
