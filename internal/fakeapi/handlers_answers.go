package fakeapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rfpdesk/pkg/domain"
)

func versionJSON(v domain.AnswerVersion) map[string]any {
	return map[string]any{
		"id":          num(v.ID),
		"question_id": num(v.QuestionID),
		"answer":      v.Answer,
		"created_at":  v.GeneratedAt.Format(time.RFC3339),
	}
}

// ownQuestion looks up qid with the state lock held and checks the caller may
// work on it. On failure the lock is released and the response written.
func (s *Server) ownQuestion(w http.ResponseWriter, r *http.Request, qid string) (*question, bool) {
	q, ok := s.st.questions[qid]
	if !ok {
		s.st.mu.Unlock()
		writeError(w, http.StatusNotFound, "Question not found")
		return nil, false
	}
	user := currentUser(r)
	if user.Role == domain.RoleAdmin {
		return q, true
	}
	for _, id := range q.assignees {
		if id == user.UserID {
			return q, true
		}
	}
	s.st.mu.Unlock()
	writeError(w, http.StatusForbidden, "Question not assigned to you")
	return nil, false
}

func (s *Server) handleAssignedQuestions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	qs := s.st.assignedTo(currentUser(r).UserID)
	out := make([]map[string]any, 0, len(qs))
	for _, q := range qs {
		out = append(out, questionJSON(q))
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleQuestionsByStatus(w http.ResponseWriter, r *http.Request) {
	var match func(domain.SubmissionStatus) bool
	switch domain.SubmissionStatus(chi.URLParam(r, "status")) {
	case domain.StatusSubmitted:
		match = func(st domain.SubmissionStatus) bool { return st == domain.StatusSubmitted }
	case domain.StatusNotSubmitted:
		match = func(st domain.SubmissionStatus) bool { return st == domain.StatusNotSubmitted }
	case domain.StatusProcess:
		match = func(st domain.SubmissionStatus) bool { return !st.Terminal() }
	default:
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	s.st.mu.Lock()
	out := []map[string]any{}
	for _, q := range s.st.assignedTo(currentUser(r).UserID) {
		if match(q.Status) {
			out = append(out, questionJSON(q))
		}
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "questions": out})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	q, ok := s.ownQuestion(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if q.Status.Terminal() {
		s.st.mu.Unlock()
		writeError(w, http.StatusBadRequest, errAlreadyFinal.Error())
		return
	}
	answer := fmt.Sprintf("Draft response: %s", strings.TrimSuffix(q.Text, "?"))
	s.st.addVersion(q, answer)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		writeValidation(w, "answer is required")
		return
	}
	s.st.mu.Lock()
	q, ok := s.ownQuestion(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := s.st.setAnswer(q, req.Answer, domain.StatusSaved); err != nil {
		s.st.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v := s.st.addVersion(q, req.Answer)
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Answer updated", "version": versionJSON(v)})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	status := domain.SubmissionStatus(r.URL.Query().Get("status"))
	if status != domain.StatusSubmitted && status != domain.StatusNotSubmitted {
		writeValidation(w, "status must be 'submitted' or 'not submitted'")
		return
	}
	var req struct {
		Answer string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	q, ok := s.ownQuestion(w, r, r.URL.Query().Get("question_id"))
	if !ok {
		return
	}
	answer := q.Answer
	if status == domain.StatusSubmitted && req.Answer != "" {
		answer = req.Answer
	}
	if status == domain.StatusNotSubmitted {
		answer = ""
	}
	err := s.st.setAnswer(q, answer, status)
	s.st.mu.Unlock()
	if errors.Is(err, errAlreadyFinal) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.audit(r, "stub.submit", "success", "question_id", q.ID, "status", string(status))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Status updated"})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	q, ok := s.ownQuestion(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	list := s.st.versions[q.ID]
	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		out = append(out, versionJSON(v))
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (s *Server) handleChatInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuesID      string `json:"ques_id"`
		ChatMessage string `json:"chat_message"`
		UserID      string `json:"user_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	msg := strings.TrimSpace(req.ChatMessage)
	if msg == "" {
		writeValidation(w, "chat_message is required")
		return
	}
	s.st.mu.Lock()
	q, ok := s.ownQuestion(w, r, req.QuesID)
	if !ok {
		return
	}
	if q.Status.Terminal() {
		s.st.mu.Unlock()
		writeError(w, http.StatusBadRequest, errAlreadyFinal.Error())
		return
	}
	base := q.Answer
	if base == "" {
		base = strings.TrimSuffix(q.Text, "?")
	}
	v := s.st.addVersion(q, fmt.Sprintf("%s (revised: %s)", base, msg))
	q.Status = domain.StatusSaved
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"message": "Answer refined", "new_answer_version": versionJSON(v)})
}

func (s *Server) handleCheckSubmit(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	rows := []map[string]any{}
	for _, docID := range s.st.docOrder {
		d := s.st.docs[docID]
		for _, qid := range d.questions {
			q := s.st.questions[qid]
			if q.Status == domain.StatusUnset {
				continue
			}
			for _, uid := range q.assignees {
				acc := s.st.accounts[uid]
				rows = append(rows, map[string]any{
					"question_id":  num(qid),
					"question":     q.Text,
					"answer":       q.Answer,
					"status":       string(q.Status),
					"username":     acc.user.Username,
					"user_id":      num(uid),
					"file_id":      num(docID),
					"filename":     d.Filename,
					"submitted_at": q.updatedAt.Format(time.RFC3339),
				})
			}
		}
	}
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": rows})
}

func (s *Server) handleAdminEditAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	q, ok := s.st.questions[req.QuestionID]
	if ok {
		s.st.addVersion(q, req.Answer)
	}
	s.st.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Question not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Answer updated by admin"})
}
