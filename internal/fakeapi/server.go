// Package fakeapi is an in-memory RFP backend serving the endpoints the
// dashboard client uses. It backs rfpstub and the end-to-end tests.
package fakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"rfpdesk/internal/ratelimit"
	"rfpdesk/internal/util"
	"rfpdesk/pkg/domain"
)

// Config wires optional dependencies for the stub server.
type Config struct {
	TokenTTL     time.Duration
	LoginLimiter *ratelimit.FixedWindowLimiter
	Seed         []SeedUser
}

// SeedUser is an account created at startup.
type SeedUser struct {
	Username string
	Email    string
	Password string
	Role     domain.UserRole
}

// Server is the in-memory backend.
type Server struct {
	st           *state
	tokens       *tokens
	loginLimiter *ratelimit.FixedWindowLimiter
	router       chi.Router
}

type ctxKey struct{}

func New(cfg Config) (*Server, error) {
	toks, err := newTokens(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	s := &Server{
		st:           newState(),
		tokens:       toks,
		loginLimiter: cfg.LoginLimiter,
		router:       chi.NewRouter(),
	}
	for _, u := range cfg.Seed {
		if _, err := s.st.createAccount(u.Username, u.Email, u.Password, u.Role); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("rfpstub", util.WithCORS(s.router)))
}

// Notifications returns the user id lists passed to the notification
// endpoint, in call order.
func (s *Server) Notifications() [][]string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([][]string, len(s.st.notified))
	copy(out, s.st.notified)
	return out
}

// PendingOTP returns the one-time code issued to email, if any.
func (s *Server) PendingOTP(email string) string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if acc := s.st.accountByEmail(email); acc != nil {
		return acc.otp
	}
	return ""
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", s.handleHealth)
	r.Get("/.well-known/jwks.json", s.handleJWKS)

	r.Post("/login", s.handleLogin)
	r.Post("/register", s.handleRegister)
	r.Post("/forgot_password", s.handleForgotPassword)
	r.Post("/verify_otp", s.handleVerifyOTP)
	r.Post("/reset_password", s.handleResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)
		r.Put("/change-password", s.handleChangePassword)
		r.Put("/update-profile", s.handleUpdateProfile)
		r.Get("/userdetails", s.handleListUsers)
		r.Get("/userdetails/{id}", s.handleGetUser)

		r.Get("/filedetails", s.handleListDocuments)
		r.Post("/upload", s.handleUploadHistory)
		r.Post("/search-related-summary/", s.handleUploadRFP)
		r.Post("/upload-library", s.handleUploadLibrary)
		r.Get("/rfpdetails/{id}/{status}", s.handleDocumentDetails)
		r.Get("/filter/{id}", s.handleDocumentCounts)
		r.Get("/completion-status/{id}", s.handleCompletionStatus)
		r.Get("/assigned-reviewers/{id}", s.handleAssignedReviewers)
		r.Post("/send-assignment-notification", s.handleNotify)

		r.Get("/assigned-questions", s.handleAssignedQuestions)
		r.Get("/filter-questions-by-user/{status}", s.handleQuestionsByStatus)
		r.Get("/generate-answers/{id}", s.handleGenerate)
		r.Patch("/update-answer/{id}", s.handleUpdateAnswer)
		r.Patch("/submit", s.handleSubmit)
		r.Get("/answers/{id}/versions", s.handleVersions)
		r.Post("/questions/chat_input", s.handleChatInput)
		r.Post("/analyze-question", s.handleAnalyzeQuestion)
		r.Get("/list-rfp-docs/", s.handleListReports)
		r.Get("/download/{name}", s.handleDownload)

		r.Group(func(r chi.Router) {
			r.Use(s.adminOnly)
			r.Delete("/delete-reviewer_user", s.handleDeleteUser)
			r.Delete("/rfp/{id}", s.handleDeleteDocument)
			r.Post("/assign-reviewer", s.handleAssignReviewer)
			r.Delete("/reviewer-remove", s.handleRemoveReviewer)
			r.Post("/assign-question", s.handleAssignQuestion)
			r.Get("/assign_user_status", s.handleAssignmentStatus)
			r.Post("/reassign", s.handleReassign)
			r.Get("/check_submit", s.handleCheckSubmit)
			r.Patch("/admin/edit-answer", s.handleAdminEditAnswer)
			r.Post("/admin/analyze-answers", s.handleAnalyzeAnswers)
			r.Post("/generate-rfp-doc/", s.handleGenerateReport)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, s.tokens.jwks())
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "stub.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		userID, err := s.tokens.subject(token)
		if err != nil {
			s.audit(r, "stub.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		s.st.mu.Lock()
		acc, ok := s.st.accounts[userID]
		var user domain.User
		if ok {
			user = acc.user
		}
		s.st.mu.Unlock()
		if !ok {
			s.audit(r, "stub.authorize", "fail", "reason", "unknown_user")
			writeError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if currentUser(r).Role != domain.RoleAdmin {
			s.audit(r, "stub.admin.authorize", "fail", "user_id", currentUser(r).UserID)
			writeError(w, http.StatusForbidden, "Not enough permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) domain.User {
	u, _ := r.Context().Value(ctxKey{}).(domain.User)
	return u
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	args := append([]any{"event", event, "outcome", outcome, "method", r.Method, "path", r.URL.Path}, attrs...)
	util.LoggerFromContext(r.Context()).Info("audit", args...)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeValidation mirrors the list-shaped detail of a schema validation
// failure.
func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]string{{"msg": msg}},
	})
}

// num renders numeric ids as JSON numbers, as the real backend does.
func num(id string) any {
	if n, err := strconv.Atoi(id); err == nil {
		return n
	}
	return id
}
