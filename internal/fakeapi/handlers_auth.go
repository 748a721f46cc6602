package fakeapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"rfpdesk/internal/util"
	"rfpdesk/pkg/auth"
	"rfpdesk/pkg/domain"
)

func userJSON(u domain.User) map[string]any {
	return map[string]any{
		"user_id":     num(u.UserID),
		"username":    u.Username,
		"email":       u.Email,
		"role":        string(u.Role),
		"is_verified": u.IsVerified,
		"image_url":   u.ImageURL,
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if s.loginLimiter != nil && !s.loginLimiter.Allow(r.Context(), "login:"+email) {
		s.audit(r, "stub.login", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}
	s.st.mu.Lock()
	acc := s.st.accountByEmail(email)
	var user domain.User
	ok := acc != nil && auth.CheckPassword(req.Password, acc.passwordHash)
	if ok {
		user = acc.user
	}
	s.st.mu.Unlock()
	if !ok {
		s.audit(r, "stub.login", "fail", "email", email)
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token, err := s.tokens.issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	if s.loginLimiter != nil {
		if err := s.loginLimiter.Reset(r.Context(), "login:"+email); err != nil {
			util.LoggerFromContext(r.Context()).Warn("reset login limiter failed", "err", err)
		}
	}
	s.audit(r, "stub.login", "success", "user_id", user.UserID)
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user_id":      num(user.UserID),
		"role":         string(user.Role),
		"image_url":    user.ImageURL,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
		Mode     string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" {
		writeValidation(w, "username and email are required")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, auth.ErrPasswordTooShort.Error())
		return
	}
	s.st.mu.Lock()
	acc, err := s.st.createAccount(req.Username, req.Email, req.Password, domain.UserRole(strings.ToLower(req.Role)))
	s.st.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.audit(r, "stub.register", "success", "user_id", acc.user.UserID, "mode", req.Mode)
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user_id": num(acc.user.UserID)})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	code, err := oneTimeCode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "otp generation failed")
		return
	}
	s.st.mu.Lock()
	acc := s.st.accountByEmail(req.Email)
	if acc != nil {
		acc.otp = code
		acc.otpVerified = false
	}
	s.st.mu.Unlock()
	if acc == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent to your email"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.st.mu.Lock()
	acc := s.st.accountByEmail(req.Email)
	ok := acc != nil && acc.otp != "" && acc.otp == strings.TrimSpace(req.OTP)
	if ok {
		acc.otpVerified = true
		acc.otp = ""
	}
	s.st.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.NewPassword) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, auth.ErrPasswordTooShort.Error())
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failed")
		return
	}
	s.st.mu.Lock()
	acc := s.st.accountByEmail(req.Email)
	ok := acc != nil && acc.otpVerified
	if ok {
		acc.passwordHash = hash
		acc.otpVerified = false
	}
	s.st.mu.Unlock()
	if !ok {
		writeError(w, http.StatusBadRequest, "OTP verification required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := auth.ValidateChange(req.OldPassword, req.NewPassword, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash failed")
		return
	}
	s.st.mu.Lock()
	acc := s.st.accounts[currentUser(r).UserID]
	if acc == nil || !auth.CheckPassword(req.OldPassword, acc.passwordHash) {
		err = errWrongPassword
	} else {
		acc.passwordHash = hash
	}
	s.st.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	imageName := ""
	if file, header, err := r.FormFile("image"); err == nil {
		_, _ = io.Copy(io.Discard, file)
		file.Close()
		imageName = filepath.Base(header.Filename)
	}
	s.st.mu.Lock()
	acc := s.st.accounts[currentUser(r).UserID]
	if v := strings.TrimSpace(r.FormValue("username")); v != "" {
		acc.user.Username = v
	}
	if v := strings.TrimSpace(r.FormValue("email")); v != "" {
		if other := s.st.accountByEmail(v); other != nil && other != acc {
			s.st.mu.Unlock()
			writeError(w, http.StatusBadRequest, errEmailTaken.Error())
			return
		}
		acc.user.Email = v
	}
	if imageName != "" {
		acc.user.ImageURL = fmt.Sprintf("/images/%s/%s", acc.user.UserID, imageName)
	}
	user := acc.user
	s.st.mu.Unlock()
	writeJSON(w, http.StatusOK, userJSON(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	users := s.st.listUsers()
	s.st.mu.Unlock()
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.st.mu.Lock()
	acc, ok := s.st.accounts[id]
	var user domain.User
	if ok {
		user = acc.user
	}
	s.st.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, userJSON(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == currentUser(r).UserID {
		writeError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}
	s.st.mu.Lock()
	err := s.st.deleteAccount(req.UserID)
	s.st.mu.Unlock()
	if errors.Is(err, errNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	s.audit(r, "stub.user.delete", "success", "user_id", req.UserID, "role", req.Role)
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

func oneTimeCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
