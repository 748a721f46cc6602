package apiclient

import (
	"context"
	"io"
	"net/http"
	"strings"

	"rfpdesk/pkg/domain"
)

// LoginResult is the normalized /login response. Role may be empty when the
// backend omits it.
type LoginResult struct {
	Token    string
	UserID   string
	Role     domain.UserRole
	ImageURL string
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      flexID `json:"user_id"`
	Role        string `json:"role"`
	ImageURL    string `json:"image_url"`
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/login", payload, &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:    resp.AccessToken,
		UserID:   string(resp.UserID),
		Role:     domain.UserRole(strings.ToLower(strings.TrimSpace(resp.Role))),
		ImageURL: resp.ImageURL,
	}, nil
}

// Registration is the body of /register. Mode "add" marks an admin adding a
// team member rather than a self sign-up.
type Registration struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     domain.UserRole `json:"role"`
	Mode     string          `json:"mode,omitempty"`
}

func (c *Client) Register(ctx context.Context, reg Registration) error {
	return c.doJSON(ctx, http.MethodPost, "/register", reg, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/forgot_password", map[string]string{"email": email}, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, email, otp string) error {
	payload := map[string]string{"email": email, "otp": otp}
	return c.doJSON(ctx, http.MethodPost, "/verify_otp", payload, nil)
}

func (c *Client) ResetPassword(ctx context.Context, email, newPassword string) error {
	payload := map[string]string{"email": email, "new_password": newPassword}
	return c.doJSON(ctx, http.MethodPost, "/reset_password", payload, nil)
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	payload := map[string]string{"old_password": oldPassword, "new_password": newPassword}
	return c.doJSON(ctx, http.MethodPut, "/change-password", payload, nil)
}

// ProfileUpdate carries the optional fields of /update-profile. A nil Image
// leaves the picture unchanged.
type ProfileUpdate struct {
	Username  string
	Email     string
	ImageName string
	Image     io.Reader
}

func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (domain.User, error) {
	var fields []formField
	if upd.Username != "" {
		fields = append(fields, formField{name: "username", value: upd.Username})
	}
	if upd.Email != "" {
		fields = append(fields, formField{name: "email", value: upd.Email})
	}
	var files []formFile
	if upd.Image != nil {
		files = append(files, formFile{field: "image", filename: upd.ImageName, r: upd.Image})
	}
	var rec userRecord
	if err := c.doMultipart(ctx, http.MethodPut, "/update-profile", fields, files, &rec); err != nil {
		return domain.User{}, err
	}
	return rec.toDomain(), nil
}
