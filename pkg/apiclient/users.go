package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"rfpdesk/pkg/domain"
)

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/userdetails", nil, &raw); err != nil {
		return nil, err
	}
	records, err := decodeList[userRecord](raw, "data", "users", "items")
	if err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	users := make([]domain.User, 0, len(records))
	for _, r := range records {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var rec userRecord
	path := "/userdetails/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return domain.User{}, err
	}
	user := rec.toDomain()
	if user.UserID == "" {
		user.UserID = userID
	}
	return user, nil
}

func (c *Client) DeleteUser(ctx context.Context, userID string, role domain.UserRole) error {
	payload := map[string]string{"user_id": userID, "role": string(role)}
	return c.doJSON(ctx, http.MethodDelete, "/delete-reviewer_user", payload, nil)
}

// Download fetches an absolute or base-relative URL with the session's
// credentials and streams the body to w.
func (c *Client) Download(ctx context.Context, target string, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		msg, code := parseErrorBody(data)
		if msg == "" {
			msg = resp.Status
		}
		return 0, &APIError{Status: resp.StatusCode, Message: msg, Code: code}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download body: %w", err)
	}
	return n, nil
}
