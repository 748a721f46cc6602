package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// APIError represents a backend error response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

const (
	msgAuthFailed       = "Authentication failed. Please log in again."
	msgPermissionDenied = "Permission denied. Please check your account permissions or log in again."
	msgInvalidRequest   = "Invalid request. Please try again or contact support."
)

// AsAPIError unwraps err into an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuth reports whether err means the session is no longer usable (401/403).
func IsAuth(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsInvalid reports a 422 validation rejection.
func IsInvalid(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusUnprocessableEntity
}

// IsDuplicate reports an upload rejected because the file already exists.
func IsDuplicate(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Code == "duplicate"
}

// IsNotFound reports a 404.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Status == http.StatusNotFound
}

// UserMessage maps err to the text shown next to the affected item.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		return err.Error()
	}
	switch apiErr.Status {
	case http.StatusUnauthorized:
		return msgAuthFailed
	case http.StatusForbidden:
		return msgPermissionDenied
	case http.StatusUnprocessableEntity:
		return msgInvalidRequest
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return http.StatusText(apiErr.Status)
}

// errorBody covers the shapes the backend uses for failures:
// {"error","code"}, {"detail": "text"}, {"detail": {"status","message"}}
// and validation lists {"detail": [{"msg": ...}]}.
type errorBody struct {
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

func parseErrorBody(data []byte) (msg, code string) {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return "", ""
	}
	msg = firstNonEmpty(body.Error, body.Message)
	code = strings.TrimSpace(body.Code)
	if len(body.Detail) == 0 {
		return msg, code
	}
	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return firstNonEmpty(text, msg), code
	}
	var obj struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &obj); err == nil && (obj.Status != "" || obj.Message != "" || obj.Msg != "") {
		return firstNonEmpty(obj.Message, obj.Msg, msg, obj.Status), firstNonEmpty(strings.TrimSpace(obj.Status), code)
	}
	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &list); err == nil && len(list) > 0 {
		return firstNonEmpty(list[0].Msg, msg), code
	}
	return msg, code
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
