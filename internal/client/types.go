package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LoginRequest is the body of POST /child-login and POST /parent-login
type LoginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// ChildSummary is one entry of a parent's children list
type ChildSummary struct {
	ChildID  int64  `json:"child_id"`
	Username string `json:"username"`
	Fullname string `json:"fullname"`
}

// LoginResponse is the successful login body. Identity fields are optional
// because the child and parent endpoints return different subsets.
type LoginResponse struct {
	AccessToken string         `json:"access_token,omitempty"`
	ChildID     *int64         `json:"child_id,omitempty"`
	ParentID    *int64         `json:"parent_id,omitempty"`
	Username    string         `json:"username"`
	Fullname    string         `json:"fullname"`
	Children    []ChildSummary `json:"children,omitempty"`
}

// ForgotPasswordRequest starts password recovery for either role
type ForgotPasswordRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// VerifyForgotPasswordRequest completes password recovery with the emailed OTP
type VerifyForgotPasswordRequest struct {
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

// ChangeParentPasswordRequest changes a logged-in parent's password
type ChangeParentPasswordRequest struct {
	ParentID    int64  `json:"parent_id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is the generic {"message": ...} acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

var (
	// ErrNetwork marks requests that never produced an HTTP response
	ErrNetwork = errors.New("network error")
	// ErrAccountBlocked is matched by a login rejection mentioning "blocked"
	ErrAccountBlocked = errors.New("account blocked")
)

// Error is a non-2xx response from the backend
type Error struct {
	StatusCode int
	Detail     string // server "detail" message, empty if the body had none
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API error %d", e.StatusCode)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Detail)
}

// Is lets errors.Is(err, ErrAccountBlocked) match blocked-account rejections
func (e *Error) Is(target error) bool {
	return target == ErrAccountBlocked && e.IsBlocked()
}

// IsBlocked reports whether the server said the account is blocked
func (e *Error) IsBlocked() bool {
	return strings.Contains(strings.ToLower(e.Detail), "blocked")
}

// IsForbidden reports a 403 response
func (e *Error) IsForbidden() bool {
	return e.StatusCode == http.StatusForbidden
}

// parseDetail extracts the "detail" message. FastAPI validation errors send
// a list instead of a string; the first entry's msg is used then.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(envelope.Detail, &list); err == nil && len(list) > 0 {
			return list[0].Msg
		}
	}
	return envelope.Message
}
