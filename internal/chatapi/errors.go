package chatapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/wesm/chatline/internal/textutil"
)

// ErrNoConversation is returned when a send is attempted without an open
// conversation.
var ErrNoConversation = eris.New("no conversation open")

// ErrEmptyBody is returned when a message body is blank after trimming.
var ErrEmptyBody = eris.New("message body is empty")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	StatusCode int
	Code       string // "error" field of the JSON body, if any
	Message    string // "message" field, or the raw body
}

func (e *StatusError) Error() string {
	detail := e.Message
	if detail == "" {
		detail = e.Code
	}
	if detail == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, detail)
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// maxErrorBody bounds how much of an error body is kept.
const maxErrorBody = 4096

// handleErrorResponse reads an error response and returns a *StatusError.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body = textutil.DecodeBody(body, resp.Header.Get("Content-Type"))

	se := &StatusError{StatusCode: resp.StatusCode}
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && (apiErr.Error != "" || apiErr.Message != "") {
		se.Code = apiErr.Error
		se.Message = apiErr.Message
		return se
	}
	// HTML error pages can be long; the first line carries the status.
	se.Message = strings.TrimSpace(textutil.FirstLine(string(body)))
	return se
}
