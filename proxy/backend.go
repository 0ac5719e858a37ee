package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxDetailLen bounds how much backend output is echoed back in errors
const maxDetailLen = 2048

// Response is the analysis backend's reply
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// AnalysisBackend runs an analysis for a validated request. Implementations
// return a *BackendError when the engine cannot be reached or fails.
type AnalysisBackend interface {
	Analyze(ctx context.Context, req *Request) (*Response, error)
}

// ErrorKind classifies backend failures
type ErrorKind int

const (
	// ErrUnreachable means the engine could not be contacted or started
	ErrUnreachable ErrorKind = iota + 1
	// ErrBadStatus means the engine answered with a non-2xx status
	ErrBadStatus
	// ErrInvalidResponse means the engine answered 2xx with a non-JSON body
	ErrInvalidResponse
	// ErrFailed covers everything else
	ErrFailed
)

// BackendError is a request-scoped failure to obtain an analysis
type BackendError struct {
	Kind       ErrorKind
	StatusCode int
	Detail     string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (backend status %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Message is the client-facing summary of the failure
func (e *BackendError) Message() string {
	switch e.Kind {
	case ErrUnreachable:
		return "Cannot connect to analysis service. Please try again later."
	case ErrBadStatus:
		return "Backend analysis service unavailable"
	case ErrInvalidResponse:
		return "Backend returned an invalid response"
	default:
		if e.Detail != "" {
			return "Failed to analyze files: " + e.Detail
		}
		return "Failed to analyze files"
	}
}

// HTTPStatus is the status reported to the client
func (e *BackendError) HTTPStatus() int {
	switch e.Kind {
	case ErrUnreachable:
		return http.StatusServiceUnavailable
	case ErrBadStatus, ErrInvalidResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Forward sends req to backend and returns its JSON reply untouched. Any
// failure, including a panic inside the backend, comes back as a
// *BackendError.
func Forward(ctx context.Context, backend AnalysisBackend, req *Request) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &BackendError{Kind: ErrFailed, Detail: fmt.Sprint(r)}
		}
	}()

	resp, err = backend.Analyze(ctx, req)
	if err != nil {
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			return nil, backendErr
		}
		return nil, &BackendError{Kind: ErrFailed, Detail: err.Error(), Err: err}
	}
	if resp == nil {
		return nil, &BackendError{Kind: ErrInvalidResponse, Detail: "empty response"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{
			Kind:       ErrBadStatus,
			StatusCode: resp.StatusCode,
			Detail:     truncate(string(resp.Body)),
		}
	}
	if !json.Valid(resp.Body) {
		return nil, &BackendError{
			Kind:       ErrInvalidResponse,
			StatusCode: resp.StatusCode,
			Detail:     truncate(string(resp.Body)),
		}
	}
	return resp, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "..."
	}
	return s
}
