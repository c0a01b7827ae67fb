package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// APIError is a non-2xx response from the session engine.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("session engine: %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrSessionExpired) match expiry responses.
func (e *APIError) Unwrap() error {
	if e.Code == "SESSION_EXPIRED" {
		return ErrSessionExpired
	}
	return nil
}

// HTTPEngine calls the student REST API with a bearer token.
type HTTPEngine struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPEngine creates a client for baseURL (e.g. http://localhost:8080).
// A nil client gets a 10 second timeout.
func NewHTTPEngine(baseURL, token string, client *http.Client) *HTTPEngine {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Start opens a session and returns it with the assessment's proctoring flags.
func (e *HTTPEngine) Start(ctx context.Context, assessmentID uuid.UUID) (*model.ExamSession, *model.ProctoringFlags, error) {
	var out struct {
		Session    *model.ExamSession     `json:"session"`
		Proctoring *model.ProctoringFlags `json:"proctoring"`
	}
	if err := e.do(ctx, http.MethodPost, "/api/v1/student/assessments/"+assessmentID.String()+"/sessions", nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Session, out.Proctoring, nil
}

func (e *HTTPEngine) Update(ctx context.Context, sessionID uuid.UUID, req model.UpdateSessionRequest) (*model.ExamSession, error) {
	return e.session(ctx, http.MethodPatch, sessionID, "", req)
}

func (e *HTTPEngine) Pause(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	return e.session(ctx, http.MethodPost, sessionID, "/pause", nil)
}

func (e *HTTPEngine) Resume(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	return e.session(ctx, http.MethodPost, sessionID, "/resume", nil)
}

func (e *HTTPEngine) RecordEvent(ctx context.Context, sessionID uuid.UUID, eventType model.ProctoringEventType, details json.RawMessage) (*model.ProctoringCounters, error) {
	var out struct {
		Counters *model.ProctoringCounters `json:"counters"`
	}
	body := model.RecordEventRequest{Type: eventType, Details: details}
	if err := e.do(ctx, http.MethodPost, sessionPath(sessionID, "/events"), body, &out); err != nil {
		return nil, err
	}
	return out.Counters, nil
}

func (e *HTTPEngine) Complete(ctx context.Context, sessionID uuid.UUID, answers model.Answers) (*model.CompletionResult, error) {
	var out model.CompletionResult
	body := model.CompleteSessionRequest{Answers: answers}
	if err := e.do(ctx, http.MethodPost, sessionPath(sessionID, "/complete"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *HTTPEngine) session(ctx context.Context, method string, id uuid.UUID, suffix string, body any) (*model.ExamSession, error) {
	var out struct {
		Session *model.ExamSession `json:"session"`
	}
	if err := e.do(ctx, method, sessionPath(id, suffix), body, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

func sessionPath(id uuid.UUID, suffix string) string {
	return "/api/v1/student/sessions/" + id.String() + suffix
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *HTTPEngine) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
