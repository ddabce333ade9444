package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/pkg/models"
)

func newTestClient(url string) *HTTPClient {
	return NewHTTPClient(url, 2*time.Second, 2*time.Second)
}

func TestSubmit_Responses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		expectError   bool
		errorContains string
		expectSync    bool
		expectTarget  string
	}{
		{
			name:       "synchronous success",
			status:     200,
			body:       `{"success":true,"synchronous":true,"result_url":"https://cdn.example/x.jpg"}`,
			expectSync: true,
		},
		{
			name:         "asynchronous with status token",
			status:       202,
			body:         `{"success":true,"synchronous":false,"result_url":"https://cdn.example/y.png","status_token":"job-1"}`,
			expectTarget: "job-1",
		},
		{
			name:         "asynchronous falls back to result url",
			status:       200,
			body:         `{"success":true,"synchronous":false,"result_url":"https://cdn.example/y.png"}`,
			expectTarget: "https://cdn.example/y.png",
		},
		{
			name:          "application failure",
			status:        200,
			body:          `{"success":false,"message":"quota exceeded"}`,
			expectError:   true,
			errorContains: "quota exceeded",
		},
		{
			name:          "server error",
			status:        503,
			body:          `oops`,
			expectError:   true,
			errorContains: "status 503",
		},
		{
			name:          "sync without url",
			status:        200,
			body:          `{"success":true,"synchronous":true}`,
			expectError:   true,
			errorContains: "without result URL",
		},
		{
			name:          "garbage body",
			status:        200,
			body:          `not json`,
			expectError:   true,
			errorContains: "invalid submit response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != submitPath {
					t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
				}
				var req SubmitRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("Failed to decode request: %v", err)
				}
				if req.Kind != models.KindBackgroundRemoval {
					t.Errorf("Expected kind %s, got %s", models.KindBackgroundRemoval, req.Kind)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(server.URL)
			result, err := client.Submit(context.Background(), SubmitRequest{
				Kind:     models.KindBackgroundRemoval,
				ImageURL: "https://cdn.example/in.jpg",
			})

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, but got none")
				}
				if !apperrors.IsType(err, apperrors.ErrorTypeSubmission) {
					t.Errorf("Expected submission error, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("Expected error to contain '%s', got: %s", tt.errorContains, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got: %s", err.Error())
			}
			if result.Synchronous != tt.expectSync {
				t.Errorf("Expected synchronous=%v, got %v", tt.expectSync, result.Synchronous)
			}
			if !tt.expectSync && result.PollTarget() != tt.expectTarget {
				t.Errorf("Expected poll target %s, got %s", tt.expectTarget, result.PollTarget())
			}
		})
	}
}

func TestSubmit_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Submit(context.Background(), SubmitRequest{Kind: models.KindEnhancement})
	if !apperrors.IsType(err, apperrors.ErrorTypeSubmission) {
		t.Errorf("Expected submission error, got %v", err)
	}
}

func TestStatus_Classification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		expectType apperrors.ErrorType
		expectOK   bool
	}{
		{"ready", 200, `{"ready":true,"success":true,"processed_url":"https://cdn.example/z.png"}`, "", true},
		{"processing", 200, `{"ready":false,"success":true}`, "", true},
		{"server error is transient", 502, `bad gateway`, apperrors.ErrorTypeTransientPoll, false},
		{"rate limit is transient", 429, ``, apperrors.ErrorTypeTransientPoll, false},
		{"not found is permanent", 404, ``, apperrors.ErrorTypePermanentPoll, false},
		{"gone is permanent", 410, ``, apperrors.ErrorTypePermanentPoll, false},
		{"garbage is transient", 200, `<html>`, apperrors.ErrorTypeTransientPoll, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("target"); got != "https://cdn.example/y.png?tr=e-bgremove" {
					t.Errorf("Unexpected target %q", got)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			status, err := newTestClient(server.URL).Status(context.Background(), "https://cdn.example/y.png?tr=e-bgremove")
			if tt.expectOK {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				if tt.name == "ready" && status.ResolvedURL() != "https://cdn.example/z.png" {
					t.Errorf("Unexpected resolved URL %s", status.ResolvedURL())
				}
				return
			}
			if !apperrors.IsType(err, tt.expectType) {
				t.Errorf("Expected %s error, got %v", tt.expectType, err)
			}
		})
	}
}

func TestStatus_DeduplicatesConcurrentChecks(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write([]byte(`{"ready":false,"success":true}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Status(context.Background(), "job-1"); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}

	// Let every goroutine join the shared call before answering
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := requests.Load(); got != 1 {
		t.Errorf("Expected 1 shared request, got %d", got)
	}
}

func TestStatus_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(server.URL).Status(ctx, "job-2")
	if !apperrors.IsCancellation(err) {
		t.Errorf("Expected cancellation error, got %v", err)
	}
}

func TestStatus_CancelledCallerDoesNotAbortSharedCheck(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		w.Write([]byte(`{"ready":true,"success":true,"processed_url":"https://cdn.example/out.png"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()

	firstErr := make(chan error, 1)
	go func() {
		_, err := client.Status(first, "job-3")
		firstErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	type outcome struct {
		status *StatusResult
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		status, err := client.Status(context.Background(), "job-3")
		second <- outcome{status, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !apperrors.IsCancellation(err) {
		t.Errorf("Expected the cancelled caller to see a cancellation, got %v", err)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("Expected the other caller to get the shared result, got %v", got.err)
	}
	if got.status.ResolvedURL() != "https://cdn.example/out.png" {
		t.Errorf("Unexpected status %+v", got.status)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("Expected 1 shared request, got %d", n)
	}
}

func TestStatusResult_ResolvedURL(t *testing.T) {
	s := StatusResult{ResultURL: "r", EnhancedURL: "e"}
	if s.ResolvedURL() != "e" {
		t.Errorf("Expected enhanced URL to win over result URL, got %s", s.ResolvedURL())
	}
	s.ProcessedURL = "p"
	if s.ResolvedURL() != "p" {
		t.Errorf("Expected processed URL to win, got %s", s.ResolvedURL())
	}
}
