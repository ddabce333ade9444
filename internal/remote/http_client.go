package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	apperrors "go-image-editor/internal/errors"
	"go-image-editor/internal/logger"
)

const (
	submitPath = "/v1/transformations"
	statusPath = "/v1/transformations/status"

	// maxResponseBytes caps how much of a service response is read
	maxResponseBytes = 1 << 20
)

// HTTPClient implements Service over JSON/HTTP
type HTTPClient struct {
	baseURL       string
	client        *http.Client
	submitTimeout time.Duration
	statusTimeout time.Duration
	inflight      singleflight.Group
	log           *logrus.Entry
}

// NewHTTPClient creates a client for the service rooted at baseURL
func NewHTTPClient(baseURL string, submitTimeout, statusTimeout time.Duration) *HTTPClient {
	transport := &http.Transport{
		// One editor talks to one service host
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: submitTimeout,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 8192,
	}

	return &HTTPClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		submitTimeout: submitTimeout,
		statusTimeout: statusTimeout,
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		log: logger.ForComponent("remote"),
	}
}

// Submit sends one transformation request. It is never retried here: a
// duplicate submit would start a second job on the service.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode submit request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewSubmissionError("invalid processing service URL", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if apperrors.IsCancellation(err) {
			return nil, apperrors.NewCancellationError("submit cancelled", err)
		}
		return nil, apperrors.NewSubmissionError("processing service unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewSubmissionError("failed to read submit response", err)
	}

	c.log.WithFields(logrus.Fields{
		"kind":        req.Kind,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Submit response received")

	var result SubmitResult
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("processing service returned status %d", resp.StatusCode)
		if decodeErr == nil && result.Message != "" {
			msg = result.Message
		}
		return nil, apperrors.NewSubmissionError(msg, nil)
	}
	if decodeErr != nil {
		return nil, apperrors.NewSubmissionError("invalid submit response", decodeErr)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "processing service rejected the request"
		}
		return nil, apperrors.NewSubmissionError(msg, nil)
	}
	if result.Synchronous && result.ResultURL == "" {
		return nil, apperrors.NewSubmissionError("synchronous response without result URL", nil)
	}
	if !result.Synchronous && result.PollTarget() == "" {
		return nil, apperrors.NewSubmissionError("asynchronous response without poll target", nil)
	}
	return &result, nil
}

// Status asks whether target is ready. Concurrent calls for the same target
// share one HTTP request. The shared request is detached from every caller's
// cancellation and bounded by the status timeout only; each caller still
// returns as soon as its own context is done.
func (c *HTTPClient) Status(ctx context.Context, target string) (*StatusResult, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(target, func() (interface{}, error) {
		reqCtx, cancel := context.WithTimeout(shared, c.statusTimeout)
		defer cancel()
		return c.fetchStatus(reqCtx, target)
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.NewCancellationError("status check cancelled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		status := *res.Val.(*StatusResult)
		return &status, nil
	}
}

func (c *HTTPClient) fetchStatus(ctx context.Context, target string) (*StatusResult, error) {
	endpoint := c.baseURL + statusPath + "?target=" + url.QueryEscape(target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.NewPermanentPollError("invalid status URL", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, apperrors.NewCancellationError("status check aborted", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTransientPollError("status check timed out", err)
		}
		return nil, apperrors.NewTransientPollError("status check failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewTransientPollError("failed to read status response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, apperrors.NewTransientPollError(fmt.Sprintf("server error: status code %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.NewTransientPollError("rate limited by processing service", nil)
	case resp.StatusCode >= 400:
		return nil, apperrors.NewPermanentPollError(fmt.Sprintf("client error: status code %d", resp.StatusCode), nil)
	}

	var status StatusResult
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, apperrors.NewTransientPollError("invalid status response", err)
	}
	return &status, nil
}
