package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gridprobe/gridprobe/internal/core"
)

// maxErrorBody caps how much of a provider error response we read back.
const maxErrorBody = 8 << 10

// httpCaller wraps the shared HTTP plumbing both protocol adapters use:
// auth from the environment, SSE request setup, and error classification.
type httpCaller struct {
	settings Settings
	client   *http.Client
}

func newHTTPCaller(settings Settings) *httpCaller {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	return &httpCaller{
		settings: settings,
		// Per-request deadlines come from the context so a single
		// timeout covers the whole streamed response, not just the
		// connection phase.
		client: &http.Client{},
	}
}

func (h *httpCaller) apiKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(h.settings.APIKeyEnv))
	if key == "" {
		return "", core.ErrValidation(core.CodeInvalidConfig,
			fmt.Sprintf("provider %s: environment variable %s is not set", h.settings.Name, h.settings.APIKeyEnv))
	}
	return key, nil
}

// openStream issues a streaming POST and returns the response body on 200.
// Any non-200 response is read, classified, and returned as an error.
func (h *httpCaller) openStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	key, err := h.apiKey()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.ErrInternal("encode request").WithCause(err)
	}

	url := strings.TrimRight(h.settings.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.ErrInternal("build request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, h.classifyTransport(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, h.classifyStatus(resp.StatusCode, raw)
	}
	return resp.Body, nil
}

// classifyTransport maps network-level failures. Context cancellation is
// passed through untouched so callers can tell a user cancel from a wire
// failure.
func (h *httpCaller) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return core.ErrTransport(
				fmt.Sprintf("provider %s: request deadline exceeded", h.settings.Name)).WithCause(err)
		}
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return core.ErrTransport(fmt.Sprintf("provider %s: request failed", h.settings.Name)).WithCause(err)
}

func (h *httpCaller) classifyStatus(status int, body []byte) error {
	detail := providerErrorDetail(body)
	switch {
	case status == http.StatusTooManyRequests:
		return core.ErrRateLimited(fmt.Sprintf("provider %s: rate limited: %s", h.settings.Name, detail))
	case status >= 500:
		return core.ErrTransport(
			fmt.Sprintf("provider %s: server error (status %d): %s", h.settings.Name, status, detail))
	case isHandleError(detail):
		return core.ErrSchemaViolation(core.CodeHandleRejected,
			fmt.Sprintf("provider %s: continuation handle rejected: %s", h.settings.Name, detail))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.ErrTransport(
			fmt.Sprintf("provider %s: authentication failed (status %d)", h.settings.Name, status))
	default:
		return core.ErrSchemaViolation(core.CodeMalformedPayload,
			fmt.Sprintf("provider %s: request rejected (status %d): %s", h.settings.Name, status, detail))
	}
}

// isHandleError detects a provider refusing a previous_response_id, which is
// how an expired or foreign continuation handle surfaces.
func isHandleError(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "previous_response")
}

// providerErrorDetail pulls a human-readable message out of a provider error
// body, falling back to the raw text.
func providerErrorDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Code != "" {
			return envelope.Error.Code + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "no error detail"
	}
	return trimmed
}

// sseEvent is one server-sent event: an optional event name and the
// concatenated data payload.
type sseEvent struct {
	name string
	data string
}

// readSSE consumes a text/event-stream body, invoking handle for every
// complete event. A [DONE] sentinel ends the stream cleanly. handle may
// return io.EOF to stop early without error.
func readSSE(ctx context.Context, body io.Reader, handle func(sseEvent) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), 4<<20)

	var current sseEvent
	var data strings.Builder
	flush := func() error {
		if data.Len() == 0 {
			current = sseEvent{}
			return nil
		}
		current.data = data.String()
		data.Reset()
		if current.data == "[DONE]" {
			return io.EOF
		}
		err := handle(current)
		current = sseEvent{}
		return err
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, "event:"):
			current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.ErrTransport("event stream interrupted").WithCause(err)
	}
	// Stream ended mid-event: flush whatever accumulated.
	if err := flush(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
