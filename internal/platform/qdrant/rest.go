package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/yungbote/decisiontrace-backend/internal/platform/ctxutil"
)

const (
	maxErrorBodyBytes    = 1024
	maxResponseBodyBytes = 64 * maxErrorBodyBytes
)

// restClient speaks the Qdrant REST envelope: {"result": ..., "status": ..., "time": ...}.
type restClient struct {
	base string
	hc   *http.Client
}

// envelopeStatus accepts both the "ok" string form and the {"error": "..."} object form.
type envelopeStatus struct {
	failure string
}

func (s *envelopeStatus) UnmarshalJSON(raw []byte) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	var word string
	if json.Unmarshal(raw, &word) == nil {
		if !strings.EqualFold(word, "ok") {
			s.failure = fmt.Sprintf("qdrant status=%q", word)
		}
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &obj) == nil && strings.TrimSpace(obj.Error) != "" {
		s.failure = strings.TrimSpace(obj.Error)
		return nil
	}
	s.failure = "qdrant status=" + trimmed
	return nil
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status envelopeStatus  `json:"status"`
}

func (c restClient) ready(ctx context.Context, op string) error {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, c.base+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return transportError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if !statusOK(resp.StatusCode) {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

// call sends in as JSON and decodes the envelope's result into out. Either may be nil.
func (c restClient) call(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.base+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return transportError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if !statusOK(resp.StatusCode) {
		snippet := raw
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, snippet),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if env.Status.failure != "" {
		return &OperationError{Code: OperationErrorQueryFailed, Operation: op, StatusCode: resp.StatusCode, Message: env.Status.failure}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func statusOK(code int) bool { return code >= 200 && code < 300 }

// transportError separates deadline failures from other transport failures.
func transportError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}
