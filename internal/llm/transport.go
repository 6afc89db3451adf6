package llm

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"ugc-studio/internal/utils"
	"ugc-studio/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const maxLoggedBody = 4 << 10

var sensitiveHeaders = []string{"Authorization", "X-Api-Key", "X-Auth-Token", "Cookie"}

// debugTransport logs outgoing provider requests with credentials redacted.
type debugTransport struct {
	base     http.RoundTripper
	provider string
}

func newDebugTransport(base http.RoundTripper, provider string) *debugTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &debugTransport{base: base, provider: provider}
}

func (t *debugTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	fields := logrus.Fields{
		"provider": t.provider,
		"method":   req.Method,
		"url":      req.URL.String(),
		"headers":  redactHeaders(req.Header),
	}

	if req.Body != nil && req.Method == http.MethodPost {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		fields["size"] = humanize.Bytes(uint64(len(body)))
		if len(body) > maxLoggedBody {
			fields["body"] = string(body[:maxLoggedBody]) + "..."
		} else {
			fields["body"] = string(body)
		}
	}
	logger.WithFields(fields).Info("provider request")

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		logger.WithFields(logrus.Fields{"provider": t.provider}).Errorf("provider request failed: %v", err)
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"provider": t.provider,
		"status":   resp.StatusCode,
		"elapsed":  time.Since(start).String(),
	}).Info("provider response")
	return resp, nil
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[name] = strings.Join(values, ", ")
		for _, s := range sensitiveHeaders {
			if strings.EqualFold(name, s) {
				out[name] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return utils.NewHTTPClient(timeout)
}

func newDebugHTTPClient(timeout time.Duration, provider string) *http.Client {
	c := utils.NewHTTPClient(timeout)
	c.Transport = newDebugTransport(c.Transport, provider)
	return c
}
