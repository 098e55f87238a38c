package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport logs each outgoing request at debug level and failures at warn.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger log.FieldLogger
}

// NewLoggingTransport wraps base with request logging.
func NewLoggingTransport(base http.RoundTripper, logger log.FieldLogger) *LoggingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LoggingTransport{Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	fields := log.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
		"token":  TokenKindFromContext(req.Context()).String(),
	}

	resp, err := t.Base.RoundTrip(req)
	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		t.Logger.WithFields(fields).WithError(err).Warn("API request failed")
		return nil, err
	}

	fields["status"] = resp.StatusCode
	entry := t.Logger.WithFields(fields)
	if resp.StatusCode >= http.StatusBadRequest {
		entry.Warn("API request rejected")
	} else {
		entry.Debug("API request")
	}
	return resp, nil
}
