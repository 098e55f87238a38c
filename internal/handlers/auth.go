package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/auth"
)

var (
	ErrStateMismatch = errors.New("authorization state mismatch")
	ErrLoginTimeout  = errors.New("timed out waiting for sign-in")
)

// ProviderError is an error returned by the identity provider on the redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return e.Code
	}
	return "Login error"
}

// Exchanger trades an authorization code for tokens.
type Exchanger interface {
	Exchange(ctx context.Context, code, verifier string) (*auth.Tokens, error)
}

// CallbackResult is the outcome of one redirect.
type CallbackResult struct {
	Tokens *auth.Tokens
	Err    error
}

// CallbackHandler receives the loopback redirect of an authorization-code attempt.
type CallbackHandler struct {
	exchanger Exchanger
	request   *auth.AuthRequest
	results   chan CallbackResult
	once      sync.Once
}

// NewCallbackHandler creates a handler bound to one auth request.
func NewCallbackHandler(exchanger Exchanger, request *auth.AuthRequest) *CallbackHandler {
	return &CallbackHandler{
		exchanger: exchanger,
		request:   request,
		results:   make(chan CallbackResult, 1),
	}
}

// ServeHTTP handles GET /callback?code=&state= from the identity provider.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	if q.Get("state") != h.request.State {
		// Stray or forged redirects do not end the attempt.
		http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
		return
	}

	if code := q.Get("error"); code != "" {
		perr := &ProviderError{Code: code, Description: q.Get("error_description")}
		h.deliver(CallbackResult{Err: perr})
		writePage(w, http.StatusBadRequest, "Sign-in failed", perr.Error())
		return
	}

	code := q.Get("code")
	if code == "" {
		h.deliver(CallbackResult{Err: auth.ErrMissingCode})
		writePage(w, http.StatusBadRequest, "Sign-in failed", auth.ErrMissingCode.Error())
		return
	}

	tokens, err := h.exchanger.Exchange(r.Context(), code, h.request.Verifier)
	if err != nil {
		log.WithError(err).Error("Token exchange failed")
		h.deliver(CallbackResult{Err: err})
		writePage(w, http.StatusBadGateway, "Sign-in failed", err.Error())
		return
	}

	h.deliver(CallbackResult{Tokens: tokens})
	writePage(w, http.StatusOK, "Signed in", "You can close this window and return to the terminal.")
}

// Wait blocks until the redirect has been handled or ctx ends.
func (h *CallbackHandler) Wait(ctx context.Context) (*auth.Tokens, error) {
	select {
	case res := <-h.results:
		return res.Tokens, res.Err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLoginTimeout
		}
		return nil, ctx.Err()
	}
}

func (h *CallbackHandler) deliver(res CallbackResult) {
	h.once.Do(func() {
		h.results <- res
	})
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

// LoginFlow runs one interactive authorization-code sign-in on a loopback listener.
type LoginFlow struct {
	Service  *auth.Service
	Listener net.Listener
	// Open presents the authorization URL to the user, e.g. by printing it.
	Open func(authURL string) error
}

// Run serves the callback, opens the authorization URL and waits for tokens.
func (f *LoginFlow) Run(ctx context.Context) (*auth.Tokens, error) {
	request, err := f.Service.NewAuthRequest()
	if err != nil {
		return nil, err
	}

	handler := NewCallbackHandler(f.Service, request)
	mux := http.NewServeMux()
	mux.Handle("/callback", handler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(f.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := f.Open(request.URL); err != nil {
		return nil, fmt.Errorf("failed to open login: %w", err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case err := <-serveErr:
			log.WithError(err).Error("Callback server failed")
			cancel()
		case <-waitCtx.Done():
		}
	}()

	return handler.Wait(waitCtx)
}
