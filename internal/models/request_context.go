package models

import (
	"net"
	"net/http"
)

// RequestContext carries the client-identifying attributes extracted from an
// incoming request. It is the only view of the HTTP layer that the event
// pipeline sees.
type RequestContext struct {
	IP             string `json:"ip"`
	UserAgent      string `json:"user_agent"`
	AcceptLanguage string `json:"accept_language"`
	Referrer       string `json:"referrer"`
	SessionID      string `json:"session_id"`
	Path           string `json:"path"`
}

// SessionHeader identifies the session propagated by the host application.
const SessionHeader = "X-Session-ID"

// RequestContextFrom extracts the request context from an HTTP request.
// RemoteAddr is expected to already be the client IP (chi's RealIP
// middleware runs in front of every route).
func RequestContextFrom(r *http.Request) RequestContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return RequestContext{
		IP:             ip,
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		Referrer:       r.Referer(),
		SessionID:      r.Header.Get(SessionHeader),
		Path:           r.URL.Path,
	}
}

// BlockResponse is the terminal outcome produced when a request must be
// rejected. Exactly one of StatusCode or RedirectTo is acted on.
type BlockResponse struct {
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// IsRedirect reports whether the block should be served as a redirect
// rather than a hard status.
func (b *BlockResponse) IsRedirect() bool {
	return b.RedirectTo != ""
}
