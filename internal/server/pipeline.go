package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/SmitUplenchwar2687/Tollgate/internal/geo"
	"github.com/SmitUplenchwar2687/Tollgate/internal/identity"
	"github.com/SmitUplenchwar2687/Tollgate/internal/limiter"
)

// Error messages returned to callers.
const (
	msgNoClientIP       = "Could not determine client IP"
	msgRateLimited      = "Rate limit exceeded"
	msgLimiterDown      = "Could not connect to rate limiter"
	msgUnauthenticated  = "Authentication required"
	msgForbidden        = "Invalid access token"
	msgIdentityDown     = "Could not verify access token"
	msgNotFound         = "Not Found"
	msgMethodNotAllowed = "Method Not Allowed"
	msgInternalError    = "Internal Server Error"
)

// response is the body sent to an admitted caller.
type response struct {
	geo.Payload
	User *identity.Identity `json:"user,omitempty"`
}

// handleRoot runs the request pipeline: caller key, rate limit, identity
// gate, enrichment.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	info := infoFromContext(r.Context())

	ip := strings.TrimSpace(r.Header.Get(s.ipHeader))
	if ip == "" {
		writeError(w, http.StatusBadRequest, msgNoClientIP)
		return
	}
	info.key = ip

	// The charge stands even if the client goes away mid-request.
	d, err := s.limiter.Decide(context.WithoutCancel(r.Context()), ip)
	if err != nil {
		log.Printf("rate limit decision failed for %s: %v", ip, err)
		writeError(w, http.StatusBadGateway, msgLimiterDown)
		return
	}
	s.setRateLimitHeaders(w, d)
	if !d.Allowed {
		s.writeRateLimited(w, d)
		return
	}

	var user *identity.Identity
	if s.gate != nil {
		id, err := s.gate.Authenticate(r)
		if err != nil {
			status, msg := gateFailure(err)
			if status == http.StatusBadGateway {
				log.Printf("identity verification unavailable for %s: %v", ip, err)
			}
			writeError(w, status, msg)
			return
		}
		r = r.WithContext(identity.WithIdentity(r.Context(), id))
		user = id
	}

	body := response{Payload: geo.FromRequest(r, ip), User: user}
	info.payload = &body.Payload
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) setRateLimitHeaders(w http.ResponseWriter, d limiter.Decision) {
	if s.algorithm != limiter.AlgorithmTokenBucket {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
}

func (s *Server) writeRateLimited(w http.ResponseWriter, d limiter.Decision) {
	waitMs := d.RetryAfterMs()
	w.Header().Set("Retry-After", strconv.FormatInt((waitMs+999)/1000, 10))

	body := errorBody{Message: msgRateLimited, Code: http.StatusTooManyRequests, RetryAfterMs: &waitMs}
	if s.algorithm != limiter.AlgorithmTokenBucket {
		body.MillisecondsToNextRequest = &waitMs
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: body})
}

func gateFailure(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrMissingCredential):
		return http.StatusUnauthorized, msgUnauthenticated
	case errors.Is(err, identity.ErrKeySetUnavailable):
		return http.StatusBadGateway, msgIdentityDown
	default:
		return http.StatusForbidden, msgForbidden
	}
}
