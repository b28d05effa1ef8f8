package server

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/SmitUplenchwar2687/Tollgate/internal/analytics"
	"github.com/SmitUplenchwar2687/Tollgate/internal/geo"
)

// statusWriter captures the status code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil && w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// requestInfo is filled in by the pipeline so the analytics record can carry
// what the handler learned about the caller.
type requestInfo struct {
	key     string
	payload *geo.Payload
}

type infoKey struct{}

func infoFromContext(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(infoKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

// instrument recovers handler panics and emits one analytics record per
// request once the response status is known.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		info := &requestInfo{}
		r = r.WithContext(context.WithValue(r.Context(), infoKey{}, info))

		defer func() {
			p := recover()
			if p == http.ErrAbortHandler {
				panic(p)
			}
			if p != nil {
				log.Printf("panic serving %s %s: %v\n%s", r.Method, r.URL.Path, p, debug.Stack())
				if sw.status == 0 {
					writeError(sw, http.StatusInternalServerError, msgInternalError)
				} else {
					sw.status = http.StatusInternalServerError
				}
			}
			s.emit(r, sw.code(), info)
		}()

		next.ServeHTTP(sw, r)
	})
}

func (s *Server) emit(r *http.Request, status int, info *requestInfo) {
	if s.emitter == nil || r.URL.Path == "/health" || r.URL.Path == "/ws" {
		return
	}

	rec := analytics.Record{
		Timestamp: s.clock.Now(),
		Status:    status,
		Key:       info.key,
		Version:   s.version,
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	if rec.Key == "" {
		rec.Key = strings.TrimSpace(r.Header.Get(s.ipHeader))
	}
	if status == http.StatusOK && info.payload != nil {
		rec.City = info.payload.City
		rec.Region = info.payload.Region
		rec.Country = info.payload.Country
		rec.Org = info.payload.Org
		rec.Colo = info.payload.Colo
	}
	s.emitter.Emit(rec)
}
