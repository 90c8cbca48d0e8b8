package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/aztec-rpc/log"
)

// DisabledLogging turns the request logging off regardless of the log level.
var DisabledLogging = false

// jsonRegex matches bodies that look like a JSON object or array.
var jsonRegex = regexp.MustCompile(`^\s*[\[{]`)

// LoggingConfig configures the request logging middleware.
type LoggingConfig struct {
	MaxBodyLog       int
	ExcludedPrefixes []string // paths never logged, such as health checks
}

// DefaultLoggingConfig returns the configuration used by the API router.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{MaxBodyLog: maxRequestBodyLog, ExcludedPrefixes: LogExcludedPrefixes}
}

// shouldSkipLogging reports whether r is not logged. Requests are only
// logged at debug level.
func (lc LoggingConfig) shouldSkipLogging(r *http.Request) bool {
	if DisabledLogging || log.Level() != log.LogLevelDebug {
		return true
	}
	for _, prefix := range lc.ExcludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// bodyPreview reads the body of r, puts it back for the handler and returns
// a truncated copy when it is JSON.
func (lc LoggingConfig) bodyPreview(r *http.Request) (string, error) {
	if r.Body == nil || r.ContentLength <= 0 {
		return "", nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !jsonRegex.Match(body) {
		return "", nil
	}
	if len(body) > lc.MaxBodyLog {
		return strings.ReplaceAll(string(body[:lc.MaxBodyLog]), "\"", "") + "...", nil
	}
	return strings.ReplaceAll(string(body), "\"", ""), nil
}

// responseWriter records the first status code written.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.statusCode == 0 {
		rw.statusCode = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// loggingMiddleware logs every request and its response status at debug
// level, with up to maxBodyLog bytes of JSON bodies.
func loggingMiddleware(maxBodyLog int) func(http.Handler) http.Handler {
	lc := DefaultLoggingConfig()
	lc.MaxBodyLog = maxBodyLog
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if lc.shouldSkipLogging(r) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			body, err := lc.bodyPreview(r)
			if err != nil {
				log.Warnw("could not read request body", "error", err.Error())
				ErrMalformedBody.WithErr(err).Write(w)
				return
			}
			id := RequestID(r.Context())
			log.Debugw("api request", "id", id, "method", r.Method, "url", r.URL.String(), "body", body)
			rw := &responseWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			log.Debugw("api response", "id", id, "method", r.Method, "url", r.URL.String(),
				"status", rw.statusCode, "took", time.Since(start).String())
		})
	}
}

// RequestIDHeader is the header carrying the id of a request.
const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// requestIDMiddleware tags every request with an id, keeping the one sent by
// the caller when it is a valid UUID. The id is echoed in the response
// headers and stored in the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set(RequestIDHeader, id.String())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id.String())))
	})
}

// RequestID returns the id of the request ctx belongs to, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
