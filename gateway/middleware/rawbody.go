package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// DefaultRawBodyLimit bounds captured bodies when no explicit limit is configured.
const DefaultRawBodyLimit int64 = 1 << 20

const contextKeyRawBody contextKey = "gateway.rawBody"

// CapturedBody holds the request payload exactly as received alongside a best-effort decode.
type CapturedBody struct {
	// Raw is the unmodified request body. It must reach signature checks untouched.
	Raw []byte
	// Parsed is the JSON decode of Raw, or an empty object when Raw is not valid JSON.
	Parsed any
	// Structured reports whether Parsed came from a successful decode.
	Structured bool
}

// ParseJSON decodes raw as JSON. The boolean is false when raw is not a single valid JSON value.
func ParseJSON(raw []byte) (any, bool) {
	if !json.Valid(raw) {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

// CaptureRawBody reads the whole request body before the wrapped handler runs and exposes it via
// RawBodyFromContext. It must sit ahead of anything else that consumes r.Body. The body is
// replaced with a fresh reader over the same bytes so later decoders still see the payload.
func CaptureRawBody(limit int64) func(http.Handler) http.Handler {
	if limit <= 0 {
		limit = DefaultRawBodyLimit
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			_ = r.Body.Close()
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "unable to read request body", http.StatusBadRequest)
				return
			}
			captured := &CapturedBody{Raw: raw, Parsed: map[string]any{}}
			if parsed, ok := ParseJSON(raw); ok {
				captured.Parsed = parsed
				captured.Structured = true
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			ctx := context.WithValue(r.Context(), contextKeyRawBody, captured)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RawBodyFromContext returns the body captured by CaptureRawBody.
func RawBodyFromContext(ctx context.Context) (*CapturedBody, bool) {
	captured, ok := ctx.Value(contextKeyRawBody).(*CapturedBody)
	return captured, ok && captured != nil
}
