// Package web holds the handler plumbing the emulator's endpoints hang off:
// error-returning handlers, middleware wrapping, and the JSON conventions the
// storefront client expects (an {"error": ...} body on failure, no body on
// 204).
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
)

// Handler is an endpoint that reports failure instead of writing it; the
// Errors middleware owns the translation to an HTTP answer.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

type Middleware func(Handler) Handler

// WrapMiddleware layers mw around handler so that the first middleware of the
// slice is the outermost on the request path.
func WrapMiddleware(mw []Middleware, handler Handler) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			handler = mw[i](handler)
		}
	}
	return handler
}

// Respond writes data as a JSON answer. A 204 sends no body, which is what
// the client expects from logout.
func Respond(ctx context.Context, w http.ResponseWriter, data any, status int) error {
	if status == http.StatusNoContent || data == nil {
		w.WriteHeader(status)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	return nil
}

// Decode reads a JSON request body into val. The service this emulates
// rejects unknown fields, so the same strictness applies here; a failure is
// already a 400 carrying the error body shape the client parses.
func Decode(w http.ResponseWriter, r *http.Request, val any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(val); err != nil {
		return weberr.BadRequest(fmt.Errorf("decoding request body: %w", err))
	}
	return nil
}

// Param returns a route variable such as {cart_id} or {item_id}.
func Param(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}
