package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/random"
)

// RequestIDHeader is the header the storefront client stamps on every call.
const RequestIDHeader = "X-Request-Id"

type ctxKey int

const reqIDKey ctxKey = 1

var (
	reqPrefix = random.String(10)
	reqSeq    int64
)

// RequestID adopts the client's request id when the header carries one, so
// both sides' logs stay joinable on the same value. Requests arriving
// without one get a process-local id minted here.
func RequestID() web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = fmt.Sprintf("%s-%d", reqPrefix, atomic.AddInt64(&reqSeq, 1))
			}

			w.Header().Set(RequestIDHeader, id)
			ctx = context.WithValue(ctx, reqIDKey, id)

			return handler(ctx, w, r)
		}
	}
}

// ContextRequestID returns the id stored by RequestID, or "" when the
// middleware did not run.
func ContextRequestID(ctx context.Context) string {
	id, _ := ctx.Value(reqIDKey).(string)
	return id
}
