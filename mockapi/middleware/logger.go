package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sirupsen/logrus"
	"github.com/zenazn/goji/web/mutil"
)

// Logger emits one line per request with its outcome. The fields carry the
// request id shared with the storefront client, so a refresh loop can be
// traced from the client's log into these entries.
func Logger(log logrus.FieldLogger) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			start := time.Now().UTC()

			lw := mutil.WrapWriter(w)
			err := handler(ctx, lw, r)

			log.WithFields(logrus.Fields{
				"req_id": ContextRequestID(ctx),
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
				"status": lw.Status(),
				"bytes":  lw.BytesWritten(),
				"took":   time.Since(start).String(),
			}).Info("request served")

			return err
		}
	}
}
