package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/httputil"
)

// Recovery turns a panic into a 500 envelope. The panic value is logged but
// never sent to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			event := log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Str("request_id", c.GetString(ContextRequestID))
			if caller := Caller(c); caller != nil {
				event = event.Str("caller_id", caller.ID.String()).Str("clinic_id", caller.ClinicID.String())
			}
			event.Msg("request panic recovered")

			httputil.RespondWithError(c, apperrors.NewInternal(fmt.Errorf("panic: %v", rec)))
		}()
		c.Next()
	}
}
