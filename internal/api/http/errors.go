package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/immxrtalbeast/meetroom/internal/domain"
	"github.com/immxrtalbeast/meetroom/lib/logger/sl"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	message := err.Error()

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		message = verr.Error()
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", slog.String("path", ctx.FullPath()), sl.Err(err))
		message = "internal server error"
	}

	ctx.JSON(status, gin.H{"success": false, "message": message})
}

func badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

var registerTagNames sync.Once

// useWireFieldNames makes validation errors report the json or form key the
// client sent instead of the Go field name.
func useWireFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(key), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	})
}

func bindingFailed(ctx *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		badRequest(ctx, "invalid request body")
		return
	}
	badRequest(ctx, fieldMessage(verrs[0]))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
