package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type bindMessages map[string]map[string]string

func bindJSON(c *gin.Context, req any, messages bindMessages, fallback string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeBindError(c, err, messages, fallback)
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any, messages bindMessages, fallback string) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		writeBindError(c, err, messages, fallback)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error, messages bindMessages, fallback string) {
	message, fields := resolveBindError(err, messages, fallback)
	var data any
	if len(fields) > 0 {
		data = gin.H{"errors": fields}
	}
	writeFailure(c, http.StatusBadRequest, codeInvalidRequest, message, data)
}

func bindID(c *gin.Context, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeFailure(c, http.StatusNotFound, codeNotFound, label+" not found", nil)
		return 0, false
	}
	return uint(id), true
}

// resolveBindError returns the envelope message and one message per failing
// field, keyed by the field's wire name.
func resolveBindError(err error, messages bindMessages, fallback string) (string, map[string]string) {
	message := ""
	var fields map[string]string
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields = make(map[string]string, len(verrs))
		for _, verr := range verrs {
			msg, ok := messages[verr.StructField()][verr.Tag()]
			if !ok {
				msg = defaultFieldMessage(verr)
			} else if message == "" {
				message = msg
			}
			if _, seen := fields[verr.Field()]; !seen {
				fields[verr.Field()] = msg
			}
		}
	}
	if message == "" {
		message = fallback
	}
	if message == "" {
		message = "invalid request"
	}
	return message, fields
}

func defaultFieldMessage(verr validator.FieldError) string {
	switch verr.Tag() {
	case "required", "notblank":
		return verr.Field() + " is required"
	case "oneof":
		return verr.Field() + " must be one of " + verr.Param()
	case "max":
		return verr.Field() + " must be at most " + verr.Param()
	case "min", "gte":
		return verr.Field() + " must be at least " + verr.Param()
	default:
		return verr.Field() + " is invalid"
	}
}
