package server

import (
	"errors"
	"net/http"

	"gamification/internal/apperr"
	"gamification/internal/logging"

	"github.com/gin-gonic/gin"
)

const (
	codeOK             = "OK"
	codeInvalidRequest = "INVALID_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeForbidden      = "FORBIDDEN"
	codeNotFound       = "NOT_FOUND"
	codeConflict       = "CONFLICT"
	codeServerError    = "SERVER_ERROR"
)

type pagination struct {
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

type meta struct {
	API        string      `json:"api"`
	Success    bool        `json:"success"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Pagination *pagination `json:"pagination"`
}

type envelope struct {
	Meta meta `json:"meta"`
	Data any  `json:"data"`
}

func writeData(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{
		Meta: meta{API: c.GetString(logging.APINameKey), Success: true, Code: codeOK, Message: "success"},
		Data: data,
	})
}

func writePage(c *gin.Context, data any, page *pagination) {
	c.JSON(http.StatusOK, envelope{
		Meta: meta{API: c.GetString(logging.APINameKey), Success: true, Code: codeOK, Message: "success", Pagination: page},
		Data: data,
	})
}

func writeFailure(c *gin.Context, status int, code, message string, data any) {
	c.JSON(status, envelope{
		Meta: meta{API: c.GetString(logging.APINameKey), Success: false, Code: code, Message: message},
		Data: data,
	})
}

// writeError maps a service error onto the envelope. Internal causes are
// attached to the gin context for the request log and never sent.
func writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		_ = c.Error(err)
		writeFailure(c, http.StatusInternalServerError, codeServerError, "internal server error", nil)
		return
	}
	var data any
	if len(appErr.Fields) > 0 {
		data = gin.H{"errors": appErr.Fields}
	}
	switch appErr.Kind {
	case apperr.KindValidation:
		writeFailure(c, http.StatusBadRequest, codeInvalidRequest, appErr.Message, data)
	case apperr.KindConflict:
		writeFailure(c, http.StatusBadRequest, codeConflict, appErr.Message, nil)
	case apperr.KindUnauthorized:
		writeFailure(c, http.StatusUnauthorized, codeUnauthorized, appErr.Message, nil)
	case apperr.KindForbidden:
		writeFailure(c, http.StatusForbidden, codeForbidden, appErr.Message, nil)
	case apperr.KindNotFound:
		writeFailure(c, http.StatusNotFound, codeNotFound, appErr.Message, nil)
	default:
		_ = c.Error(err)
		writeFailure(c, http.StatusInternalServerError, codeServerError, "internal server error", nil)
	}
}
