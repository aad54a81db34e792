package server

import (
	"errors"
	"net/http"
	"strings"

	"gamification/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	identityKey  = "identity"
	tokenErrKey  = "identity_error"
	bearerPrefix = "Bearer "
)

// identify resolves the bearer token, if any, into an auth.Identity. A bad
// token leaves the caller anonymous and is reported by requireUser.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || s.auth == nil {
			c.Set(tokenErrKey, auth.ErrInvalidToken)
			c.Next()
			return
		}
		identity, err := s.auth.ValidateToken(strings.TrimSpace(token))
		if err != nil {
			c.Set(tokenErrKey, err)
			c.Next()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identityFrom(c *gin.Context) auth.Identity {
	if value, ok := c.Get(identityKey); ok {
		if identity, ok := value.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Identity{}
}

func requireUser(c *gin.Context) {
	if identityFrom(c).Authenticated() {
		return
	}
	message := "authentication required"
	if value, ok := c.Get(tokenErrKey); ok {
		if err, ok := value.(error); ok && errors.Is(err, auth.ErrExpiredToken) {
			message = "token expired"
		} else {
			message = "invalid token"
		}
	}
	writeFailure(c, http.StatusUnauthorized, codeUnauthorized, message, nil)
	c.Abort()
}

func requireStaff(c *gin.Context) {
	requireUser(c)
	if c.IsAborted() {
		return
	}
	if !identityFrom(c).IsStaff {
		writeFailure(c, http.StatusForbidden, codeForbidden, "staff only", nil)
		c.Abort()
	}
}
