package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding the caller's *Claims.
const ClaimsKey = "auth_claims"

type errorResp struct {
	Error string `json:"error"`
}

// authenticate accepts a bearer token or HTTP basic credentials.
func (s *Service) authenticate(r *http.Request) (*Claims, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return s.Verify(strings.TrimSpace(token))
		}
	}
	if user, pass, ok := r.BasicAuth(); ok {
		return s.CheckPassword(user, pass)
	}
	return nil, ErrInvalidCredentials
}

// Require returns a gin middleware admitting callers allowed to perform
// action. A nil Service admits everyone.
func (s *Service) Require(action Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}
		claims, err := s.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="minerd"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResp{Error: "authentication required"})
			return
		}
		if !Allowed(claims.Role, action) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResp{Error: "permission denied"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// LoginHandler issues a token for basic credentials or a JSON body
// {"username": "...", "password": "..."}.
func (s *Service) LoginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if u, p, ok := c.Request.BasicAuth(); ok {
		req.Username, req.Password = u, p
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	tok, err := s.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, tok)
}
