package auth

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"examattendance/internal/session"
)

const (
	// CookieName carries the session token.
	CookieName = "attendance_session"

	sessionKey = "session"
)

// TokenConfig controls how session tokens are signed.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	TTL        time.Duration
	Secure     bool
}

// SessionCookie resolves the caller's session from a bearer token or the
// session cookie, starting a new session when neither names a live one.
func SessionCookie(m *session.Manager, cfg TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sess, ok := lookup(c, m, cfg); ok {
			c.Set(sessionKey, sess)
			c.Next()
			return
		}

		sess := m.Create()
		token, _, err := Issue(sess.ID, cfg.Issuer, cfg.SigningKey, cfg.TTL)
		if err != nil {
			log.Printf("session token issue failed: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, token, int(cfg.TTL.Seconds()), "/", "", cfg.Secure, true)
		c.Set(sessionKey, sess)
		c.Next()
	}
}

func lookup(c *gin.Context, m *session.Manager, cfg TokenConfig) (*session.Session, bool) {
	token := bearer(c)
	if token == "" {
		token, _ = c.Cookie(CookieName)
	}
	if token == "" {
		return nil, false
	}
	claims, err := Parse(token, cfg.SigningKey, cfg.Issuer)
	if err != nil {
		return nil, false
	}
	return m.Get(claims.SessionID)
}

func bearer(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// SessionFrom returns the session resolved by SessionCookie.
func SessionFrom(c *gin.Context) *session.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*session.Session)
	return sess
}

// RequireAdmin rejects sessions that have not passed the passcode gate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess == nil || !sess.State().Authenticated {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin login required"})
			return
		}
		c.Next()
	}
}
