package server

import (
	"net/http"

	"github.com/a11y-lens/backend/middleware"
	"github.com/a11y-lens/backend/store"
	"github.com/gin-gonic/gin"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "analysis_session"

	sessionMaxAge = 24 * 60 * 60
)

// session returns the caller's session id from the header or cookie. When
// mint is set and the caller has none, a new id is issued as a cookie.
// The id is echoed in the response header and kept in the gin context for
// request logging.
func session(c *gin.Context, mint bool) (string, bool) {
	id := c.GetHeader(SessionHeader)
	if !store.ValidSessionID(id) {
		id, _ = c.Cookie(SessionCookie)
	}
	if !store.ValidSessionID(id) {
		if !mint {
			return "", false
		}
		id = store.NewSessionID()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, id, sessionMaxAge, "/", "", false, true)
	}

	c.Header(SessionHeader, id)
	c.Set(middleware.SessionKey, id)
	return id, true
}
