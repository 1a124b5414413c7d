// Package identity holds the signed-in user and the credential sent with every
// backend call.
//
// A Context is created once per process and passed to the components that need
// it. It restores a persisted session lazily, on first use. Only the sign-in and
// sign-out flow may call SignIn and SignOut; everything else reads.
package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"hoots/pkg/models"
)

var (
	ErrInvalidToken = fmt.Errorf("invalid session token")
	ErrNoUser       = fmt.Errorf("session token carries no user")
)

type Context struct {
	sessions SessionStore
	now      func() time.Time

	once    sync.Once
	mu      sync.RWMutex
	user    *models.User
	token   string
	expires time.Time
}

// New returns a Context backed by the given session store. A nil store keeps
// the session in memory only.
func New(sessions SessionStore) *Context {
	if sessions == nil {
		sessions = NopSessions{}
	}
	return &Context{sessions: sessions, now: time.Now}
}

// restore loads the persisted session, if any. A persisted token that can not
// be decoded is discarded.
func (c *Context) restore() {
	token, err := c.sessions.Load()
	if err != nil {
		log.Warnf("[identity] failed to load persisted session: %v", err)
		return
	}
	if token == "" {
		return
	}

	user, expires, err := ParseToken(token)
	if err != nil {
		log.Warnf("[identity] discarding persisted session: %v", err)
		if err := c.sessions.Clear(); err != nil {
			log.Warnf("[identity] failed to clear persisted session: %v", err)
		}
		return
	}

	c.mu.Lock()
	c.user, c.token, c.expires = &user, token, expires
	c.mu.Unlock()
	log.Debugf("[identity] restored session for user %s", user.ID)
}

// User returns the current user, or false for an anonymous session.
func (c *Context) User() (models.User, bool) {
	c.once.Do(c.restore)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return models.User{}, false
	}
	return *c.user, true
}

// Token returns the credential for backend calls. It reports false when no
// session is established or the token has expired.
func (c *Context) Token() (string, bool) {
	c.once.Do(c.restore)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", false
	}
	if !c.expires.IsZero() && !c.now().Before(c.expires) {
		return "", false
	}
	return c.token, true
}

// SignIn installs token as the current session and persists it.
func (c *Context) SignIn(token string) (models.User, error) {
	c.once.Do(c.restore)

	user, expires, err := ParseToken(token)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.user, c.token, c.expires = &user, token, expires
	c.mu.Unlock()

	if err := c.sessions.Save(token); err != nil {
		log.Warnf("[identity] failed to persist session for user %s: %v", user.ID, err)
	}
	log.Infof("[identity] signed in as %s", user.Username)

	return user, nil
}

// SignOut clears the current session, in memory and on disk.
func (c *Context) SignOut() {
	c.once.Do(c.restore)

	c.mu.Lock()
	c.user, c.token, c.expires = nil, "", time.Time{}
	c.mu.Unlock()

	if err := c.sessions.Clear(); err != nil {
		log.Warnf("[identity] failed to clear persisted session: %v", err)
	}
	log.Info("[identity] signed out")
}

// ParseToken reads the user and expiry out of a session token without
// verifying its signature; verification is the backend's job.
//
// The user is expected in a "payload" claim holding {_id, username}. Tokens
// using the registered "sub" claim with a top-level "username" are accepted too.
func ParseToken(token string) (models.User, time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return models.User{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var user models.User
	if payload, ok := claims["payload"].(map[string]any); ok {
		user.ID, _ = payload["_id"].(string)
		user.Username, _ = payload["username"].(string)
	}
	if user.ID == "" {
		user.ID, _ = claims.GetSubject()
	}
	if user.Username == "" {
		user.Username, _ = claims["username"].(string)
	}
	if user.ID == "" {
		return models.User{}, time.Time{}, ErrNoUser
	}

	var expires time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expires = exp.Time
	}

	return user, expires, nil
}
