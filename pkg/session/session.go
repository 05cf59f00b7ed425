package session

import (
	"errors"
	"strings"
	"sync"

	"igarchive/pkg/logger"
)

var (
	// ErrTokensNotFound indicates no stored tokens exist
	ErrTokensNotFound = errors.New("session tokens not found")
	// ErrInvalidTokens indicates the token pair is incomplete
	ErrInvalidTokens = errors.New("invalid session tokens")
	// ErrNoRefresher indicates the session has no way to mint new tokens
	ErrNoRefresher = errors.New("no token refresher configured")
)

// Tokens is the access/refresh token pair required by the story API
type Tokens struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// Store persists session tokens across runs
type Store interface {
	Save(tokens *Tokens) error
	Load() (*Tokens, error)
	Clear() error
}

// RefreshFunc mints a fresh token pair when the current one expires.
// The transport treats it as opaque.
type RefreshFunc func() (*Tokens, error)

// Context owns the mutable session state that the original kept in
// module-level globals. All access goes through explicit methods.
type Context struct {
	mu        sync.Mutex
	tokens    Tokens
	store     Store
	refresher RefreshFunc
	logger    logger.Logger
}

// NewContext creates a session context seeded with the given tokens.
// store and refresher may be nil.
func NewContext(seed Tokens, store Store, refresher RefreshFunc, log logger.Logger) *Context {
	if log == nil {
		log = logger.GetLogger()
	}
	ctx := &Context{
		tokens:    seed,
		store:     store,
		refresher: refresher,
		logger:    log,
	}

	// Stored tokens win over seed values when both exist.
	if store != nil {
		if stored, err := store.Load(); err == nil && stored != nil {
			ctx.tokens = *stored
		}
	}
	return ctx
}

// IsValid reports whether a complete token pair is present
func (c *Context) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens.Access != "" && c.tokens.Refresh != ""
}

// CookieHeader renders the tokens as the cookie header the story API expects
func (c *Context) CookieHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "access-token=" + c.tokens.Access + "; refresh-token=" + c.tokens.Refresh + ";"
}

// Update replaces the token pair and persists it
func (c *Context) Update(tokens Tokens) {
	c.mu.Lock()
	c.tokens = tokens
	store := c.store
	c.mu.Unlock()

	if store != nil {
		if err := store.Save(&tokens); err != nil {
			c.logger.WithError(err).Warn("failed to persist session tokens")
		}
	}
}

// UpdateFromSetCookie folds rotated tokens out of Set-Cookie response
// headers back into the session.
func (c *Context) UpdateFromSetCookie(setCookies []string) {
	c.mu.Lock()
	updated := false
	for _, raw := range setCookies {
		name, value, ok := splitCookie(raw)
		if !ok {
			continue
		}
		switch name {
		case "access-token":
			c.tokens.Access = value
			updated = true
		case "refresh-token":
			c.tokens.Refresh = value
			updated = true
		}
	}
	tokens := c.tokens
	store := c.store
	c.mu.Unlock()

	if updated && store != nil {
		if err := store.Save(&tokens); err != nil {
			c.logger.WithError(err).Warn("failed to persist rotated session tokens")
		}
	}
}

// Refresh mints a new token pair through the configured refresher
func (c *Context) Refresh() error {
	c.mu.Lock()
	refresher := c.refresher
	c.mu.Unlock()

	if refresher == nil {
		return ErrNoRefresher
	}

	tokens, err := refresher()
	if err != nil {
		return err
	}
	if tokens == nil || tokens.Access == "" || tokens.Refresh == "" {
		return ErrInvalidTokens
	}

	c.logger.Info("session tokens refreshed")
	c.Update(*tokens)
	return nil
}

// splitCookie extracts the name and value from a Set-Cookie header value
func splitCookie(raw string) (name, value string, ok bool) {
	pair := raw
	if i := strings.Index(pair, ";"); i >= 0 {
		pair = pair[:i]
	}
	i := strings.Index(pair, "=")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(pair[:i]), strings.TrimSpace(pair[i+1:]), true
}
