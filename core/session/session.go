package session

import (
	"errors"
	"time"
)

// Credentials is the access half of the session. The refresh credential is a
// cookie owned by the HTTP client's jar and never passes through here.
type Credentials struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (c Credentials) Empty() bool {
	return c.AccessToken == ""
}

// ErrNoSession is returned by stores when no credentials are cached.
var ErrNoSession = errors.New("no session stored")

// Store caches the bearer credentials between requests. Implementations must
// be safe for concurrent use: the request pipeline loads on every call and
// saves/clears from its refresh path.
type Store interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}
