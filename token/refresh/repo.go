package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken is the server-side record behind a broker refresh
// credential. The client only ever holds the Token string; everything else
// is metadata used for validation and re-issuance.
type StoredRefreshToken struct {
	Token    string    // The random token string (sent to client)
	GrantID  string    // Binds the credential to one session-props instance
	ClientID string    // The MCP client the grant was issued to
	Subject  string    // Verified upstream subject, carried into re-minted tokens
	Scope    string    // Original granted scope
	Iat      time.Time // Issued at time
}

// Repo manages server-side storage of refresh token metadata, keyed by the
// opaque token string.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Get(token string) (*StoredRefreshToken, error)
	Delete(token string) error
	DeleteByGrantID(grantID string) error
}
