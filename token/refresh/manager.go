// Package refresh handles the broker's rotating refresh credentials. A
// refresh token is single-use: rotation deletes the old record before a new
// one is minted.
package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const tokenLength = 32 // bytes, 256 bits

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo   Repo
	expiry time.Duration
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, expiry time.Duration) *Manager {
	return &Manager{
		repo:   repo,
		expiry: expiry,
	}
}

// Create generates a new refresh token bound to the given grant and stores it.
// One refresh token per grant: any previous record for the grant is removed.
func (m *Manager) Create(grantID, clientID, subject, scope string) (string, error) {
	if err := m.repo.DeleteByGrantID(grantID); err != nil && err != ErrNotFound {
		return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
	}

	tokenBytes := make([]byte, tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:    tokenStr,
		GrantID:  grantID,
		ClientID: clientID,
		Subject:  subject,
		Scope:    scope,
		Iat:      NowTimeFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return tokenStr, nil
}

// Consume retrieves a live refresh token record and deletes it, making the
// token unusable for a second rotation attempt. Expired records are deleted
// and reported as not found.
func (m *Manager) Consume(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Delete(token); err != nil {
		return nil, err
	}

	if NowTimeFunc().Sub(rt.Iat) > m.expiry {
		return nil, ErrNotFound
	}
	return rt, nil
}

// RevokeGrant removes any refresh credential outstanding for a grant.
func (m *Manager) RevokeGrant(grantID string) error {
	if err := m.repo.DeleteByGrantID(grantID); err != nil && err != ErrNotFound {
		return err
	}
	return nil
}
