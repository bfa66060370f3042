package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

const sessionTokenBytes = 32

// SessionIssuer binds an opaque token to one participant at check-in. Only
// the SHA-256 of the token is stored, so a leaked table cannot be replayed.
// Tokens carry no expiry; eligibility is decided by the participant row.
type SessionIssuer struct {
	db *gorm.DB
}

func NewSessionIssuer(db *gorm.DB) *SessionIssuer {
	return &SessionIssuer{db: db}
}

// NewSessionToken returns a fresh token and the hash to persist for it
func NewSessionToken() (token, hash string, err error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

// HashSessionToken returns the stored form of token
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Issue rotates the token of participantID inside tx and returns the new
// token. Any previously issued token stops resolving.
func (s *SessionIssuer) Issue(tx *gorm.DB, participantID uint) (string, error) {
	token, hash, err := NewSessionToken()
	if err != nil {
		return "", storeErr("generate session token", err)
	}
	result := tx.Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("session_token_hash", hash)
	if result.Error != nil {
		return "", storeErr("store session token", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrParticipantNotFound
	}
	return token, nil
}

// Resolve returns the participant owning token, or ErrSessionInvalid
func (s *SessionIssuer) Resolve(ctx context.Context, token string) (*models.Participant, error) {
	if len(token) != sessionTokenBytes*2 {
		return nil, ErrSessionInvalid
	}
	var p models.Participant
	err := s.db.WithContext(ctx).
		Where("session_token_hash = ?", HashSessionToken(token)).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, storeErr("resolve session", err)
	}
	return &p, nil
}
