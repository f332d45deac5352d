package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stemsi/livesession-backend/internal/config"
	"github.com/stemsi/livesession-backend/internal/model"
)

// TokenType distinguishes host, student and participant tokens.
type TokenType string

const (
	// TokenTypeHost is issued by the identity provider to teachers.
	TokenTypeHost TokenType = "host"
	// TokenTypeStudent is issued by the identity provider to registered students.
	TokenTypeStudent TokenType = "student"
	// TokenTypeParticipant is issued by this service on join and scopes the
	// bearer to one participant in one session.
	TokenTypeParticipant TokenType = "participant"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType     TokenType `json:"token_type"`
	UserID        string    `json:"user_id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"` // Participant only
	SessionCode   string    `json:"session_code,omitempty"`   // Participant only
}

// Participant returns the participant id carried by a participant token.
func (c *Claims) Participant() (uuid.UUID, error) {
	if c.TokenType != TokenTypeParticipant {
		return uuid.Nil, errors.New("not a participant token")
	}
	return uuid.Parse(c.ParticipantID)
}

// AuthService verifies identity tokens and issues participant tokens.
// Login and account management live with the identity provider.
type AuthService struct {
	secret            []byte
	expiry            time.Duration
	participantExpiry time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{
		secret:            []byte(cfg.JWTSecret),
		expiry:            cfg.JWTExpiry,
		participantExpiry: cfg.ParticipantTokenExpiry,
	}
}

// GenerateToken signs a host or student token. Production tokens come from
// the identity provider; this exists for local tooling and tests.
func (s *AuthService) GenerateToken(tokenType TokenType, userID string) (string, error) {
	if tokenType != TokenTypeHost && tokenType != TokenTypeStudent {
		return "", fmt.Errorf("cannot issue %q token", tokenType)
	}
	if userID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	return s.sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
		TokenType: tokenType,
		UserID:    userID,
	})
}

// GenerateParticipantToken signs a token bound to one participant.
func (s *AuthService) GenerateParticipantToken(p *model.Participant) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.participantExpiry)),
		},
		TokenType:     TokenTypeParticipant,
		ParticipantID: p.ID.String(),
		SessionCode:   p.SessionCode,
	}
	if p.UserID != nil {
		claims.UserID = *p.UserID
	}
	return s.sign(claims)
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	switch claims.TokenType {
	case TokenTypeHost, TokenTypeStudent:
		if claims.UserID == "" {
			return nil, errors.New("token has no user id")
		}
	case TokenTypeParticipant:
		if _, err := uuid.Parse(claims.ParticipantID); err != nil {
			return nil, errors.New("token has no participant id")
		}
	default:
		return nil, fmt.Errorf("unknown token type %q", claims.TokenType)
	}

	return claims, nil
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
