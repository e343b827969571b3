package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

type TokenService interface {
	TokenVerifier
	MintVoice(uID, ssID, roomID string) (string, error)
	VerifyVoice(token string) (*VoiceClaims, error)
}

type identifyClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// VoiceClaims bind a voice token to one gateway session and SFU room.
type VoiceClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
	jwt.RegisteredClaims
}

type tokenService struct {
	identifySecret []byte
	voiceSecret    []byte
	voiceTTL       time.Duration
	clk            clock.Clock
}

func NewTokenService(identifySecret, voiceSecret string, voiceTTL time.Duration, clk clock.Clock) TokenService {
	return &tokenService{
		identifySecret: []byte(identifySecret),
		voiceSecret:    []byte(voiceSecret),
		voiceTTL:       voiceTTL,
		clk:            clk,
	}
}

// VerifyIdentify accepts an HS256 token carrying user_id (or sub). A
// token without session_id gets a fresh one.
func (s *tokenService) VerifyIdentify(token string) (*Identity, error) {
	var claims identifyClaims
	if _, err := s.parse(token, &claims, s.identifySecret); err != nil {
		return nil, ErrInvalidToken
	}

	uID := claims.UserID
	if uID == "" {
		uID = claims.Subject
	}
	if uID == "" {
		return nil, ErrInvalidToken
	}

	ssID := claims.SessionID
	if ssID == "" {
		ssID = uuid.NewString()
	}
	return &Identity{UserID: uID, SessionID: ssID}, nil
}

func (s *tokenService) MintVoice(uID, ssID, roomID string) (string, error) {
	now := s.clk.Now()
	claims := VoiceClaims{
		UserID:    uID,
		SessionID: ssID,
		RoomID:    roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.voiceTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.voiceSecret)
}

func (s *tokenService) VerifyVoice(token string) (*VoiceClaims, error) {
	var claims VoiceClaims
	if _, err := s.parse(token, &claims, s.voiceSecret); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.RoomID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (s *tokenService) parse(token string, claims jwt.Claims, secret []byte) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clk.Now),
	)
}
