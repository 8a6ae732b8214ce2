package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// DeviceClaims identify this camera to the signaling server.
type DeviceClaims struct {
	CameraID        string `json:"camera_id"`
	FirmwareVersion string `json:"fw_version"`
	jwt.RegisteredClaims
}

// TokenIssuer signs device identity tokens embedded in registration messages.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token, or "" when no secret is configured so that
// deployments without signaling auth keep working.
func (i *TokenIssuer) Issue(cameraID, firmwareVersion string) (string, error) {
	if len(i.secret) == 0 {
		return "", nil
	}

	claims := &DeviceClaims{
		CameraID:        cameraID,
		FirmwareVersion: firmwareVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses and verifies a token issued by this issuer. Used by tests
// and by deployments where the status endpoint echoes identity.
func (i *TokenIssuer) Validate(tokenString string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
