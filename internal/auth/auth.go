// server/internal/auth/auth.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relief-dispatch-api-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	kindStaff  = "staff"
	kindDevice = "device"
)

// passwordCost is lowered in tests.
var passwordCost = 12

// JWTClaims is the payload of a volunteer/admin access token. The subject is the user id.
type JWTClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

// DeviceClaims is the payload of a requester device capability token.
// The subject is the device id; Version must match the requester's
// current token version.
type DeviceClaims struct {
	Version int    `json:"ver"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

// Hashing
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Issuer signs and verifies both token kinds. Staff and device tokens use
// separate secrets and carry a kind claim, so neither can stand in for the other.
type Issuer struct {
	secret       []byte
	deviceSecret []byte
	ttl          time.Duration
	now          func() time.Time
}

func NewIssuer(secret, deviceSecret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret:       []byte(secret),
		deviceSecret: []byte(deviceSecret),
		ttl:          ttl,
		now:          time.Now,
	}
}

// GenerateJWT issues an access token for a staff account.
func (i *Issuer) GenerateJWT(u *models.User) (string, error) {
	now := i.now()
	claims := &JWTClaims{
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
		Kind:  kindStaff,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) ParseJWT(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	if err := i.parse(tokenString, claims, i.secret); err != nil {
		return nil, err
	}
	if claims.Kind != kindStaff || claims.Subject == "" {
		return nil, fmt.Errorf("not a staff token: %w", models.ErrNotAuthorized)
	}
	return claims, nil
}

// GenerateDeviceToken issues a capability token bound to the requester's
// device and current token version. Device tokens do not expire; rotating
// the version revokes them.
func (i *Issuer) GenerateDeviceToken(r *models.Requester) (string, error) {
	claims := &DeviceClaims{
		Version: r.TokenVersion,
		Kind:    kindDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  r.DeviceID,
			IssuedAt: jwt.NewNumericDate(i.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.deviceSecret)
}

func (i *Issuer) ParseDeviceToken(tokenString string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	if err := i.parse(tokenString, claims, i.deviceSecret); err != nil {
		return nil, err
	}
	if claims.Kind != kindDevice || claims.Subject == "" {
		return nil, fmt.Errorf("not a device token: %w", models.ErrNotAuthorized)
	}
	return claims, nil
}

// RequesterGetter is the part of the requester store VerifyDevice needs.
type RequesterGetter interface {
	GetRequester(ctx context.Context, deviceID string) (*models.Requester, error)
}

// VerifyDevice parses a device token and checks it has not been revoked.
func (i *Issuer) VerifyDevice(ctx context.Context, tokenString string, requesters RequesterGetter) (*models.Requester, error) {
	claims, err := i.ParseDeviceToken(tokenString)
	if err != nil {
		return nil, err
	}
	r, err := requesters.GetRequester(ctx, claims.Subject)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("unknown device: %w", models.ErrNotAuthorized)
	}
	if err != nil {
		return nil, err
	}
	if r.TokenVersion != claims.Version {
		return nil, fmt.Errorf("device token revoked: %w", models.ErrNotAuthorized)
	}
	return r, nil
}

func (i *Issuer) parse(tokenString string, claims jwt.Claims, key []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid or expired token: %w", models.ErrNotAuthorized)
	}
	return nil
}
