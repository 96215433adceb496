package auth

import (
	"context"
	"testing"
	"time"

	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { passwordCost = bcrypt.MinCost }

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}

func TestStaffToken(t *testing.T) {
	iss := NewIssuer("staff-secret", "device-secret", time.Hour)
	u := &models.User{ID: "u1", Email: "vol@example.com", Name: "Vol", Role: models.RoleVolunteer}

	tok, err := iss.GenerateJWT(u)
	require.NoError(t, err)

	claims, err := iss.ParseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "VOLUNTEER", claims.Role)
	assert.Equal(t, "Vol", claims.Name)
}

func TestStaffTokenExpired(t *testing.T) {
	iss := NewIssuer("staff-secret", "device-secret", time.Hour)
	tok, err := iss.GenerateJWT(&models.User{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	iss.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = iss.ParseJWT(tok)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestTokenKindsDoNotMix(t *testing.T) {
	iss := NewIssuer("same", "same", time.Hour)

	staff, err := iss.GenerateJWT(&models.User{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)
	device, err := iss.GenerateDeviceToken(&models.Requester{DeviceID: "dev-1"})
	require.NoError(t, err)

	_, err = iss.ParseDeviceToken(staff)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	_, err = iss.ParseJWT(device)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestWrongSecret(t *testing.T) {
	a := NewIssuer("a", "a-dev", time.Hour)
	b := NewIssuer("b", "b-dev", time.Hour)
	tok, err := a.GenerateJWT(&models.User{ID: "u1"})
	require.NoError(t, err)
	_, err = b.ParseJWT(tok)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestDeviceTokenRotation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	iss := NewIssuer("staff", "device", time.Hour)

	r := &models.Requester{DeviceID: "dev-1", FullName: "Asha", Phone: "+94", CreatedAt: time.Now()}
	require.NoError(t, s.CreateRequester(ctx, r))
	first, err := iss.GenerateDeviceToken(r)
	require.NoError(t, err)

	got, err := iss.VerifyDevice(ctx, first, s)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", got.DeviceID)

	r, err = s.BumpTokenVersion(ctx, "dev-1")
	require.NoError(t, err)
	second, err := iss.GenerateDeviceToken(r)
	require.NoError(t, err)

	_, err = iss.VerifyDevice(ctx, first, s)
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
	_, err = iss.VerifyDevice(ctx, second, s)
	assert.NoError(t, err)
}

func TestDeviceTokenUnknownDevice(t *testing.T) {
	iss := NewIssuer("staff", "device", time.Hour)
	tok, err := iss.GenerateDeviceToken(&models.Requester{DeviceID: "ghost"})
	require.NoError(t, err)
	_, err = iss.VerifyDevice(context.Background(), tok, store.NewMemory())
	assert.ErrorIs(t, err, models.ErrNotAuthorized)
}
