package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"relief-dispatch-api-server/config"
	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAdminOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	cfg := config.SeedConfig{AdminEmail: "Admin@Relief.local", AdminPassword: "adminpassword"}

	require.NoError(t, SeedAdmin(ctx, s, cfg))
	require.NoError(t, SeedAdmin(ctx, s, cfg))

	u, err := s.GetUserByEmail(ctx, "admin@relief.local")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.True(t, auth.CheckPasswordHash("adminpassword", u.PasswordHash))
}

func TestSeedCentres(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	path := filepath.Join(t.TempDir(), "centres.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "c1", "name": "North Hall", "latitude": 12.72, "longitude": 79.98, "capacity": 120},
		{"id": "c2", "name": "South School", "latitude": 12.60, "longitude": 79.90, "status": "inactive"}
	]`), 0o600))

	n, err := SeedCentres(ctx, s, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = SeedCentres(ctx, s, path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	c1, err := s.GetCentre(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CentreActive, c1.Status)
	require.NotNil(t, c1.Capacity)
	assert.Equal(t, 120, *c1.Capacity)
}

func TestSeedCentresRejectsBadCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "centres.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "bad", "name": "X", "latitude": 91, "longitude": 0}]`), 0o600))
	_, err := SeedCentres(context.Background(), store.NewMemory(), path)
	assert.ErrorIs(t, err, models.ErrValidation)
}
