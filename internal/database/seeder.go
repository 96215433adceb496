// server/internal/database/seeder.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"relief-dispatch-api-server/config"
	"relief-dispatch-api-server/internal/auth"
	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"
	"relief-dispatch-api-server/internal/store"

	"github.com/google/uuid"
)

// SeedAdmin creates the configured admin account once.
func SeedAdmin(ctx context.Context, users store.UserStore, cfg config.SeedConfig) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	_, err := users.GetUserByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		logger.L().Info("seed_admin_skipped", "email", cfg.AdminEmail)
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	hashedPassword, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	admin := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(cfg.AdminEmail),
		Name:         "Relief Admin",
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}
	if err := users.CreateUser(ctx, admin); err != nil && !errors.Is(err, models.ErrAlreadyExists) {
		return err
	}
	logger.L().Info("seed_admin_created", "email", admin.Email)
	return nil
}

// SeedCentres loads centres from a JSON array file, skipping ids that
// already exist.
func SeedCentres(ctx context.Context, centres store.CentreStore, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read centres file: %w", err)
	}
	var list []models.ReliefCentre
	if err := json.Unmarshal(raw, &list); err != nil {
		return 0, fmt.Errorf("parse centres file: %w", err)
	}

	now := time.Now().UTC()
	created := 0
	for i := range list {
		c := &list[i]
		if c.ID == "" {
			return created, fmt.Errorf("centre %d: %w: id is required", i, models.ErrValidation)
		}
		if err := c.Coordinate().Validate(); err != nil {
			return created, fmt.Errorf("centre %s: %w", c.ID, err)
		}
		if c.Status == "" {
			c.Status = models.CentreActive
		}
		c.CreatedAt, c.UpdatedAt = now, now
		err := centres.CreateCentre(ctx, c)
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrAlreadyExists):
		default:
			return created, err
		}
	}
	logger.L().Info("seed_centres", "file", path, "created", created, "total", len(list))
	return created, nil
}
