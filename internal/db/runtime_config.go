package db

import (
	"context"
	"fmt"
)

// GetRuntimeConfig reads the persisted maintenance / feature document.
func (db *DB) GetRuntimeConfig(ctx context.Context) (*RuntimeConfig, error) {
	c := &RuntimeConfig{}
	err := db.Pool.QueryRow(ctx,
		`SELECT maintenance_mode, beta_percent, api_version, updated_at
		 FROM runtime_config WHERE id = 1`,
	).Scan(&c.MaintenanceMode, &c.BetaPercent, &c.APIVersion, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting runtime config: %w", err)
	}
	return c, nil
}

// UpdateRuntimeConfig replaces the persisted maintenance / feature document.
func (db *DB) UpdateRuntimeConfig(ctx context.Context, maintenanceMode bool, betaPercent int, apiVersion string) (*RuntimeConfig, error) {
	c := &RuntimeConfig{}
	err := db.Pool.QueryRow(ctx,
		`UPDATE runtime_config
		 SET maintenance_mode = $1, beta_percent = $2, api_version = $3, updated_at = now()
		 WHERE id = 1
		 RETURNING maintenance_mode, beta_percent, api_version, updated_at`,
		maintenanceMode, betaPercent, apiVersion,
	).Scan(&c.MaintenanceMode, &c.BetaPercent, &c.APIVersion, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updating runtime config: %w", err)
	}
	return c, nil
}
