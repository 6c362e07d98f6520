package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sla-monitor/watch-server/internal/model"
)

// ErrServiceNotFound is returned by lookups for unknown service ids.
var ErrServiceNotFound = errors.New("Service not found")

// SyncService reconciles one registry entry into the service dimension
// table: insert when missing, refresh endpoint_url when it changed,
// otherwise leave the row alone. Returns what happened for logging.
func (s *Store) SyncService(ctx context.Context, svc model.Service) (action string, err error) {
	var currentURL string
	err = s.db.QueryRowContext(ctx,
		`SELECT endpoint_url FROM services WHERE id = ?`, svc.ID).Scan(&currentURL)

	now := time.Now().UTC().UnixMilli()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO services (id, name, description, endpoint_url, created_at, updated_at)
			VALUES (?,?,?,?,?,?)`,
			svc.ID, svc.Name, svc.Description, svc.EndpointURL, now, now)
		if err != nil {
			return "", fmt.Errorf("store: insert service %s: %w", svc.ID, err)
		}
		return "created", nil
	case err != nil:
		return "", fmt.Errorf("store: lookup service %s: %w", svc.ID, err)
	case currentURL != svc.EndpointURL:
		_, err = s.db.ExecContext(ctx,
			`UPDATE services SET endpoint_url = ?, updated_at = ? WHERE id = ?`,
			svc.EndpointURL, now, svc.ID)
		if err != nil {
			return "", fmt.Errorf("store: update service %s: %w", svc.ID, err)
		}
		return "updated", nil
	default:
		return "unchanged", nil
	}
}

// GetService returns one service dimension row.
func (s *Store) GetService(ctx context.Context, id string) (model.Service, error) {
	var svc model.Service
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, endpoint_url, created_at, updated_at
		FROM services WHERE id = ?`, id).
		Scan(&svc.ID, &svc.Name, &svc.Description, &svc.EndpointURL, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Service{}, ErrServiceNotFound
	}
	if err != nil {
		return model.Service{}, fmt.Errorf("store: get service %s: %w", id, err)
	}
	svc.CreatedAt = time.UnixMilli(created).UTC()
	svc.UpdatedAt = time.UnixMilli(updated).UTC()
	return svc, nil
}

// ListServices returns all service dimension rows ordered by id.
func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, endpoint_url, created_at, updated_at
		FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		var created, updated int64
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.EndpointURL, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan service: %w", err)
		}
		svc.CreatedAt = time.UnixMilli(created).UTC()
		svc.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, svc)
	}
	return out, rows.Err()
}
