package database

import (
	"context"
	"fmt"
	"time"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

func (db *DB) GetServers(ctx context.Context) ([]models.Server, error) {
	var servers []models.Server
	err := db.q.NewSelect().
		Model(&servers).
		Order("id").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting all servers: %w", err)
	}

	return servers, nil
}

func (db *DB) GetServerByID(ctx context.Context, id int64) (models.Server, error) {
	var server models.Server
	err := db.q.NewSelect().
		Model(&server).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		return models.Server{}, notFound(err)
	}

	return server, nil
}

func (db *DB) LockServer(ctx context.Context, id int64) (models.Server, error) {
	var server models.Server
	err := db.q.NewSelect().
		Model(&server).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		return models.Server{}, notFound(err)
	}

	return server, nil
}

// UpsertServer inserts the server or, when its base URL is already known,
// updates name, secret and strength. Status and counters are left alone.
func (db *DB) UpsertServer(ctx context.Context, server *models.Server) error {
	err := db.q.NewInsert().
		Model(server).
		On("CONFLICT (base_url) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("secret = EXCLUDED.secret").
		Set("strength = EXCLUDED.strength").
		Set("updated_at = CURRENT_TIMESTAMP").
		Returning("*").
		Scan(ctx)

	if err != nil {
		return fmt.Errorf("error upserting server: %w", err)
	}

	return nil
}

func (db *DB) UpdateServerUsage(ctx context.Context, server *models.Server) error {
	server.UpdatedAt = time.Now()
	res, err := db.q.NewUpdate().
		Model(server).
		Column("status",
			"participant_count",
			"listener_count",
			"voice_participant_count",
			"video_count",
			"meeting_count",
			"updated_at").
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error updating server usage: %w", err)
	}

	return affected(res)
}

func (db *DB) GetPoolServers(ctx context.Context, poolID int64) ([]models.Server, error) {
	exists, err := db.q.NewSelect().
		Model((*models.ServerPool)(nil)).
		Where("id = ?", poolID).
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking pool: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	var servers []models.Server
	err = db.q.NewSelect().
		Model(&servers).
		Join("JOIN server_pool_servers AS sps ON sps.server_id = s.id").
		Where("sps.server_pool_id = ?", poolID).
		OrderExpr("s.id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting pool servers: %w", err)
	}

	return servers, nil
}

func (db *DB) GetPoolByName(ctx context.Context, name string) (models.ServerPool, error) {
	var pool models.ServerPool
	err := db.q.NewSelect().
		Model(&pool).
		Where("name = ?", name).
		Scan(ctx)

	if err != nil {
		return models.ServerPool{}, notFound(err)
	}

	return pool, nil
}

func (db *DB) AddServerToPool(ctx context.Context, poolID, serverID int64) error {
	_, err := db.q.NewInsert().
		Model(&models.ServerPoolServer{ServerPoolID: poolID, ServerID: serverID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error adding server %d to pool %d: %w", serverID, poolID, err)
	}

	return nil
}
