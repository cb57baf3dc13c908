package database

import (
	"context"
	"fmt"
	"time"

	"conference-balancer/pkg/models"
)

func (db *DB) InsertServerStat(ctx context.Context, stat *models.ServerStat) error {
	err := db.q.NewInsert().
		Model(stat).
		Returning("id").
		Scan(ctx)

	if err != nil {
		return fmt.Errorf("error inserting server stat: %w", err)
	}

	return nil
}

func (db *DB) InsertMeetingStat(ctx context.Context, stat *models.MeetingStat) error {
	err := db.q.NewInsert().
		Model(stat).
		Returning("id").
		Scan(ctx)

	if err != nil {
		return fmt.Errorf("error inserting meeting stat: %w", err)
	}

	return nil
}

func (db *DB) DeleteServerStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.q.NewDelete().
		Model((*models.ServerStat)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("error deleting server stats: %w", err)
	}

	return res.RowsAffected()
}

func (db *DB) DeleteMeetingStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.q.NewDelete().
		Model((*models.MeetingStat)(nil)).
		Where("created_at < ?", cutoff).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("error deleting meeting stats: %w", err)
	}

	return res.RowsAffected()
}
