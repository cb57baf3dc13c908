package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"conference-balancer/pkg/models"
)

func (db *DB) GetOpenAttendees(ctx context.Context, meetingID uuid.UUID) ([]models.Attendee, error) {
	var attendees []models.Attendee
	err := db.q.NewSelect().
		Model(&attendees).
		Where("meeting_id = ?", meetingID).
		Where("? IS NULL", bun.Ident("leave")).
		Order("id").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting open attendees: %w", err)
	}

	return attendees, nil
}

func (db *DB) InsertAttendee(ctx context.Context, attendee *models.Attendee) error {
	err := db.q.NewInsert().
		Model(attendee).
		Returning("id").
		Scan(ctx)

	if err != nil {
		return fmt.Errorf("error inserting attendee: %w", err)
	}

	return nil
}

func (db *DB) CloseAttendee(ctx context.Context, attendee *models.Attendee) error {
	res, err := db.q.NewUpdate().
		Model(attendee).
		Column("leave").
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error closing attendee: %w", err)
	}

	return affected(res)
}

// DeleteAttendeesLeftBefore removes closed sessions only; open rows have no
// leave time and never match.
func (db *DB) DeleteAttendeesLeftBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.q.NewDelete().
		Model((*models.Attendee)(nil)).
		Where("? < ?", bun.Ident("leave"), cutoff).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("error deleting attendees: %w", err)
	}

	return res.RowsAffected()
}
