package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

func (db *DB) GetRoomByID(ctx context.Context, id string) (models.Room, error) {
	var room models.Room
	err := db.q.NewSelect().
		Model(&room).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		return models.Room{}, notFound(err)
	}

	return room, nil
}

func (db *DB) UpdateRoomUsage(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now()
	res, err := db.q.NewUpdate().
		Model(room).
		Column("participant_count",
			"listener_count",
			"voice_participant_count",
			"video_count",
			"updated_at").
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error updating room usage: %w", err)
	}

	return affected(res)
}

func (db *DB) InsertMeeting(ctx context.Context, meeting *models.Meeting) error {
	_, err := db.q.NewInsert().
		Model(meeting).
		Exec(ctx)

	if uniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("error inserting meeting: %w", err)
	}

	return nil
}

func (db *DB) GetRunningMeetingByRoom(ctx context.Context, roomID string) (models.Meeting, error) {
	var meeting models.Meeting
	err := db.q.NewSelect().
		Model(&meeting).
		Where("room_id = ?", roomID).
		Where("? IS NULL", bun.Ident("end")).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return models.Meeting{}, notFound(err)
	}

	return meeting, nil
}

func (db *DB) GetRunningMeetingsByServer(ctx context.Context, serverID int64) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := db.q.NewSelect().
		Model(&meetings).
		Where("server_id = ?", serverID).
		Where("? IS NULL", bun.Ident("end")).
		OrderExpr("? ASC", bun.Ident("start")).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting running meetings of server %d: %w", serverID, err)
	}

	return meetings, nil
}

func (db *DB) GetRunningMeetings(ctx context.Context) ([]models.Meeting, error) {
	var meetings []models.Meeting
	err := db.q.NewSelect().
		Model(&meetings).
		Where("? IS NULL", bun.Ident("end")).
		OrderExpr("? ASC", bun.Ident("start")).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error getting running meetings: %w", err)
	}

	return meetings, nil
}

func (db *DB) UpdateMeeting(ctx context.Context, meeting *models.Meeting) error {
	res, err := db.q.NewUpdate().
		Model(meeting).
		Column("end", "record_attendance").
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error updating meeting: %w", err)
	}

	return affected(res)
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := db.q.NewSelect().
		Model(&user).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		return models.User{}, notFound(err)
	}

	return user, nil
}
