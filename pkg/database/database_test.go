package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)

	db := Wrap(bun.NewDB(sqldb, pgdialect.New()))
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestGetServers(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"id", "name", "base_url", "strength", "status", "participant_count", "meeting_count"}).
		AddRow(1, "a", "https://a.example.org", 1, 1, 12, 2).
		AddRow(2, "b", "https://b.example.org", 5, 0, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`) + `.*` + regexp.QuoteMeta(`FROM "servers" AS "s" ORDER BY "id"`)).
		WillReturnRows(rows)

	servers, err := db.GetServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, models.StatusOnline, servers[0].Status)
	require.NotNil(t, servers[0].ParticipantCount)
	assert.Equal(t, 12, *servers[0].ParticipantCount)
	assert.Equal(t, 2, *servers[0].MeetingCount)

	assert.Equal(t, models.StatusOffline, servers[1].Status)
	assert.Equal(t, 5, servers[1].Strength)
	assert.Nil(t, servers[1].ParticipantCount)
}

func TestGetServerByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "servers" AS "s" WHERE (id = 42)`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetServerByID(context.Background(), 42)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLockServer(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "servers" AS "s" WHERE (id = 7) FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(7, "a", 1))

	srv, err := db.LockServer(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), srv.ID)
	assert.Equal(t, models.StatusOnline, srv.Status)
}

// sqlStateError carries a SQLSTATE the way pgdriver.Error does.
type sqlStateError string

func (e sqlStateError) Error() string { return "ERROR #" + string(e) }
func (e sqlStateError) Field(k byte) string {
	if k == 'C' {
		return string(e)
	}
	return ""
}

func TestInsertMeetingConflict(t *testing.T) {
	tests := []struct {
		name     string
		dbErr    error
		conflict bool
	}{
		{name: "Unique violation", dbErr: sqlStateError("23505"), conflict: true},
		{name: "Foreign key violation", dbErr: sqlStateError("23503")},
		{name: "Connection lost", dbErr: errors.New("connection reset by peer")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "meetings"`)).
				WillReturnError(tt.dbErr)

			err := db.InsertMeeting(context.Background(), &models.Meeting{ID: uuid.New(), RoomID: "r"})
			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, store.ErrConflict))
		})
	}
}

func TestInitSchema(t *testing.T) {
	db, mock := newMockDB(t)

	for range 9 {
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	for _, name := range []string{
		"meetings_server_id_idx",
		"meeting_attendees_meeting_id_idx",
		"server_stats_created_at_idx",
		"meeting_stats_created_at_idx",
	} {
		mock.ExpectExec(regexp.QuoteMeta(`CREATE INDEX IF NOT EXISTS "` + name + `"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX IF NOT EXISTS "meetings_room_id_running_idx" ON "meetings"`) +
		`.*"room_id".*WHERE \(?"end" IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX IF NOT EXISTS "meeting_attendees_open_user_idx" ON "meeting_attendees"`) +
		`.*"meeting_id", "user_id".*WHERE \(?"leave" IS NULL AND user_id IS NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE UNIQUE INDEX IF NOT EXISTS "meeting_attendees_open_session_idx" ON "meeting_attendees"`) +
		`.*"meeting_id", "session_id".*WHERE \(?"leave" IS NULL AND session_id IS NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, db.InitSchema(context.Background()))
}

func TestUpdateMeeting(t *testing.T) {
	db, mock := newMockDB(t)

	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	meeting := models.Meeting{ID: uuid.New()}
	meeting.Finish(end)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "meetings" AS "m" SET "end" = '2024-03-01 12:00:00`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.UpdateMeeting(context.Background(), &meeting))
}

func TestUpdateServerUsageMissingRow(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "servers" AS "s" SET "status" = 0`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	srv := models.Server{ID: 7}
	err := db.UpdateServerUsage(context.Background(), &srv)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteStatsBefore(t *testing.T) {
	cutoff := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		table string
		call  func(db *DB) (int64, error)
	}{
		{
			name:  "Server stats",
			table: `DELETE FROM "server_stats" AS "ss" WHERE (created_at < '2024-03-10 12:00:00`,
			call: func(db *DB) (int64, error) {
				return db.DeleteServerStatsBefore(context.Background(), cutoff)
			},
		},
		{
			name:  "Meeting stats",
			table: `DELETE FROM "meeting_stats" AS "ms" WHERE (created_at < '2024-03-10 12:00:00`,
			call: func(db *DB) (int64, error) {
				return db.DeleteMeetingStatsBefore(context.Background(), cutoff)
			},
		},
		{
			name:  "Attendance",
			table: `DELETE FROM "meeting_attendees" AS "ma" WHERE ("leave" < '2024-03-10 12:00:00`,
			call: func(db *DB) (int64, error) {
				return db.DeleteAttendeesLeftBefore(context.Background(), cutoff)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			mock.ExpectExec(regexp.QuoteMeta(tt.table)).
				WillReturnResult(sqlmock.NewResult(0, 3))

			n, err := tt.call(db)
			require.NoError(t, err)
			assert.Equal(t, int64(3), n)
		})
	}
}

func TestInTx(t *testing.T) {
	cutoff := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "server_stats"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "meeting_stats"`)).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := db.InTx(context.Background(), func(tx store.Store) error {
			if _, err := tx.DeleteServerStatsBefore(context.Background(), cutoff); err != nil {
				return err
			}
			// Nested calls join the outer transaction.
			return tx.InTx(context.Background(), func(inner store.Store) error {
				_, err := inner.DeleteMeetingStatsBefore(context.Background(), cutoff)
				return err
			})
		})
		require.NoError(t, err)
	})

	t.Run("Rollback", func(t *testing.T) {
		db, mock := newMockDB(t)
		boom := errors.New("disk full")

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "server_stats"`)).
			WillReturnError(boom)
		mock.ExpectRollback()

		err := db.InTx(context.Background(), func(tx store.Store) error {
			_, err := tx.DeleteServerStatsBefore(context.Background(), cutoff)
			return err
		})
		require.ErrorIs(t, err, boom)
	})
}
