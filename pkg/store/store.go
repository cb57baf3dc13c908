// Package store declares the repository the balancer core reads and writes.
// The Postgres implementation lives in pkg/database and an in-memory one in
// pkg/store/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"conference-balancer/pkg/models"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by inserts that would break a uniqueness rule,
// such as a second running meeting for one room.
var ErrConflict = errors.New("conflict")

// Store is the full repository. Every method is a single-entity operation;
// InTx groups several of them so a polling pass is applied all at once.
type Store interface {
	// InTx runs fn against a transactional Store. If fn returns an error
	// nothing it wrote is kept. Nested calls reuse the outer transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error

	GetServers(ctx context.Context) ([]models.Server, error)
	GetServerByID(ctx context.Context, id int64) (models.Server, error)
	// LockServer reads the server and holds it until the transaction ends.
	// Passes over the same server that take the lock run one after another,
	// also across processes.
	LockServer(ctx context.Context, id int64) (models.Server, error)
	UpsertServer(ctx context.Context, server *models.Server) error
	// UpdateServerUsage persists Status and the live counters.
	UpdateServerUsage(ctx context.Context, server *models.Server) error

	// GetPoolServers returns the members of a pool ordered by server id.
	GetPoolServers(ctx context.Context, poolID int64) ([]models.Server, error)
	GetPoolByName(ctx context.Context, name string) (models.ServerPool, error)
	AddServerToPool(ctx context.Context, poolID, serverID int64) error

	GetRoomByID(ctx context.Context, id string) (models.Room, error)
	UpdateRoomUsage(ctx context.Context, room *models.Room) error

	// InsertMeeting returns ErrConflict when the room already has a running
	// meeting.
	InsertMeeting(ctx context.Context, meeting *models.Meeting) error
	GetRunningMeetingByRoom(ctx context.Context, roomID string) (models.Meeting, error)
	GetRunningMeetingsByServer(ctx context.Context, serverID int64) ([]models.Meeting, error)
	GetRunningMeetings(ctx context.Context) ([]models.Meeting, error)
	// UpdateMeeting persists End and RecordAttendance.
	UpdateMeeting(ctx context.Context, meeting *models.Meeting) error

	GetUserByID(ctx context.Context, id int64) (models.User, error)

	GetOpenAttendees(ctx context.Context, meetingID uuid.UUID) ([]models.Attendee, error)
	InsertAttendee(ctx context.Context, attendee *models.Attendee) error
	// CloseAttendee persists Leave.
	CloseAttendee(ctx context.Context, attendee *models.Attendee) error
	DeleteAttendeesLeftBefore(ctx context.Context, cutoff time.Time) (int64, error)

	InsertServerStat(ctx context.Context, stat *models.ServerStat) error
	InsertMeetingStat(ctx context.Context, stat *models.MeetingStat) error
	DeleteServerStatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteMeetingStatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
