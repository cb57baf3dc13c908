package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"conference-balancer/pkg/config"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

const pingRetries = 5

// DB is the Postgres implementation of store.Store. Queries run against q,
// which is the pool itself or the transaction started by InTx.
type DB struct {
	*bun.DB
	q    bun.IDB
	inTx bool
}

var _ store.Store = (*DB)(nil)

// NewDB connects to Postgres and waits for it to answer a ping, retrying
// with exponential backoff while it starts up.
func NewDB(ctx context.Context, cfg config.Database, log *zap.SugaredLogger) (*DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN())))
	db := bun.NewDB(sqldb, pgdialect.New())

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), pingRetries), ctx)
	err := backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, policy, func(err error, next time.Duration) {
		log.Warnw("Database not ready", "host", cfg.Host, "error", err, "retry_in", next)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return Wrap(db), nil
}

// Wrap adapts an open bun.DB.
func Wrap(db *bun.DB) *DB {
	db.RegisterModel((*models.ServerPoolServer)(nil))
	return &DB{DB: db, q: db}
}

func (db *DB) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if db.inTx {
		return fn(db)
	}
	return db.DB.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(&DB{DB: db.DB, q: &tx, inTx: true})
	})
}

// InitSchema creates the necessary tables if they don't exist
func (db *DB) InitSchema(ctx context.Context) error {
	tables := []any{
		(*models.User)(nil),
		(*models.Server)(nil),
		(*models.ServerPool)(nil),
		(*models.ServerPoolServer)(nil),
		(*models.Room)(nil),
		(*models.Meeting)(nil),
		(*models.Attendee)(nil),
		(*models.ServerStat)(nil),
		(*models.MeetingStat)(nil),
	}
	for _, model := range tables {
		if _, err := db.q.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   any
		name    string
		columns []string
		unique  bool
		where   string
	}{
		{model: (*models.Meeting)(nil), name: "meetings_server_id_idx", columns: []string{"server_id"}},
		{model: (*models.Attendee)(nil), name: "meeting_attendees_meeting_id_idx", columns: []string{"meeting_id"}},
		{model: (*models.ServerStat)(nil), name: "server_stats_created_at_idx", columns: []string{"created_at"}},
		{model: (*models.MeetingStat)(nil), name: "meeting_stats_created_at_idx", columns: []string{"created_at"}},
		// One running meeting per room, one open session per attendee.
		{
			model:   (*models.Meeting)(nil),
			name:    "meetings_room_id_running_idx",
			columns: []string{"room_id"},
			unique:  true,
			where:   `"end" IS NULL`,
		},
		{
			model:   (*models.Attendee)(nil),
			name:    "meeting_attendees_open_user_idx",
			columns: []string{"meeting_id", "user_id"},
			unique:  true,
			where:   `"leave" IS NULL AND user_id IS NOT NULL`,
		},
		{
			model:   (*models.Attendee)(nil),
			name:    "meeting_attendees_open_session_idx",
			columns: []string{"meeting_id", "session_id"},
			unique:  true,
			where:   `"leave" IS NULL AND session_id IS NOT NULL`,
		},
	}
	for _, idx := range indexes {
		q := db.q.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if idx.where != "" {
			q = q.Where(idx.where)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// uniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505). pgdriver.Error exposes the code through Field('C').
func uniqueViolation(err error) bool {
	var pgErr interface{ Field(k byte) string }
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}

// affected maps an update that matched no row to store.ErrNotFound.
func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
