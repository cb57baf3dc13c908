package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64  `bun:",pk,autoincrement"`
	Firstname string `bun:",notnull"`
	Lastname  string `bun:",notnull"`
	Email     string `bun:",unique,notnull"`
}

// Attendee is one join-to-leave session of a user or guest in a meeting.
// Either UserID or SessionID is set, never both.
type Attendee struct {
	bun.BaseModel `bun:"table:meeting_attendees,alias:ma"`

	ID        int64      `bun:",pk,autoincrement"`
	MeetingID uuid.UUID  `bun:",notnull,type:uuid"`
	UserID    *int64
	Name      string     `bun:",nullzero"`
	SessionID string     `bun:",nullzero"`
	Join      time.Time  `bun:",notnull"`
	Leave     *time.Time // NULL while the session is open

	User *User `bun:"rel:belongs-to,join:user_id=id"`
}

func (a *Attendee) IsOpen() bool {
	return a.Leave == nil
}

func (a *Attendee) Close(at time.Time) {
	leave := at
	a.Leave = &leave
}
