/*
Package models defines the persisted records of conference-balancer: backend
servers and the pools that group them, rooms and their meetings, attendance
sessions, and the time-series statistics built from each polling pass.

Core Types:

ServerStatus is the reachability state of a backend:

	const (
		StatusDisabled ServerStatus = -1 // set by an administrator only
		StatusOffline  ServerStatus = 0  // last poll failed
		StatusOnline   ServerStatus = 1  // last poll succeeded
	)

Server carries live counters that are either all set (online) or all NULL:

	type Server struct {
		ID                    int64
		Name                  string
		BaseURL               string // API endpoint of the backend
		Secret                string // shared secret for request checksums
		Strength              int    // capacity weight, > 0
		Status                ServerStatus
		ParticipantCount      *int
		ListenerCount         *int
		VoiceParticipantCount *int
		VideoCount            *int
		MeetingCount          *int
	}

Meeting is one run of a Room on a Server. End is NULL while it runs and a
room has at most one running meeting:

	type Meeting struct {
		ID               uuid.UUID
		RoomID           string
		ServerID         int64
		Start            time.Time
		End              *time.Time
		RecordAttendance bool
	}

Attendee is one contiguous presence of a user or guest. Leave is NULL while
the session is open, and a rejoin always creates a new row:

	type Attendee struct {
		MeetingID uuid.UUID
		UserID    *int64 // internal user, or
		Name      string // guest display name and
		SessionID string // guest session identifier
		Join      time.Time
		Leave     *time.Time
	}

ServerStat and MeetingStat are append-only snapshots removed only by the
retention sweep.

Relationships:

  - A ServerPool has many Servers and a Server may be in many pools
  - A Room belongs to one ServerPool and has many Meetings
  - A Meeting belongs to one Room and one Server and has many Attendees
  - Stats belong to one Server or one Meeting

Thread Safety:

The structs are plain values. Callers that share them across goroutines must
synchronise themselves; the poller never shares a record between servers.
*/
package models
