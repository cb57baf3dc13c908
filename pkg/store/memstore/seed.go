package memstore

import (
	"github.com/google/uuid"

	"conference-balancer/pkg/models"
)

// The helpers below seed and inspect the store directly. They bypass the
// error injected with Fail.

func (s *Store) AddServer(srv models.Server) models.Server {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	if srv.ID == 0 {
		srv.ID = d.id()
	}
	if srv.Strength == 0 {
		srv.Strength = 1
	}
	d.servers[srv.ID] = srv
	return srv
}

func (s *Store) AddPool(name string, serverIDs ...int64) models.ServerPool {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	p := models.ServerPool{ID: d.id(), Name: name}
	d.pools[p.ID] = p
	d.members[p.ID] = append([]int64(nil), serverIDs...)
	return p
}

func (s *Store) AddRoom(room models.Room) models.Room {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	d.rooms[room.ID] = room
	return room
}

func (s *Store) AddMeeting(m models.Meeting) models.Meeting {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	d.meetings[m.ID] = m
	return m
}

func (s *Store) AddUser(u models.User) models.User {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	if u.ID == 0 {
		u.ID = d.id()
	}
	d.users[u.ID] = u
	return u
}

func (s *Store) AddServerStat(st models.ServerStat) {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	st.ID = d.id()
	d.serverStats = append(d.serverStats, st)
}

func (s *Store) AddMeetingStat(st models.MeetingStat) {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	st.ID = d.id()
	d.meetingStats = append(d.meetingStats, st)
}

func (s *Store) AddAttendee(a models.Attendee) models.Attendee {
	unlock := s.lock()
	defer unlock()
	d := *s.d
	a.ID = d.id()
	d.attendees = append(d.attendees, a)
	return a
}

func (s *Store) Server(id int64) models.Server {
	unlock := s.lock()
	defer unlock()
	return (*s.d).servers[id]
}

func (s *Store) Room(id string) models.Room {
	unlock := s.lock()
	defer unlock()
	return (*s.d).rooms[id]
}

func (s *Store) Meeting(id uuid.UUID) models.Meeting {
	unlock := s.lock()
	defer unlock()
	return (*s.d).meetings[id]
}

// Attendees returns every session row of a meeting in insertion order.
func (s *Store) Attendees(meetingID uuid.UUID) []models.Attendee {
	unlock := s.lock()
	defer unlock()
	var rows []models.Attendee
	for _, a := range (*s.d).attendees {
		if a.MeetingID == meetingID {
			rows = append(rows, a)
		}
	}
	return rows
}

func (s *Store) ServerStats(serverID int64) []models.ServerStat {
	unlock := s.lock()
	defer unlock()
	var rows []models.ServerStat
	for _, st := range (*s.d).serverStats {
		if st.ServerID == serverID {
			rows = append(rows, st)
		}
	}
	return rows
}

func (s *Store) MeetingStats(meetingID uuid.UUID) []models.MeetingStat {
	unlock := s.lock()
	defer unlock()
	var rows []models.MeetingStat
	for _, st := range (*s.d).meetingStats {
		if st.MeetingID == meetingID {
			rows = append(rows, st)
		}
	}
	return rows
}
