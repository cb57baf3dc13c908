// Package memstore is an in-memory store.Store. It backs the unit tests of
// the poller, reconciler, recorder and sweeper, and keeps the same
// transactional contract as the Postgres store: a failed InTx leaves no
// trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

type data struct {
	servers      map[int64]models.Server
	pools        map[int64]models.ServerPool
	members      map[int64][]int64
	rooms        map[string]models.Room
	meetings     map[uuid.UUID]models.Meeting
	users        map[int64]models.User
	attendees    []models.Attendee
	serverStats  []models.ServerStat
	meetingStats []models.MeetingStat
	nextID       int64
	err          error
}

func (d *data) clone() *data {
	c := &data{
		servers:      make(map[int64]models.Server, len(d.servers)),
		pools:        make(map[int64]models.ServerPool, len(d.pools)),
		members:      make(map[int64][]int64, len(d.members)),
		rooms:        make(map[string]models.Room, len(d.rooms)),
		meetings:     make(map[uuid.UUID]models.Meeting, len(d.meetings)),
		users:        make(map[int64]models.User, len(d.users)),
		attendees:    append([]models.Attendee(nil), d.attendees...),
		serverStats:  append([]models.ServerStat(nil), d.serverStats...),
		meetingStats: append([]models.MeetingStat(nil), d.meetingStats...),
		nextID:       d.nextID,
		err:          d.err,
	}
	for k, v := range d.servers {
		c.servers[k] = v
	}
	for k, v := range d.pools {
		c.pools[k] = v
	}
	for k, v := range d.members {
		c.members[k] = append([]int64(nil), v...)
	}
	for k, v := range d.rooms {
		c.rooms[k] = v
	}
	for k, v := range d.meetings {
		c.meetings[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	return c
}

func (d *data) id() int64 {
	d.nextID++
	return d.nextID
}

// Store is safe for concurrent use. Transactions are serialised.
type Store struct {
	mu   *sync.Mutex
	d    **data
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	d := &data{
		servers:  make(map[int64]models.Server),
		pools:    make(map[int64]models.ServerPool),
		members:  make(map[int64][]int64),
		rooms:    make(map[string]models.Room),
		meetings: make(map[uuid.UUID]models.Meeting),
		users:    make(map[int64]models.User),
	}
	return &Store{mu: &sync.Mutex{}, d: &d}
}

// Fail makes every following call return err. Pass nil to recover.
func (s *Store) Fail(err error) {
	unlock := s.lock()
	defer unlock()
	(*s.d).err = err
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) acquire() (*data, func(), error) {
	unlock := s.lock()
	d := *s.d
	if d.err != nil {
		unlock()
		return nil, func() {}, d.err
	}
	return d, unlock, nil
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if (*s.d).err != nil {
		return (*s.d).err
	}

	snapshot := (*s.d).clone()
	err := fn(&Store{mu: s.mu, d: s.d, inTx: true})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		*s.d = snapshot
		return err
	}
	return nil
}

/*──────────────────────────── servers and pools ────────────────────────────*/

func (s *Store) GetServers(ctx context.Context) ([]models.Server, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	servers := make([]models.Server, 0, len(d.servers))
	for _, srv := range d.servers {
		servers = append(servers, srv)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

func (s *Store) GetServerByID(ctx context.Context, id int64) (models.Server, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return models.Server{}, err
	}
	defer unlock()

	srv, ok := d.servers[id]
	if !ok {
		return models.Server{}, store.ErrNotFound
	}
	return srv, nil
}

// LockServer is GetServerByID: transactions already run one at a time.
func (s *Store) LockServer(ctx context.Context, id int64) (models.Server, error) {
	return s.GetServerByID(ctx, id)
}

func (s *Store) UpsertServer(ctx context.Context, server *models.Server) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	for id, existing := range d.servers {
		if existing.BaseURL == server.BaseURL {
			existing.Name = server.Name
			existing.Secret = server.Secret
			existing.Strength = server.Strength
			d.servers[id] = existing
			*server = existing
			return nil
		}
	}
	if server.ID == 0 {
		server.ID = d.id()
	}
	d.servers[server.ID] = *server
	return nil
}

func (s *Store) UpdateServerUsage(ctx context.Context, server *models.Server) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	existing, ok := d.servers[server.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = server.Status
	existing.ParticipantCount = server.ParticipantCount
	existing.ListenerCount = server.ListenerCount
	existing.VoiceParticipantCount = server.VoiceParticipantCount
	existing.VideoCount = server.VideoCount
	existing.MeetingCount = server.MeetingCount
	d.servers[server.ID] = existing
	return nil
}

func (s *Store) GetPoolServers(ctx context.Context, poolID int64) ([]models.Server, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, ok := d.pools[poolID]; !ok {
		return nil, store.ErrNotFound
	}
	ids := append([]int64(nil), d.members[poolID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	servers := make([]models.Server, 0, len(ids))
	for _, id := range ids {
		if srv, ok := d.servers[id]; ok {
			servers = append(servers, srv)
		}
	}
	return servers, nil
}

func (s *Store) GetPoolByName(ctx context.Context, name string) (models.ServerPool, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return models.ServerPool{}, err
	}
	defer unlock()

	for _, p := range d.pools {
		if p.Name == name {
			return p, nil
		}
	}
	return models.ServerPool{}, store.ErrNotFound
}

func (s *Store) AddServerToPool(ctx context.Context, poolID, serverID int64) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := d.pools[poolID]; !ok {
		return store.ErrNotFound
	}
	for _, id := range d.members[poolID] {
		if id == serverID {
			return nil
		}
	}
	d.members[poolID] = append(d.members[poolID], serverID)
	return nil
}

/*──────────────────────────── rooms and meetings ───────────────────────────*/

func (s *Store) GetRoomByID(ctx context.Context, id string) (models.Room, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return models.Room{}, err
	}
	defer unlock()

	room, ok := d.rooms[id]
	if !ok {
		return models.Room{}, store.ErrNotFound
	}
	return room, nil
}

func (s *Store) UpdateRoomUsage(ctx context.Context, room *models.Room) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	existing, ok := d.rooms[room.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.ParticipantCount = room.ParticipantCount
	existing.ListenerCount = room.ListenerCount
	existing.VoiceParticipantCount = room.VoiceParticipantCount
	existing.VideoCount = room.VideoCount
	d.rooms[room.ID] = existing
	return nil
}

func (s *Store) InsertMeeting(ctx context.Context, meeting *models.Meeting) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	if meeting.IsRunning() {
		for _, m := range d.meetings {
			if m.RoomID == meeting.RoomID && m.IsRunning() {
				return store.ErrConflict
			}
		}
	}
	d.meetings[meeting.ID] = *meeting
	return nil
}

func (s *Store) GetRunningMeetingByRoom(ctx context.Context, roomID string) (models.Meeting, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return models.Meeting{}, err
	}
	defer unlock()

	for _, m := range d.meetings {
		if m.RoomID == roomID && m.IsRunning() {
			return m, nil
		}
	}
	return models.Meeting{}, store.ErrNotFound
}

func (s *Store) GetRunningMeetingsByServer(ctx context.Context, serverID int64) ([]models.Meeting, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return d.runningMeetings(func(m models.Meeting) bool { return m.ServerID == serverID }), nil
}

func (s *Store) GetRunningMeetings(ctx context.Context) ([]models.Meeting, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	return d.runningMeetings(func(models.Meeting) bool { return true }), nil
}

func (d *data) runningMeetings(keep func(models.Meeting) bool) []models.Meeting {
	var meetings []models.Meeting
	for _, m := range d.meetings {
		if m.IsRunning() && keep(m) {
			meetings = append(meetings, m)
		}
	}
	sort.Slice(meetings, func(i, j int) bool { return meetings[i].Start.Before(meetings[j].Start) })
	return meetings
}

func (s *Store) UpdateMeeting(ctx context.Context, meeting *models.Meeting) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	existing, ok := d.meetings[meeting.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.End = meeting.End
	existing.RecordAttendance = meeting.RecordAttendance
	d.meetings[meeting.ID] = existing
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return models.User{}, err
	}
	defer unlock()

	u, ok := d.users[id]
	if !ok {
		return models.User{}, store.ErrNotFound
	}
	return u, nil
}

/*──────────────────────────────── attendance ───────────────────────────────*/

func (s *Store) GetOpenAttendees(ctx context.Context, meetingID uuid.UUID) ([]models.Attendee, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var open []models.Attendee
	for _, a := range d.attendees {
		if a.MeetingID == meetingID && a.IsOpen() {
			open = append(open, a)
		}
	}
	return open, nil
}

func (s *Store) InsertAttendee(ctx context.Context, attendee *models.Attendee) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	attendee.ID = d.id()
	d.attendees = append(d.attendees, *attendee)
	return nil
}

func (s *Store) CloseAttendee(ctx context.Context, attendee *models.Attendee) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	for i := range d.attendees {
		if d.attendees[i].ID == attendee.ID {
			d.attendees[i].Leave = attendee.Leave
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeleteAttendeesLeftBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	kept := d.attendees[:0]
	var deleted int64
	for _, a := range d.attendees {
		if a.Leave != nil && a.Leave.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	d.attendees = kept
	return deleted, nil
}

/*────────────────────────────────── stats ──────────────────────────────────*/

func (s *Store) InsertServerStat(ctx context.Context, stat *models.ServerStat) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	stat.ID = d.id()
	d.serverStats = append(d.serverStats, *stat)
	return nil
}

func (s *Store) InsertMeetingStat(ctx context.Context, stat *models.MeetingStat) error {
	d, unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	stat.ID = d.id()
	d.meetingStats = append(d.meetingStats, *stat)
	return nil
}

func (s *Store) DeleteServerStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	kept := d.serverStats[:0]
	var deleted int64
	for _, st := range d.serverStats {
		if st.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, st)
	}
	d.serverStats = kept
	return deleted, nil
}

func (s *Store) DeleteMeetingStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	d, unlock, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer unlock()

	kept := d.meetingStats[:0]
	var deleted int64
	for _, st := range d.meetingStats {
		if st.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, st)
	}
	d.meetingStats = kept
	return deleted, nil
}
