// Package bbbtest provides a scripted bbb.Client for tests.
package bbbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"conference-balancer/pkg/bbb"
	"conference-balancer/pkg/models"
)

// ErrUnreachable is what Fake returns for a server marked Down.
var ErrUnreachable = errors.New("connection refused")

type response struct {
	meetings []bbb.Meeting
	err      error
}

// Fake answers GetMeetings per server id. Queued responses are consumed in
// order; once a queue is empty the last response keeps being returned.
type Fake struct {
	mu     sync.Mutex
	queues map[int64][]response
	last   map[int64]response
	calls  map[int64]int
	block  map[int64]chan struct{}

	active    map[int64]int
	maxActive map[int64]int
}

func NewFake() *Fake {
	return &Fake{
		queues: make(map[int64][]response),
		last:   make(map[int64]response),
		calls:  make(map[int64]int),
		block:  make(map[int64]chan struct{}),

		active:    make(map[int64]int),
		maxActive: make(map[int64]int),
	}
}

func (f *Fake) Queue(serverID int64, meetings ...bbb.Meeting) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if meetings == nil {
		meetings = []bbb.Meeting{}
	}
	f.queues[serverID] = append(f.queues[serverID], response{meetings: meetings})
	return f
}

func (f *Fake) QueueError(serverID int64, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[serverID] = append(f.queues[serverID], response{err: err})
	return f
}

func (f *Fake) Down(serverID int64) *Fake {
	return f.QueueError(serverID, ErrUnreachable)
}

// Hang makes calls for serverID block until Release or until their
// context is done.
func (f *Fake) Hang(serverID int64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block[serverID] = make(chan struct{})
	return f
}

// Release lets blocked and future calls for serverID answer again.
func (f *Fake) Release(serverID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.block[serverID]; ok {
		close(ch)
		delete(f.block, serverID)
	}
}

// MaxConcurrent is the largest number of calls for serverID that were in
// progress at the same time.
func (f *Fake) MaxConcurrent(serverID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive[serverID]
}

func (f *Fake) Calls(serverID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[serverID]
}

func (f *Fake) GetMeetings(ctx context.Context, server models.Server) ([]bbb.Meeting, error) {
	f.mu.Lock()
	f.calls[server.ID]++
	f.active[server.ID]++
	f.maxActive[server.ID] = max(f.maxActive[server.ID], f.active[server.ID])
	hang := f.block[server.ID]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active[server.ID]--
		f.mu.Unlock()
	}()

	if hang != nil {
		select {
		case <-hang:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[server.ID]
	if len(q) > 0 {
		f.last[server.ID] = q[0]
		f.queues[server.ID] = q[1:]
	}
	resp, ok := f.last[server.ID]
	if !ok {
		return nil, fmt.Errorf("no response scripted for server %d", server.ID)
	}
	return resp.meetings, resp.err
}

// Attendee is a shorthand for a present participant with audio.
func Attendee(userID, name string) bbb.Attendee {
	return bbb.Attendee{
		UserID:         userID,
		FullName:       name,
		Role:           bbb.RoleViewer,
		HasJoinedVoice: true,
	}
}

func Meeting(id string, attendees ...bbb.Attendee) bbb.Meeting {
	return bbb.Meeting{MeetingID: id, Running: true, Attendees: attendees}
}
