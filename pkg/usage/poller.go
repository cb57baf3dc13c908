// Package usage keeps the live state of every server in step with what the
// backends report.
//
// A polling pass fetches the live meetings of one server and then applies,
// in a single transaction, either the online path (status ONLINE, counters
// from the reported meetings, attendance reconciled, vanished meetings
// ended) or the unavailable path (status OFFLINE, counters cleared, every
// running meeting force ended). Nothing in between is ever stored.
//
// Passes for different servers run in parallel, bounded by
// poll.concurrency. Passes for the same server are collapsed so that two
// reconciliations of one meeting never interleave.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"conference-balancer/pkg/attendance"
	"conference-balancer/pkg/bbb"
	"conference-balancer/pkg/config"
	"conference-balancer/pkg/history"
	"conference-balancer/pkg/metrics"
	"conference-balancer/pkg/models"
	"conference-balancer/pkg/store"
)

// ErrAllServersFailed is returned by PollAll when not a single enabled
// server could be reached.
var ErrAllServersFailed = errors.New("every server failed to refresh")

// Outcome describes one polling pass.
type Outcome struct {
	ServerID int64
	Status   models.ServerStatus
	// Meetings is the number of live meetings the backend reported.
	Meetings   int
	Ended      int
	Usage      models.Usage
	Attendance attendance.Result
	// Err is the reachability error that took the server offline.
	Err error
}

type Poller struct {
	store      store.Store
	client     bbb.Client
	attendance *attendance.Reconciler
	history    *history.Recorder
	clock      quartz.Clock
	log        *zap.SugaredLogger

	timeout     time.Duration
	concurrency int
	inflight    singleflight.Group
}

func NewPoller(
	st store.Store,
	client bbb.Client,
	rec *attendance.Reconciler,
	hist *history.Recorder,
	cfg config.Poll,
	clock quartz.Clock,
	log *zap.SugaredLogger,
) *Poller {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Poller{
		store:       st,
		client:      client,
		attendance:  rec,
		history:     hist,
		clock:       clock,
		log:         log,
		timeout:     cfg.Timeout,
		concurrency: concurrency,
	}
}

// Poll runs one pass for the server. An unreachable backend is not an
// error: the server is taken offline and the reason is reported in
// Outcome.Err. The returned error is set only when the result could not be
// stored. A call for a server that is already being polled waits for and
// shares that pass instead of starting another one. The shared pass runs
// under the context of the caller that started it; a waiting caller whose
// own ctx ends stops waiting and gets ctx.Err() while the pass carries on.
// Passes in other processes are kept apart by the server row lock.
func (p *Poller) Poll(ctx context.Context, serverID int64) (Outcome, error) {
	ch := p.inflight.DoChan(strconv.FormatInt(serverID, 10), func() (any, error) {
		return p.poll(ctx, serverID)
	})
	select {
	case res := <-ch:
		out, _ := res.Val.(Outcome)
		return out, res.Err
	case <-ctx.Done():
		return Outcome{ServerID: serverID}, ctx.Err()
	}
}

func (p *Poller) poll(ctx context.Context, serverID int64) (Outcome, error) {
	start := p.clock.Now()
	defer func() {
		metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
	}()

	srv, err := p.store.GetServerByID(ctx, serverID)
	if err != nil {
		return Outcome{ServerID: serverID}, fmt.Errorf("failed to load server %d: %w", serverID, err)
	}

	if srv.Status == models.StatusDisabled {
		return p.applyUnavailable(ctx, srv.ID, models.StatusDisabled, nil)
	}

	live, fetchErr := p.fetch(ctx, srv)
	if ctx.Err() != nil {
		// Shutting down; the backend was not at fault.
		return Outcome{ServerID: serverID}, ctx.Err()
	}
	if fetchErr != nil {
		p.log.Warnw("Server unreachable", "server", srv.ID, "name", srv.Name, "error", fetchErr)
		return p.applyUnavailable(ctx, srv.ID, models.StatusOffline, fetchErr)
	}

	var out Outcome
	now := p.clock.Now()
	err = p.store.InTx(ctx, func(tx store.Store) error {
		// Held until commit so a concurrent pass reads what this one wrote.
		current, err := tx.LockServer(ctx, srv.ID)
		if err != nil {
			return fmt.Errorf("failed to load server %d: %w", srv.ID, err)
		}
		// Disabled while the request was in flight.
		if current.Status == models.StatusDisabled {
			out = Outcome{ServerID: srv.ID, Status: models.StatusDisabled}
			out.Ended, err = p.markUnavailable(ctx, tx, &current, models.StatusDisabled, now)
			return err
		}
		out, err = p.markOnline(ctx, tx, &current, live, now)
		return err
	})
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return Outcome{ServerID: serverID}, err
	}

	metrics.PollsTotal.WithLabelValues(out.Status.String()).Inc()
	p.log.Infow("Server refreshed",
		"server", srv.ID,
		"status", out.Status.String(),
		"meetings", out.Meetings,
		"participants", out.Usage.Participants,
		"ended", out.Ended,
		"joined", out.Attendance.Joined,
		"left", out.Attendance.Left,
	)
	return out, nil
}

func (p *Poller) fetch(ctx context.Context, srv models.Server) ([]bbb.Meeting, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	live, err := p.client.GetMeetings(fetchCtx, srv)
	if err != nil {
		return nil, err
	}
	return live, nil
}

func (p *Poller) applyUnavailable(ctx context.Context, serverID int64, status models.ServerStatus, cause error) (Outcome, error) {
	out := Outcome{ServerID: serverID, Status: status, Err: cause}
	now := p.clock.Now()

	err := p.store.InTx(ctx, func(tx store.Store) error {
		srv, err := tx.LockServer(ctx, serverID)
		if err != nil {
			return fmt.Errorf("failed to load server %d: %w", serverID, err)
		}
		if srv.Status == models.StatusDisabled {
			status = models.StatusDisabled
			out.Status = status
		}
		out.Ended, err = p.markUnavailable(ctx, tx, &srv, status, now)
		return err
	})
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		return Outcome{ServerID: serverID}, err
	}

	metrics.PollsTotal.WithLabelValues(out.Status.String()).Inc()
	return out, nil
}

// Report summarises one refresh cycle over all servers.
type Report struct {
	RunID    string
	Outcomes []Outcome
	Online   int
	Offline  int
	Disabled int
}

// PollAll polls every server. Individual unreachable servers do not fail
// the cycle; it fails when the repository cannot be read or written, or
// when every enabled server was unreachable.
func (p *Poller) PollAll(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := p.log.With("run", report.RunID)

	servers, err := p.store.GetServers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to get servers: %w", err)
	}

	report.Outcomes = make([]Outcome, len(servers))
	errs := make([]error, len(servers))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, srv := range servers {
		g.Go(func() error {
			report.Outcomes[i], errs[i] = p.Poll(ctx, srv.ID)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		log.Errorw("Refresh cycle could not store results", "error", err)
		return report, err
	}

	enabled := 0
	for _, out := range report.Outcomes {
		switch out.Status {
		case models.StatusOnline:
			report.Online++
		case models.StatusOffline:
			report.Offline++
		case models.StatusDisabled:
			report.Disabled++
		}
		if out.Status != models.StatusDisabled {
			enabled++
		}
	}
	metrics.ServersOnline.Set(float64(report.Online))

	log.Infow("Refresh cycle finished",
		"servers", len(servers),
		"online", report.Online,
		"offline", report.Offline,
		"disabled", report.Disabled,
	)

	if enabled > 0 && report.Online == 0 {
		return report, ErrAllServersFailed
	}
	return report, nil
}

// SetStatus applies an administrative status change. Disabling takes the
// server out of rotation at once, with the same side effects as an
// unreachable backend. Enabling a disabled server leaves it OFFLINE until
// the next successful poll; enabling a server that is not disabled changes
// nothing.
func (p *Poller) SetStatus(ctx context.Context, serverID int64, status models.ServerStatus) (models.Server, error) {
	var srv models.Server
	now := p.clock.Now()

	err := p.store.InTx(ctx, func(tx store.Store) error {
		var err error
		srv, err = tx.LockServer(ctx, serverID)
		if err != nil {
			return fmt.Errorf("failed to load server %d: %w", serverID, err)
		}

		switch status {
		case models.StatusDisabled:
			ended, err := p.markUnavailable(ctx, tx, &srv, models.StatusDisabled, now)
			if err != nil {
				return err
			}
			p.log.Infow("Server disabled", "server", srv.ID, "ended", ended)
			return nil

		case models.StatusOnline, models.StatusOffline:
			if srv.Status != models.StatusDisabled {
				return nil
			}
			srv.Status = models.StatusOffline
			srv.ClearUsage()
			if err := tx.UpdateServerUsage(ctx, &srv); err != nil {
				return fmt.Errorf("failed to update server %d: %w", srv.ID, err)
			}
			p.log.Infow("Server enabled", "server", srv.ID)
			return nil
		}
		return fmt.Errorf("unknown server status %d", status)
	})
	return srv, err
}
