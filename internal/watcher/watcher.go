// Package watcher coordinates per-source poll cadences: each source runs
// on its own interval schedule, diffs against the persisted snapshot and
// hands non-empty reports to the sink. One source failing, stalling or
// returning garbage never affects the cadence of the others.
package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"modelwatch/internal/catalog"
	rtsup "modelwatch/internal/runtime/supervisor"
	"modelwatch/internal/source"
	"modelwatch/internal/state"
	logx "modelwatch/pkg/logx"
)

// Per-cycle bound covering fetch, diff and persist.
const cycleTimeout = 2 * time.Minute

// Sink receives rendered-and-delivered change reports. Implemented by the
// notify service.
type Sink interface {
	Deliver(ctx context.Context, report catalog.ChangeReport, chats []int64) error
}

// SourceStatus is the operational view of one source, surfaced by /status.
type SourceStatus struct {
	Name        string
	LastSuccess time.Time
	LastError   string
	LastErrorAt time.Time
	ModelCount  int
}

type runState struct {
	src     source.Source
	entryID cron.EntryID
	busy    atomic.Bool

	mu     sync.Mutex
	status SourceStatus
}

func (rs *runState) snapshotStatus() SourceStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status
}

func (rs *runState) recordSuccess(count int) {
	rs.mu.Lock()
	rs.status.LastSuccess = time.Now()
	rs.status.ModelCount = count
	rs.mu.Unlock()
}

func (rs *runState) recordError(err error) {
	rs.mu.Lock()
	rs.status.LastError = err.Error()
	rs.status.LastErrorAt = time.Now()
	rs.mu.Unlock()
}

type Watcher struct {
	mu sync.Mutex

	log    logx.Logger
	states *state.Manager
	sink   Sink

	c       *cron.Cron
	sup     *rtsup.Supervisor
	sources map[string]*runState
	order   []string
	running bool
}

func New(states *state.Manager, sink Sink, log logx.Logger) *Watcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		log:     log,
		states:  states,
		sink:    sink,
		sources: map[string]*runState{},
	}
}

// Start schedules every source and runs an immediate first cycle per
// source, so a fresh process establishes baselines (or reports changes
// accumulated while it was down) without waiting a full interval.
func (w *Watcher) Start(ctx context.Context, sources []source.Source) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	w.sup = rtsup.New(ctx, rtsup.WithLogger(w.log.With(logx.String("comp", "watcher"))))
	w.c = cron.New()
	w.sources = map[string]*runState{}
	w.order = nil

	for _, src := range sources {
		if err := w.addLocked(src); err != nil {
			return err
		}
	}

	w.c.Start()
	w.running = true

	for _, name := range w.order {
		rs := w.sources[name]
		w.sup.Go0("initial."+name, func(c context.Context) {
			w.runCycle(c, rs)
		})
	}

	w.log.Info("watcher started", logx.Int("sources", len(w.order)))
	return nil
}

func (w *Watcher) addLocked(src source.Source) error {
	rs := &runState{src: src}
	rs.status.Name = src.Name()

	sup := w.sup
	eid, err := w.c.AddFunc("@every "+src.Interval().String(), func() {
		w.runCycle(sup.Context(), rs)
	})
	if err != nil {
		return err
	}
	rs.entryID = eid
	w.sources[src.Name()] = rs
	w.order = append(w.order, src.Name())
	return nil
}

// ApplySources replaces the scheduled source set on config reload. Status
// history is kept for sources that survive; persisted snapshots are left
// untouched either way so a re-added source resumes from its baseline.
func (w *Watcher) ApplySources(sources []source.Source) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}

	<-w.c.Stop().Done()

	prev := w.sources
	w.c = cron.New()
	w.sources = map[string]*runState{}
	w.order = nil

	for _, src := range sources {
		if err := w.addLocked(src); err != nil {
			return err
		}
		if old, ok := prev[src.Name()]; ok {
			rs := w.sources[src.Name()]
			rs.mu.Lock()
			old.mu.Lock()
			rs.status = old.status
			old.mu.Unlock()
			rs.mu.Unlock()
		}
	}

	w.c.Start()

	// New sources get an immediate first cycle, same as at startup.
	for _, name := range w.order {
		if _, existed := prev[name]; existed {
			continue
		}
		rs := w.sources[name]
		w.sup.Go0("initial."+name, func(c context.Context) {
			w.runCycle(c, rs)
		})
	}

	w.log.Info("watch sources applied", logx.Int("sources", len(w.order)))
	return nil
}

func (w *Watcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.c
	sup := w.sup
	w.running = false
	w.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if sup != nil {
		return sup.Stop(ctx)
	}
	return nil
}

// Statuses returns per-source status in configuration order.
func (w *Watcher) Statuses() []SourceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]SourceStatus, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.sources[name].snapshotStatus())
	}
	return out
}

// runCycle executes one poll for a source. A cycle still running when the
// next tick fires makes the tick a no-op rather than stacking fetches.
func (w *Watcher) runCycle(ctx context.Context, rs *runState) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if !rs.busy.CompareAndSwap(false, true) {
		w.log.Debug("cycle still running, skipping tick", logx.String("source", rs.src.Name()))
		return
	}
	defer rs.busy.Store(false)

	cctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()
	w.cycle(cctx, rs)
}

func (w *Watcher) cycle(ctx context.Context, rs *runState) {
	name := rs.src.Name()
	log := w.log.With(logx.String("source", name))

	models, err := rs.src.Fetch(ctx)
	if err != nil {
		rs.recordError(err)
		log.Warn("poll failed", logx.Err(err))
		return
	}

	prev, known := w.states.Snapshot(name)

	// First successful poll establishes the baseline silently.
	if !known {
		if err := w.states.SetSnapshot(ctx, name, models); err != nil {
			rs.recordError(err)
			log.Error("baseline not persisted", logx.Err(err))
			return
		}
		rs.recordSuccess(len(models))
		log.Info("baseline established", logx.Int("models", len(models)))
		return
	}

	report := catalog.Diff(name, prev, models).WithTags(w.states.Tags())

	if err := w.states.SetSnapshot(ctx, name, models); err != nil {
		// The in-memory snapshot advanced, so changes are not re-reported
		// this run; the persistence failure itself is the loud signal.
		rs.recordError(err)
		log.Error("snapshot not persisted", logx.Err(err))
	} else {
		rs.recordSuccess(len(models))
	}

	if report.Empty() {
		log.Debug("no changes", logx.Int("models", len(models)))
		return
	}

	log.Info("catalog changed", logx.Int("added", len(report.Added)), logx.Int("removed", len(report.Removed)))
	if w.sink != nil {
		if err := w.sink.Deliver(ctx, report, w.states.Chats()); err != nil {
			log.Warn("report delivery incomplete", logx.Err(err))
		}
	}
}
