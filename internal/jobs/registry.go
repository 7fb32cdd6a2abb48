// Package jobs runs long bulk operations over the library, one run per job
// type at a time, and keeps their progress and last result for polling.
package jobs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gamehub/internal/metrics"
	"gamehub/pkg/apperr"
	"gamehub/pkg/logger"
)

type Type string

const (
	TypeGenres        Type = "genres"
	TypeCovers        Type = "covers"
	TypeRatings       Type = "ratings"
	TypeLibraryImport Type = "library-import"
)

// Item is one unit of work. Label is what progress reports as the current
// item.
type Item struct {
	Label string
	Run   func(ctx context.Context) error
}

// Spec describes a run. List is called synchronously by Start; its error
// is a hard start failure.
type Spec struct {
	Type        Type
	Concurrency int
	PerItem     time.Duration // rough cost of one item, used for the start estimate
	List        func(ctx context.Context) ([]Item, error)
}

type Progress struct {
	Total                     int      `json:"total"`
	Completed                 int      `json:"completed"`
	CurrentItem               string   `json:"currentItem,omitempty"`
	EstimatedMinutesRemaining *float64 `json:"estimatedMinutesRemaining,omitempty"`
}

type ItemError struct {
	Item  string `json:"item"`
	Error string `json:"error"`
}

type Result struct {
	RunID      string      `json:"runId"`
	Total      int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Errors     []ItemError `json:"errors"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

type StartInfo struct {
	RunID            string  `json:"runId"`
	Total            int     `json:"total"`
	EstimatedSeconds int     `json:"estimatedSeconds"`
	EstimatedMinutes float64 `json:"estimatedMinutes"`
}

type Status struct {
	InProgress     bool      `json:"inProgress"`
	Progress       *Progress `json:"progress"`
	Result         *Result   `json:"result"`
	ElapsedSeconds *float64  `json:"elapsedSeconds"`
}

// Event is pushed to the publisher on start, every completion and finish.
type Event struct {
	Type     string    `json:"type"`
	Job      Type      `json:"job"`
	RunID    string    `json:"runId"`
	Progress *Progress `json:"progress,omitempty"`
	Result   *Result   `json:"result,omitempty"`
	At       time.Time `json:"at"`
}

// Topic lets subscribers follow a single job type.
func (e Event) Topic() string { return string(e.Job) }

// Publisher receives job events, typically a websocket hub.
type Publisher interface {
	BroadcastJSON(v any)
}

// state is per job type. running and done are guarded by Registry.mu;
// progress and result are replaced whole and read without locking.
type state struct {
	running   bool
	done      chan struct{}
	startedAt atomic.Pointer[time.Time]
	progress  atomic.Pointer[Progress]
	result    atomic.Pointer[Result]
}

type Registry struct {
	mu     sync.Mutex
	states map[Type]*state
	pub    Publisher
	log    *logger.Logger
	now    func() time.Time
}

func NewRegistry(pub Publisher, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{states: make(map[Type]*state), pub: pub, log: log, now: time.Now}
}

func (r *Registry) stateFor(t Type) *state {
	st, ok := r.states[t]
	if !ok {
		st = &state{}
		r.states[t] = st
	}
	return st
}

// Start lists the spec's items and runs them in the background, detached
// from ctx. A run of the same type already in flight yields a
// *apperr.ConflictError carrying its progress.
func (r *Registry) Start(ctx context.Context, spec Spec) (StartInfo, error) {
	r.mu.Lock()
	st := r.stateFor(spec.Type)
	if st.running {
		p := st.progress.Load()
		r.mu.Unlock()
		metrics.JobRuns.WithLabelValues(string(spec.Type), "conflict").Inc()
		return StartInfo{}, &apperr.ConflictError{Job: string(spec.Type), Progress: p}
	}
	st.running = true
	listingSince := r.now()
	st.startedAt.Store(&listingSince)
	st.progress.Store(&Progress{})
	done := make(chan struct{})
	st.done = done
	r.mu.Unlock()

	items, err := spec.List(ctx)
	if err != nil {
		st.progress.Store(nil)
		r.finish(st, done, spec.Type)
		metrics.JobRuns.WithLabelValues(string(spec.Type), "start_failed").Inc()
		r.log.Warn("job failed to start", "job", spec.Type, "err", err)
		return StartInfo{}, fmt.Errorf("start %s: %w", spec.Type, err)
	}

	runID := uuid.NewString()
	startedAt := r.now()
	st.startedAt.Store(&startedAt)
	st.result.Store(nil)
	st.progress.Store(&Progress{Total: len(items)})

	conc := max(spec.Concurrency, 1)
	perItem := spec.PerItem
	if perItem <= 0 {
		perItem = time.Second
	}
	est := time.Duration(math.Ceil(float64(len(items))/float64(conc))) * perItem
	info := StartInfo{
		RunID:            runID,
		Total:            len(items),
		EstimatedSeconds: int(math.Ceil(est.Seconds())),
		EstimatedMinutes: round1(est.Minutes()),
	}

	metrics.JobRuns.WithLabelValues(string(spec.Type), "started").Inc()
	metrics.JobInProgress.WithLabelValues(string(spec.Type)).Set(1)
	r.log.Info("job started", "job", spec.Type, "run_id", runID, "items", len(items), "concurrency", conc)
	r.publish(Event{Type: "job.started", Job: spec.Type, RunID: runID, Progress: st.progress.Load()})

	go r.run(context.WithoutCancel(ctx), st, done, spec.Type, runID, conc, items, startedAt)
	return info, nil
}

func (r *Registry) run(ctx context.Context, st *state, done chan struct{}, typ Type, runID string, conc int, items []Item, startedAt time.Time) {
	var (
		mu        sync.Mutex
		completed int
		res       = &Result{RunID: runID, Total: len(items), Errors: []ItemError{}, StartedAt: startedAt}
		lim       = NewLimiter(conc)
		wg        sync.WaitGroup
	)

	for _, it := range items {
		wg.Add(1)
		go func(it Item) {
			defer wg.Done()
			if err := lim.Acquire(ctx); err != nil {
				return
			}
			defer lim.Release()

			err := runItem(ctx, it)

			mu.Lock()
			defer mu.Unlock()
			completed++
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, ItemError{Item: it.Label, Error: err.Error()})
				metrics.JobItems.WithLabelValues(string(typ), "failed").Inc()
				r.log.Debug("job item failed", "job", typ, "item", it.Label, "err", err)
			} else {
				res.Succeeded++
				metrics.JobItems.WithLabelValues(string(typ), "succeeded").Inc()
			}

			p := &Progress{
				Total:       len(items),
				Completed:   completed,
				CurrentItem: it.Label,
			}
			elapsed := r.now().Sub(startedAt)
			eta := round1(elapsed.Minutes() / float64(completed) * float64(len(items)-completed))
			p.EstimatedMinutesRemaining = &eta
			st.progress.Store(p)
			r.publish(Event{Type: "job.progress", Job: typ, RunID: runID, Progress: p})
		}(it)
	}
	wg.Wait()

	res.FinishedAt = r.now()
	st.result.Store(res)
	r.finish(st, done, typ)

	metrics.JobRuns.WithLabelValues(string(typ), "completed").Inc()
	metrics.JobDuration.WithLabelValues(string(typ)).Observe(res.FinishedAt.Sub(startedAt).Seconds())
	r.log.Info("job finished", "job", typ, "run_id", runID,
		"succeeded", res.Succeeded, "failed", res.Failed, "elapsed", res.FinishedAt.Sub(startedAt))
	r.publish(Event{Type: "job.completed", Job: typ, RunID: runID, Progress: st.progress.Load(), Result: res})
}

func runItem(ctx context.Context, it Item) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return it.Run(ctx)
}

func (r *Registry) finish(st *state, done chan struct{}, t Type) {
	metrics.JobInProgress.WithLabelValues(string(t)).Set(0)
	r.mu.Lock()
	st.running = false
	r.mu.Unlock()
	close(done)
}

// Status reports the current run, if any, and the last finished result.
func (r *Registry) Status(t Type) Status {
	r.mu.Lock()
	st := r.stateFor(t)
	running := st.running
	r.mu.Unlock()

	s := Status{InProgress: running, Progress: st.progress.Load(), Result: st.result.Load()}
	if running {
		if at := st.startedAt.Load(); at != nil {
			secs := round1(r.now().Sub(*at).Seconds())
			s.ElapsedSeconds = &secs
		}
	}
	return s
}

// Wait blocks until the in-flight run of t, if any, has finished.
func (r *Registry) Wait(ctx context.Context, t Type) error {
	r.mu.Lock()
	st := r.stateFor(t)
	running, done := st.running, st.done
	r.mu.Unlock()

	if !running || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) publish(ev Event) {
	if r.pub == nil {
		return
	}
	ev.At = r.now().UTC()
	r.pub.BroadcastJSON(ev)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
