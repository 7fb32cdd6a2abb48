package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gamehub/pkg/apperr"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) BroadcastJSON(v any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v.(Event))
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func staticSpec(t Type, conc int, items ...Item) Spec {
	return Spec{
		Type:        t,
		Concurrency: conc,
		List:        func(context.Context) ([]Item, error) { return items, nil },
	}
}

func waitDone(t *testing.T, r *Registry, typ Type) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Wait(ctx, typ); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestLimiter_NeverExceedsSize(t *testing.T) {
	lim := NewLimiter(2)
	var active, peak int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lim.Acquire(context.Background()); err != nil {
				t.Error(err)
				return
			}
			defer lim.Release()

			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	if lim.Size() != 2 {
		t.Errorf("Size() = %d", lim.Size())
	}
}

func TestLimiter_AcquireHonorsContext(t *testing.T) {
	lim := NewLimiter(1)
	if err := lim.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := lim.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() = %v, want deadline exceeded", err)
	}
	lim.Release()
}

func TestStart_RunsItemsAndKeepsResult(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(pub, nil)

	var ran int32
	items := make([]Item, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		items = append(items, Item{
			Label: fmt.Sprintf("game-%d", i),
			Run: func(context.Context) error {
				atomic.AddInt32(&ran, 1)
				if i == 3 {
					return errors.New("provider down")
				}
				return nil
			},
		})
	}

	info, err := r.Start(context.Background(), staticSpec(TypeGenres, 2, items...))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if info.Total != 5 || info.RunID == "" || info.EstimatedSeconds != 3 {
		t.Errorf("StartInfo = %+v, want total 5 and 3s estimate", info)
	}

	waitDone(t, r, TypeGenres)

	st := r.Status(TypeGenres)
	if st.InProgress {
		t.Error("still in progress after Wait")
	}
	if st.Result == nil {
		t.Fatal("result not retained")
	}
	res := st.Result
	if res.Total != 5 || res.Succeeded != 4 || res.Failed != 1 || atomic.LoadInt32(&ran) != 5 {
		t.Errorf("result = %+v, ran = %d", res, ran)
	}
	if len(res.Errors) != 1 || res.Errors[0].Item != "game-3" || res.Errors[0].Error != "provider down" {
		t.Errorf("errors = %+v", res.Errors)
	}
	if st.Progress == nil || st.Progress.Completed != 5 {
		t.Errorf("final progress = %+v", st.Progress)
	}

	types := pub.types()
	if types[0] != "job.started" || types[len(types)-1] != "job.completed" || len(types) != 7 {
		t.Errorf("events = %v, want started, 5 progress, completed", types)
	}
}

func TestStart_ConflictCarriesProgress(t *testing.T) {
	r := NewRegistry(nil, nil)
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	block := Item{Label: "slow", Run: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}
	if _, err := r.Start(context.Background(), staticSpec(TypeCovers, 1, block, Item{Label: "next", Run: func(context.Context) error { return nil }})); err != nil {
		t.Fatal(err)
	}
	<-started

	var listed bool
	_, err := r.Start(context.Background(), Spec{Type: TypeCovers, List: func(context.Context) ([]Item, error) {
		listed = true
		return nil, nil
	}})
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second Start() = %v, want ConflictError", err)
	}
	p, ok := ce.Progress.(*Progress)
	if !ok || p.Total != 2 {
		t.Errorf("conflict progress = %#v", ce.Progress)
	}
	if listed {
		t.Error("conflicting start must not list items")
	}

	st := r.Status(TypeCovers)
	if !st.InProgress || st.ElapsedSeconds == nil {
		t.Errorf("status while running = %+v", st)
	}

	// other job types are independent
	if _, err := r.Start(context.Background(), staticSpec(TypeRatings, 1)); err != nil {
		t.Errorf("Start(ratings) error = %v", err)
	}

	close(release)
	waitDone(t, r, TypeCovers)
	waitDone(t, r, TypeRatings)
}

func TestStart_ListFailureLeavesJobIdle(t *testing.T) {
	r := NewRegistry(nil, nil)
	boom := errors.New("steam unreachable")

	_, err := r.Start(context.Background(), Spec{Type: TypeLibraryImport, List: func(context.Context) ([]Item, error) {
		return nil, boom
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("Start() = %v, want list error", err)
	}
	if st := r.Status(TypeLibraryImport); st.InProgress {
		t.Error("job left running after start failure")
	}

	if _, err := r.Start(context.Background(), staticSpec(TypeLibraryImport, 1)); err != nil {
		t.Fatalf("restart after failure: %v", err)
	}
	waitDone(t, r, TypeLibraryImport)
}

func TestStart_ListingHidesPreviousRunProgress(t *testing.T) {
	r := NewRegistry(nil, nil)
	noop := Item{Label: "done", Run: func(context.Context) error { return nil }}
	if _, err := r.Start(context.Background(), staticSpec(TypeLibraryImport, 1, noop, noop, noop)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, TypeLibraryImport)

	listing := make(chan struct{})
	release := make(chan struct{})
	startErr := make(chan error, 1)
	go func() {
		_, err := r.Start(context.Background(), Spec{Type: TypeLibraryImport, List: func(context.Context) ([]Item, error) {
			close(listing)
			<-release
			return []Item{noop}, nil
		}})
		startErr <- err
	}()
	<-listing

	_, err := r.Start(context.Background(), staticSpec(TypeLibraryImport, 1))
	var ce *apperr.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Start() during listing = %v, want ConflictError", err)
	}
	if p, ok := ce.Progress.(*Progress); !ok || p.Completed != 0 || p.Total != 0 {
		t.Errorf("conflict progress = %#v, want empty", ce.Progress)
	}
	st := r.Status(TypeLibraryImport)
	if !st.InProgress || st.Progress == nil || st.Progress.Completed != 0 {
		t.Errorf("status during listing = %+v", st)
	}

	close(release)
	if err := <-startErr; err != nil {
		t.Fatalf("listing Start() error = %v", err)
	}
	waitDone(t, r, TypeLibraryImport)
}

func TestStart_DetachedFromRequestContext(t *testing.T) {
	r := NewRegistry(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	gate := make(chan struct{})
	var sawCancel atomic.Bool
	item := Item{Label: "x", Run: func(ctx context.Context) error {
		<-gate
		sawCancel.Store(ctx.Err() != nil)
		return nil
	}}
	if _, err := r.Start(ctx, staticSpec(TypeGenres, 1, item)); err != nil {
		t.Fatal(err)
	}
	cancel()
	close(gate)
	waitDone(t, r, TypeGenres)

	if sawCancel.Load() {
		t.Error("item context was cancelled with the request")
	}
	if res := r.Status(TypeGenres).Result; res == nil || res.Succeeded != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestStart_PanicIsItemFailure(t *testing.T) {
	r := NewRegistry(nil, nil)
	item := Item{Label: "bad", Run: func(context.Context) error { panic("nil map") }}
	if _, err := r.Start(context.Background(), staticSpec(TypeRatings, 1, item)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, r, TypeRatings)
	if res := r.Status(TypeRatings).Result; res.Failed != 1 {
		t.Errorf("result = %+v, want one failure", res)
	}
}

func TestProgress_ETA(t *testing.T) {
	r := NewRegistry(nil, nil)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var calls int64
	// each clock read advances one minute
	r.now = func() time.Time {
		n := atomic.AddInt64(&calls, 1)
		return base.Add(time.Duration(n-1) * time.Minute)
	}

	gate := make(chan struct{})
	first := Item{Label: "a", Run: func(context.Context) error { return nil }}
	second := Item{Label: "b", Run: func(context.Context) error { <-gate; return nil }}
	if _, err := r.Start(context.Background(), staticSpec(TypeGenres, 1, first, second)); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var p *Progress
	for time.Now().Before(deadline) {
		if p = r.Status(TypeGenres).Progress; p != nil && p.Completed == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(gate)
	waitDone(t, r, TypeGenres)

	if p == nil || p.Completed != 1 || p.EstimatedMinutesRemaining == nil {
		t.Fatalf("progress = %+v", p)
	}
	// elapsed/completed * remaining, with elapsed >= 1 minute of stub time
	if *p.EstimatedMinutesRemaining < 1 {
		t.Errorf("eta = %v, want >= 1 minute", *p.EstimatedMinutesRemaining)
	}
}
