package sampling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayusman/fingerspell/internal/detector"
	"github.com/ayusman/fingerspell/internal/predict"
)

// fakePredictor records calls and the maximum number of concurrent calls.
type fakePredictor struct {
	mu       sync.Mutex
	calls    int
	active   atomic.Int32
	maxSeen  atomic.Int32
	block    chan struct{} // when non-nil, Predict waits on it
	result   predict.Result
	err      error
	gotCount int
}

func (f *fakePredictor) Predict(ctx context.Context, points [][3]float64) (predict.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls++
	f.gotCount = len(points)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return predict.Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakePredictor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []predict.Result
	points  [][][3]float64
}

func (p *recordingPublisher) Publish(res predict.Result, points [][3]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, res)
	p.points = append(p.points, points)
}

func (p *recordingPublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func TestGate_IssuesOnEveryNthEvent(t *testing.T) {
	pred := &fakePredictor{result: predict.Result{Label: "A", Confidence: 0.9, HasConfidence: true}}
	pub := &recordingPublisher{}
	g := NewGate(Config{Every: 40}, pred, pub)
	hand := detector.LetterALandmarks()

	var issuedAt []uint64
	for i := 1; i <= 81; i++ {
		if g.OnLandmarks(context.Background(), &hand) {
			issuedAt = append(issuedAt, uint64(i))
		}
		g.Wait() // each request resolves before the next eligible slot
	}

	if len(issuedAt) != 2 || issuedAt[0] != 40 || issuedAt[1] != 80 {
		t.Errorf("requests issued at %v, want [40 80]", issuedAt)
	}
	if pred.Calls() != 2 {
		t.Errorf("predictor calls = %d, want 2", pred.Calls())
	}
	if pub.Len() != 2 {
		t.Errorf("published = %d, want 2", pub.Len())
	}
	if pred.gotCount != detector.NumLandmarks {
		t.Errorf("payload had %d points, want %d", pred.gotCount, detector.NumLandmarks)
	}

	stats := g.Stats()
	if stats.Events != 81 || stats.Requests != 2 || stats.Busy != 0 || stats.InFlight {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGate_NilHandSkipsSlot(t *testing.T) {
	pred := &fakePredictor{result: predict.Result{Label: "A"}}
	g := NewGate(Config{Every: 1}, pred, nil)
	hand := detector.LetterALandmarks()

	if g.OnLandmarks(context.Background(), nil) {
		t.Fatal("nil hand should not issue a request")
	}
	if g.Stats().InFlight {
		t.Fatal("in-flight flag claimed for nil hand")
	}
	if !g.OnLandmarks(context.Background(), &hand) {
		t.Error("next event should issue a request")
	}
	g.Wait()

	if stats := g.Stats(); stats.Events != 2 || stats.Requests != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGate_SkipsSlotWhileInFlight(t *testing.T) {
	pred := &fakePredictor{block: make(chan struct{}), result: predict.Result{Label: "B"}}
	pub := &recordingPublisher{}
	g := NewGate(Config{Every: 2, Timeout: -1}, pred, pub)
	hand := detector.LetterALandmarks()
	ctx := context.Background()

	g.OnLandmarks(ctx, &hand) // 1: not due
	if !g.OnLandmarks(ctx, &hand) {
		t.Fatal("event 2 should issue a request")
	}
	if !g.State().InFlight() {
		t.Fatal("request should be in flight")
	}

	// Slots 4 and 6 recur while the first request is outstanding.
	for i := 3; i <= 6; i++ {
		if g.OnLandmarks(ctx, &hand) {
			t.Fatalf("event %d issued a request while one was outstanding", i)
		}
	}
	if got := g.Stats().Busy; got != 2 {
		t.Errorf("Busy = %d, want 2", got)
	}

	close(pred.block)
	g.Wait()

	if g.State().InFlight() {
		t.Error("flag should reset after completion")
	}
	// Skipped slots are not retried.
	if pred.Calls() != 1 {
		t.Errorf("predictor calls = %d, want 1", pred.Calls())
	}

	g.OnLandmarks(ctx, &hand) // 7
	if !g.OnLandmarks(ctx, &hand) {
		t.Error("event 8 should issue a new request")
	}
	g.Wait()
	if pred.Calls() != 2 {
		t.Errorf("predictor calls = %d, want 2", pred.Calls())
	}
}

func TestGate_NeverTwoOutstanding(t *testing.T) {
	pred := &fakePredictor{result: predict.Result{Label: "C"}}
	g := NewGate(Config{Every: 1}, pred, nil)
	hand := detector.LetterLLandmarks()

	for i := 0; i < 2000; i++ {
		g.OnLandmarks(context.Background(), &hand)
	}
	g.Wait()

	if peak := pred.maxSeen.Load(); peak > 1 {
		t.Errorf("saw %d concurrent requests, want at most 1", peak)
	}
	stats := g.Stats()
	if stats.Requests+stats.Busy != 2000 {
		t.Errorf("requests(%d) + busy(%d) != 2000", stats.Requests, stats.Busy)
	}
}

func TestGate_FailureReleasesFlag(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "status error", err: &predict.StatusError{Code: 500}},
		{name: "malformed body", err: predict.ErrMalformedResponse},
		{name: "transport error", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred := &fakePredictor{err: tt.err}
			pub := &recordingPublisher{}
			g := NewGate(Config{Every: 1}, pred, pub)
			hand := detector.LetterALandmarks()

			if !g.OnLandmarks(context.Background(), &hand) {
				t.Fatal("first event should issue")
			}
			g.Wait()

			if pub.Len() != 0 {
				t.Error("failed prediction must not be published")
			}
			if g.State().InFlight() {
				t.Error("flag should reset after failure")
			}
			if g.Stats().Failures != 1 {
				t.Errorf("Failures = %d, want 1", g.Stats().Failures)
			}

			// The next eligible slot can issue again.
			pred.err = nil
			if !g.OnLandmarks(context.Background(), &hand) {
				t.Error("next eligible slot should issue after a failure")
			}
			g.Wait()
			if pub.Len() != 1 {
				t.Errorf("published = %d, want 1", pub.Len())
			}
		})
	}
}

func TestGate_TimeoutReleasesHungRequest(t *testing.T) {
	pred := &fakePredictor{block: make(chan struct{})}
	defer close(pred.block)

	g := NewGate(Config{Every: 1, Timeout: 20 * time.Millisecond}, pred, nil)
	hand := detector.LetterALandmarks()

	g.OnLandmarks(context.Background(), &hand)
	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hung request was not cancelled by the timeout")
	}
	if g.State().InFlight() {
		t.Error("flag should reset after timeout")
	}
}

type panickingPublisher struct{}

func (panickingPublisher) Publish(predict.Result, [][3]float64) { panic("sink exploded") }

func TestGate_PublisherPanicReleasesFlag(t *testing.T) {
	g := NewGate(Config{Every: 1}, &fakePredictor{result: predict.Result{Label: "D"}}, panickingPublisher{})
	hand := detector.LetterALandmarks()

	g.OnLandmarks(context.Background(), &hand)
	g.Wait()

	if g.State().InFlight() {
		t.Error("flag should reset after a panicking publisher")
	}
}

func TestNewGate_Defaults(t *testing.T) {
	g := NewGate(Config{}, &fakePredictor{}, nil)
	if g.Every() != DefaultEvery {
		t.Errorf("Every() = %d, want %d", g.Every(), DefaultEvery)
	}
	if g.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", g.timeout, DefaultTimeout)
	}
}
