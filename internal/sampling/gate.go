// Package sampling throttles landmark sets into prediction requests.
//
// The Gate sees every detected hand but issues a request only on every Nth
// event, and never while a previous request is still outstanding. Skipped
// events are dropped, never queued, so a slow prediction service cannot cause
// a backlog.
//
// Events are counted from 1: with N=40 the first request goes out on the 40th
// event, then the 80th, and so on.
package sampling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/fingerspell/internal/detector"
	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/predict"
)

// Defaults for the gate.
const (
	DefaultEvery   = 40
	DefaultTimeout = 5 * time.Second
)

// Publisher receives successful predictions.
type Publisher interface {
	Publish(res predict.Result, points [][3]float64)
}

// Config configures a Gate.
type Config struct {
	// Every is the sampling interval N. Values below 1 use DefaultEvery.
	Every int
	// Timeout bounds each prediction request. Zero uses DefaultTimeout;
	// a negative value disables the bound.
	Timeout time.Duration
}

// State is the gate's mutable record. count is only touched by the goroutine
// calling OnLandmarks; inFlight is cleared by the request goroutine.
type State struct {
	count    uint64
	inFlight atomic.Bool
}

// Count returns the number of events seen so far.
func (s *State) Count() uint64 { return s.count }

// InFlight reports whether a prediction request is outstanding.
func (s *State) InFlight() bool { return s.inFlight.Load() }

// Stats counts what the gate has done.
type Stats struct {
	Events   uint64 `json:"events"`
	Requests uint64 `json:"requests"`
	Busy     uint64 `json:"busy"` // eligible slots skipped because a request was outstanding
	Failures uint64 `json:"failures"`
	InFlight bool   `json:"in_flight"`
}

// Gate decides which landmark events become prediction requests.
type Gate struct {
	every     uint64
	timeout   time.Duration
	predictor predict.Predictor
	publisher Publisher
	state     State
	wg        sync.WaitGroup

	events   atomic.Uint64
	requests atomic.Uint64
	busy     atomic.Uint64
	failures atomic.Uint64
}

// NewGate creates a Gate. publisher may be nil.
func NewGate(cfg Config, p predict.Predictor, publisher Publisher) *Gate {
	every := cfg.Every
	if every < 1 {
		every = DefaultEvery
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		every:     uint64(every),
		timeout:   timeout,
		predictor: p,
		publisher: publisher,
	}
}

// OnLandmarks records one detection event and, when the slot is due and no
// request is outstanding, starts a prediction in the background.
// It must be called from a single goroutine. It reports whether a request was issued.
// A nil hand still counts as an event but never issues a request.
func (g *Gate) OnLandmarks(ctx context.Context, hand *detector.HandLandmarks) bool {
	g.state.count++
	g.events.Add(1)

	if g.state.count%g.every != 0 || hand == nil {
		return false
	}
	if !g.state.inFlight.CompareAndSwap(false, true) {
		g.busy.Add(1)
		return false
	}

	points := hand.Triples()
	slot := g.state.count
	g.requests.Add(1)
	g.wg.Add(1)

	go g.request(ctx, slot, points)
	return true
}

func (g *Gate) request(ctx context.Context, slot uint64, points [][3]float64) {
	defer g.wg.Done()
	defer g.state.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			g.failures.Add(1)
			log.Error(log.Fields{"slot": slot, "panic": fmt.Sprint(r)}, "prediction handler panicked")
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.predictor.Predict(ctx, points)
	if err != nil {
		g.failures.Add(1)
		log.Warn(log.Fields{"slot": slot, "error": err.Error(), "elapsed": time.Since(start).String()}, "prediction failed")
		return
	}

	log.Debug(log.Fields{"slot": slot, "letter": res.Label, "confidence": res.Confidence}, "prediction")
	if g.publisher != nil {
		g.publisher.Publish(res, points)
	}
}

// Wait blocks until the outstanding request, if any, has finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}

// State exposes the gate's counter and in-flight flag.
func (g *Gate) State() *State {
	return &g.state
}

// Every returns the sampling interval.
func (g *Gate) Every() int {
	return int(g.every)
}

// Stats returns a snapshot of the gate's counters.
func (g *Gate) Stats() Stats {
	return Stats{
		Events:   g.events.Load(),
		Requests: g.requests.Load(),
		Busy:     g.busy.Load(),
		Failures: g.failures.Load(),
		InFlight: g.state.inFlight.Load(),
	}
}
