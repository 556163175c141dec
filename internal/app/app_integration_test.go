package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/fingerspell/internal/capture"
	"github.com/ayusman/fingerspell/internal/detector"
	"github.com/ayusman/fingerspell/internal/overlay"
	"github.com/ayusman/fingerspell/internal/predict"
	"github.com/ayusman/fingerspell/internal/publish"
	"github.com/ayusman/fingerspell/internal/sampling"
)

type stubPredictor struct {
	mu    sync.Mutex
	calls int
	sizes []int
}

func (p *stubPredictor) Predict(ctx context.Context, points [][3]float64) (predict.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.sizes = append(p.sizes, len(points))
	return predict.Result{Label: "A", Confidence: 0.92, HasConfidence: true}, nil
}

func (p *stubPredictor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type failingCloser struct {
	*detector.MockDetector
}

func (failingCloser) Close() error { return errors.New("detector close failed") }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_Pipeline_PublishesPredictions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cam, release := capture.NewBlankCamera(320, 240)
	defer release()
	cam.SetFPS(60)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.LetterALandmarks()})

	text := &publish.Text{}
	caption := &overlay.Caption{}
	pred := &stubPredictor{}
	gate := sampling.NewGate(sampling.Config{Every: 3}, pred, publish.New([]publish.Display{text, caption}, nil))
	frames := overlay.NewFrameBuffer()

	a := New(Config{Camera: cam, Detector: det, Gate: gate, Frames: frames, Caption: caption})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "a published prediction", func() bool { return text.Label() == "A" })
	waitFor(t, "an encoded frame", func() bool { _, seq := frames.Latest(); return seq > 0 })

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if text.Confidence() != "0.92" {
		t.Errorf("confidence = %q, want 0.92", text.Confidence())
	}
	if caption.Text() != "A (0.92)" {
		t.Errorf("caption = %q", caption.Text())
	}

	stats := gate.Stats()
	if want := stats.Events / 3; stats.Requests+stats.Busy != want {
		t.Errorf("requests+busy = %d, want events/3 = %d (%+v)", stats.Requests+stats.Busy, want, stats)
	}
	for _, n := range pred.sizes {
		if n != detector.NumLandmarks {
			t.Errorf("predictor received %d points, want %d", n, detector.NumLandmarks)
		}
	}
	if cam.IsOpen() {
		t.Error("camera should be closed after Stop()")
	}
}

func TestApp_Paused_SkipsDetection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cam, release := capture.NewBlankCamera(64, 48)
	defer release()
	cam.SetFPS(60)

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.LetterALandmarks()})
	pred := &stubPredictor{}
	gate := sampling.NewGate(sampling.Config{Every: 1}, pred, nil)

	a := New(Config{Camera: cam, Detector: det, Gate: gate})
	a.SetEnabled(false)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "frames to be read", func() bool { return cam.Reads() >= 5 })
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if det.Calls() != 0 {
		t.Errorf("detector called %d times while paused", det.Calls())
	}
	if pred.Calls() != 0 {
		t.Errorf("predictor called %d times while paused", pred.Calls())
	}
}

func TestApp_NoHands_NoEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cam, release := capture.NewBlankCamera(64, 48)
	defer release()
	cam.SetFPS(60)

	det := detector.NewMockDetector()
	gate := sampling.NewGate(sampling.Config{Every: 1}, &stubPredictor{}, nil)

	a := New(Config{Camera: cam, Detector: det, Gate: gate})
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "detections", func() bool { return det.Calls() >= 5 })
	a.Stop()

	if got := gate.Stats().Events; got != 0 {
		t.Errorf("gate saw %d events without hands, want 0", got)
	}
}

func TestApp_Start_RequiresGate(t *testing.T) {
	a := New(Config{Camera: capture.NewMockCamera(nil, false), Detector: detector.NewMockDetector()})
	if err := a.Start(context.Background()); !errors.Is(err, ErrNoGate) {
		t.Errorf("Start() error = %v, want ErrNoGate", err)
	}
}

func TestApp_Stop_CombinesErrors(t *testing.T) {
	a := New(Config{
		Camera:   capture.NewMockCamera(nil, false),
		Detector: failingCloser{detector.NewMockDetector()},
	})
	err := a.Stop()
	if err == nil || err.Error() != "detector close failed" {
		t.Errorf("Stop() error = %v, want detector close failure", err)
	}
}

func TestApp_EnabledByDefault(t *testing.T) {
	a := New(Config{Camera: capture.NewMockCamera(nil, false), Detector: detector.NewMockDetector()})
	if !a.IsEnabled() {
		t.Error("app should start enabled")
	}
	a.SetEnabled(false)
	if a.IsEnabled() {
		t.Error("SetEnabled(false) did not pause")
	}
}
