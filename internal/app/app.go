// Package app runs the capture and recognition pipeline.
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/multierr"

	"github.com/ayusman/fingerspell/internal/capture"
	"github.com/ayusman/fingerspell/internal/detector"
	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/overlay"
	"github.com/ayusman/fingerspell/internal/sampling"
)

// ErrNoGate is returned by Start when the app has no sampling gate.
var ErrNoGate = errors.New("app: sampling gate is required")

// Config holds the pipeline components. Camera and Detector default to a
// device camera and the MediaPipe detector with a mock fallback.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Gate     *sampling.Gate
	Frames   *overlay.FrameBuffer
	Caption  *overlay.Caption

	CameraID  int
	FPS       int
	ScriptDir string
}

// App owns the frame loop.
type App struct {
	config   Config
	camera   capture.Camera
	detector detector.Detector
	enabled  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an App. It does not open the camera.
func New(config Config) *App {
	a := &App{config: config, enabled: true}

	a.camera = config.Camera
	if a.camera == nil {
		camCfg := capture.DefaultConfig()
		camCfg.DeviceID = config.CameraID
		camCfg.FPS = config.FPS
		a.camera = capture.NewCamera(camCfg)
	}

	a.detector = config.Detector
	if a.detector == nil {
		var dirs []string
		if config.ScriptDir != "" {
			dirs = append(dirs, config.ScriptDir)
		}
		if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig(), dirs...); err == nil {
			a.detector = mp
			log.Info(nil, "using MediaPipe hand detection")
		} else {
			log.Warn(log.Fields{"error": err.Error()}, "MediaPipe not available, using mock detector")
			a.detector = detector.NewMockDetector()
		}
	}
	return a
}

// SetEnabled pauses or resumes recognition. Frames are still captured and
// streamed while paused.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled reports whether recognition is running.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera and launches the frame loop.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if a.config.Gate == nil {
		return ErrNoGate
	}
	if err := a.camera.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		a.runPipeline(ctx)
	}()

	log.Info(log.Fields{"fps": a.camera.FPS(), "every": a.config.Gate.Every()}, "pipeline started")
	return nil
}

// Stop halts the frame loop, waits for an outstanding prediction and
// releases the camera and detector.
func (a *App) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if a.config.Gate != nil {
		a.config.Gate.Wait()
	}

	err := multierr.Combine(a.camera.Close(), a.detector.Close())
	if err != nil {
		log.Error(log.Fields{"error": err.Error()}, "pipeline stopped with errors")
	} else {
		log.Info(nil, "pipeline stopped")
	}
	return err
}

// Camera returns the frame source.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}
