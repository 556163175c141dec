package app

import (
	"context"
	"time"

	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/overlay"
)

// runPipeline reads one frame per tick until ctx is done:
//  1. detect hands (skipped while paused)
//  2. hand the first hand to the sampling gate
//  3. draw landmarks and caption, then publish the JPEG to the frame buffer
//
// It is the only caller of Gate.OnLandmarks.
func (a *App) runPipeline(ctx context.Context) {
	fps := a.camera.FPS()
	if fps <= 0 {
		fps = 15
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	entry := log.WithComponent("pipeline")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if err != nil {
			entry.WithError(err).Debug("frame read failed")
			continue
		}

		if a.IsEnabled() {
			hands, err := a.detector.Detect(frame)
			if err != nil {
				entry.WithError(err).Debug("hand detection failed")
			} else if len(hands) > 0 {
				if a.config.Gate.OnLandmarks(ctx, &hands[0]) {
					entry.WithField("event", a.config.Gate.State().Count()).Debug("prediction requested")
				}
				overlay.DrawHands(frame, hands)
			}
		}

		if a.config.Frames != nil {
			if a.config.Caption != nil {
				a.config.Caption.Draw(frame)
			}
			if err := a.config.Frames.Encode(*frame); err != nil {
				entry.WithError(err).Debug("frame encode failed")
			}
		}
		frame.Close()
	}
}
