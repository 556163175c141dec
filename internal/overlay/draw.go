// Package overlay annotates camera frames with hand landmarks and the current
// prediction, and keeps the latest encoded frame for streaming.
package overlay

import (
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingerspell/internal/detector"
)

var (
	connectionColor = color.RGBA{G: 255, A: 255}
	jointColor      = color.RGBA{R: 255, A: 255}
	textColor       = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	lineThickness = 2
	jointRadius   = 4
)

// toPixel maps a normalized landmark onto an image of cols x rows.
func toPixel(p detector.Point3D, cols, rows int) image.Point {
	return image.Pt(int(p.X*float64(cols)), int(p.Y*float64(rows)))
}

// DrawHands draws the connection skeleton, joints and handedness label of each hand onto img.
func DrawHands(img *gocv.Mat, hands []detector.HandLandmarks) {
	cols, rows := img.Cols(), img.Rows()
	for i := range hands {
		h := &hands[i]
		for _, c := range detector.Connections {
			gocv.Line(img, toPixel(h.Points[c[0]], cols, rows), toPixel(h.Points[c[1]], cols, rows), connectionColor, lineThickness)
		}
		for _, p := range h.Points {
			gocv.Circle(img, toPixel(p, cols, rows), jointRadius, jointColor, -1)
		}
		if h.Handedness != "" {
			wrist := toPixel(h.Points[detector.Wrist], cols, rows)
			gocv.PutText(img, h.Handedness, wrist.Add(image.Pt(10, 20)), gocv.FontHersheySimplex, 0.6, textColor, 2)
		}
	}
}

// Caption holds the prediction text burned into streamed frames.
// It satisfies publish.Display.
type Caption struct {
	mu         sync.RWMutex
	label      string
	confidence string
}

// SetLabel sets the predicted letter.
func (c *Caption) SetLabel(label string) {
	c.mu.Lock()
	c.label = label
	c.mu.Unlock()
}

// SetConfidence sets the formatted confidence.
func (c *Caption) SetConfidence(confidence string) {
	c.mu.Lock()
	c.confidence = confidence
	c.mu.Unlock()
}

// Text returns the caption, or "" before the first prediction.
func (c *Caption) Text() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.label == "" {
		return ""
	}
	if c.confidence == "" {
		return c.label
	}
	return c.label + " (" + c.confidence + ")"
}

// Draw writes the caption in the top-left corner of img.
func (c *Caption) Draw(img *gocv.Mat) {
	text := c.Text()
	if text == "" {
		return
	}
	gocv.PutText(img, text, image.Pt(16, 40), gocv.FontHersheySimplex, 1.2, connectionColor, 3)
}
