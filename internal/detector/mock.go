package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector returns canned hands. It is safe for concurrent use.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a MockDetector that detects nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError makes Detect fail with err.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Detect has run.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect ignores the frame and returns the configured result.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op.
func (m *MockDetector) Close() error {
	return nil
}

// LetterALandmarks returns a right hand signing ASL "A":
// a closed fist with the thumb resting upright along the index finger.
func LetterALandmarks() HandLandmarks {
	h := HandLandmarks{Handedness: "Right", Score: 0.96}

	h.Points[Wrist] = Point3D{X: 0.50, Y: 0.80, Z: 0.0}

	h.Points[ThumbCMC] = Point3D{X: 0.56, Y: 0.76, Z: -0.01}
	h.Points[ThumbMCP] = Point3D{X: 0.59, Y: 0.69, Z: -0.02}
	h.Points[ThumbIP] = Point3D{X: 0.60, Y: 0.62, Z: -0.03}
	h.Points[ThumbTip] = Point3D{X: 0.60, Y: 0.56, Z: -0.03}

	curled := func(mcp, x float64) [4]Point3D {
		return [4]Point3D{
			{X: x, Y: mcp, Z: -0.02},
			{X: x, Y: mcp - 0.04, Z: -0.06},
			{X: x - 0.01, Y: mcp - 0.01, Z: -0.07},
			{X: x - 0.01, Y: mcp + 0.02, Z: -0.05},
		}
	}
	for i, f := range [][4]Point3D{
		curled(0.62, 0.56),
		curled(0.61, 0.51),
		curled(0.62, 0.46),
		curled(0.64, 0.42),
	} {
		base := IndexMCP + i*4
		for j := range f {
			h.Points[base+j] = f[j]
		}
	}
	return h
}

// LetterLLandmarks returns a right hand signing ASL "L":
// index finger straight up, thumb straight out, other fingers curled.
func LetterLLandmarks() HandLandmarks {
	h := LetterALandmarks()

	h.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.72, Z: 0.0}
	h.Points[ThumbIP] = Point3D{X: 0.69, Y: 0.70, Z: 0.0}
	h.Points[ThumbTip] = Point3D{X: 0.76, Y: 0.69, Z: 0.0}

	h.Points[IndexMCP] = Point3D{X: 0.56, Y: 0.62, Z: 0.0}
	h.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.50, Z: 0.0}
	h.Points[IndexDIP] = Point3D{X: 0.57, Y: 0.41, Z: 0.0}
	h.Points[IndexTip] = Point3D{X: 0.57, Y: 0.33, Z: 0.0}
	return h
}
