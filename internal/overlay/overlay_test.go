package overlay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/fingerspell/internal/detector"
)

func TestToPixel(t *testing.T) {
	tests := []struct {
		p    detector.Point3D
		want image.Point
	}{
		{detector.Point3D{X: 0, Y: 0}, image.Pt(0, 0)},
		{detector.Point3D{X: 0.5, Y: 0.5}, image.Pt(320, 240)},
		{detector.Point3D{X: 1, Y: 1, Z: -0.3}, image.Pt(640, 480)},
	}
	for _, tt := range tests {
		if got := toPixel(tt.p, 640, 480); got != tt.want {
			t.Errorf("toPixel(%+v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestDrawHands_MarksFrame(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	DrawHands(&img, []detector.HandLandmarks{detector.LetterLLandmarks()})

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	if gocv.CountNonZero(gray) == 0 {
		t.Error("expected landmarks to be drawn onto the frame")
	}
}

func TestDrawHands_NoHands(t *testing.T) {
	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	DrawHands(&img, nil)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	if n := gocv.CountNonZero(gray); n != 0 {
		t.Errorf("frame changed without hands: %d non-zero pixels", n)
	}
}

func TestCaption(t *testing.T) {
	var c Caption
	if c.Text() != "" {
		t.Errorf("Text() before prediction = %q, want empty", c.Text())
	}

	c.SetLabel("A")
	if c.Text() != "A" {
		t.Errorf("Text() = %q, want A", c.Text())
	}

	c.SetConfidence("0.92")
	if c.Text() != "A (0.92)" {
		t.Errorf("Text() = %q, want %q", c.Text(), "A (0.92)")
	}
}

func TestFrameBuffer_PutLatest(t *testing.T) {
	b := NewFrameBuffer()

	if data, seq := b.Latest(); data != nil || seq != 0 {
		t.Errorf("Latest() on empty buffer = %v, %d", data, seq)
	}

	b.Put([]byte("one"))
	b.Put([]byte("two"))

	data, seq := b.Latest()
	if !bytes.Equal(data, []byte("two")) || seq != 2 {
		t.Errorf("Latest() = %q, %d, want two, 2", data, seq)
	}
}

func TestFrameBuffer_Next(t *testing.T) {
	b := NewFrameBuffer()

	t.Run("returns immediately when newer frame exists", func(t *testing.T) {
		b.Put([]byte("first"))
		data, seq, err := b.Next(context.Background(), 0)
		if err != nil || seq != 1 || string(data) != "first" {
			t.Errorf("Next(0) = %q, %d, %v", data, seq, err)
		}
	})

	t.Run("waits for update", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			b.Put([]byte("second"))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		data, seq, err := b.Next(ctx, 1)
		if err != nil {
			t.Fatalf("Next(1) error = %v", err)
		}
		if seq != 2 || string(data) != "second" {
			t.Errorf("Next(1) = %q, %d, want second, 2", data, seq)
		}
	})

	t.Run("honours context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, _, err := b.Next(ctx, 99); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Next() error = %v, want deadline exceeded", err)
		}
	})
}

func TestFrameBuffer_Encode(t *testing.T) {
	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	b := NewFrameBuffer()
	if err := b.Encode(img); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	data, _ := b.Latest()
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("expected JPEG SOI marker")
	}
}
