// Package publish fans a prediction out to display sinks and a notification hook.
package publish

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/predict"
)

// Display shows the current letter and confidence.
type Display interface {
	SetLabel(label string)
	SetConfidence(text string)
}

// NotifyFunc is called once per published prediction.
type NotifyFunc func(label string, confidence float64, points [][3]float64)

// Publisher writes results to its displays and calls the notification hook.
// Every dependency is optional; Publish never fails.
type Publisher struct {
	displays []Display
	notify   NotifyFunc
}

// New creates a Publisher. Nil displays and a nil notify are skipped.
func New(displays []Display, notify NotifyFunc) *Publisher {
	p := &Publisher{notify: notify}
	for _, d := range displays {
		if d != nil {
			p.displays = append(p.displays, d)
		}
	}
	return p
}

// FormatConfidence renders a confidence with two decimals.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

// Publish updates every display and invokes the hook. res.Label is always
// set; the confidence text only when the service returned one.
func (p *Publisher) Publish(res predict.Result, points [][3]float64) {
	text := ""
	if res.HasConfidence {
		text = FormatConfidence(res.Confidence)
	}

	for _, d := range p.displays {
		p.guard("display", func() {
			d.SetLabel(res.Label)
			if res.HasConfidence {
				d.SetConfidence(text)
			}
		})
	}

	if p.notify != nil {
		p.guard("notify", func() {
			p.notify(res.Label, res.Confidence, points)
		})
	}
}

func (p *Publisher) guard(sink string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.Fields{"sink": sink, "panic": fmt.Sprint(r)}, "publish sink panicked")
		}
	}()
	fn()
}

// Chain combines notification hooks; nil entries are skipped.
func Chain(fns ...NotifyFunc) NotifyFunc {
	var live []NotifyFunc
	for _, fn := range fns {
		if fn != nil {
			live = append(live, fn)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(label string, confidence float64, points [][3]float64) {
		for _, fn := range live {
			fn(label, confidence, points)
		}
	}
}

// Text is an in-memory Display holding the last values shown.
type Text struct {
	mu         sync.RWMutex
	label      string
	confidence string
	updates    int
}

// SetLabel implements Display.
func (t *Text) SetLabel(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = label
	t.updates++
}

// SetConfidence implements Display.
func (t *Text) SetConfidence(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confidence = text
}

// Label returns the displayed letter.
func (t *Text) Label() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.label
}

// Confidence returns the displayed confidence text.
func (t *Text) Confidence() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.confidence
}

// Updates counts SetLabel calls.
func (t *Text) Updates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}
