// Package tray provides a system tray menu showing the latest prediction.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu. It satisfies publish.Display.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool

	label      string
	confidence string
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a Tray with recognition enabled.
func New() *Tray {
	return &Tray{enabled: true}
}

// OnToggle sets the callback run when recognition is switched on or off.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run when "Open Tutor" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when "Quit" is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray event loop. It blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Fingerspell")
	systray.SetTooltip("Fingerspelling tutor")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume recognition")
	systray.AddSeparator()
	t.menuLast = systray.AddMenuItem(lastTitle(t.label, t.confidence), "Last predicted letter")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Tutor...", "Open the tutor in a browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit Fingerspell")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.toggle()
			case <-menuOpen.ClickedCh:
				t.open()
			case <-menuQuit.ClickedCh:
				t.quit()
				return
			}
		}
	}()
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func lastTitle(label, confidence string) string {
	switch {
	case label == "":
		return "Last: none"
	case confidence == "":
		return "Last: " + label
	default:
		return "Last: " + label + " (" + confidence + ")"
	}
}

func (t *Tray) toggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Callback runs outside the lock so it may call back into the tray.
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) open() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) quit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

// SetLabel shows the latest predicted letter.
func (t *Tray) SetLabel(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = label
	t.refresh()
}

// SetConfidence shows the latest confidence text.
func (t *Tray) SetConfidence(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confidence = text
	t.refresh()
}

// refresh must be called with mu held.
func (t *Tray) refresh() {
	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(t.label, t.confidence))
	}
}

// Last returns the text of the "Last" menu item.
func (t *Tray) Last() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lastTitle(t.label, t.confidence)
}

// IsEnabled reports whether recognition is enabled.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
