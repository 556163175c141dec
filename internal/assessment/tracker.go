package assessment

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/ayusman/fingerspell/internal/log"
	"github.com/ayusman/fingerspell/internal/store"
)

// TaskResult is the outcome of one task in the current window.
type TaskResult struct {
	Task
	MinConfidence float64 `json:"min_confidence"`
	MatchedCount  int     `json:"matched_count"`
	Passed        bool    `json:"passed"`
}

// Result is the outcome of an assessment evaluation.
type Result struct {
	LessonID      int          `json:"lesson_id"`
	SessionID     string       `json:"session_id,omitempty"`
	CurrentLetter string       `json:"current_letter,omitempty"`
	CurrentConf   float64      `json:"current_confidence,omitempty"`
	Tasks         []TaskResult `json:"task_results"`
	OverallPass   bool         `json:"overall_pass"`
	WindowSeconds int          `json:"window_seconds"`
}

// Tracker records published predictions and scores the active assessment.
type Tracker struct {
	store         *store.Store
	clock         clock.Clock
	minConfidence float64

	mu      sync.Mutex
	session *store.Session
	last    *Result
}

// NewTracker creates a Tracker. minConfidence applies to tasks without their own threshold.
// A nil clk uses the wall clock.
func NewTracker(s *store.Store, minConfidence float64, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{store: s, clock: clk, minConfidence: minConfidence}
}

// Start begins an assessment session for lessonID, replacing any active one.
func (t *Tracker) Start(lessonID int) (*store.Session, error) {
	if _, err := Get(lessonID); err != nil {
		return nil, err
	}
	sess, err := t.store.Sessions().Start(lessonID, t.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	t.mu.Lock()
	t.session = sess
	t.last = nil
	t.mu.Unlock()

	log.Info(log.Fields{"lesson": lessonID, "session": sess.ID}, "assessment started")
	return sess, nil
}

// Stop ends the active session, if any.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = nil
}

// Active returns the running session, or nil.
func (t *Tracker) Active() *store.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Last returns the most recent evaluation of the active session, or nil.
func (t *Tracker) Last() *Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Record stores a prediction and rescores the active assessment.
// It has the publish.NotifyFunc signature and never fails; errors are logged.
func (t *Tracker) Record(label string, confidence float64, points [][3]float64) {
	t.mu.Lock()
	sess := t.session
	t.mu.Unlock()

	d := &store.Detection{
		Label:      label,
		Confidence: confidence,
		CreatedAt:  t.clock.Now(),
	}
	if sess != nil {
		d.SessionID = sess.ID
		d.LessonID = sess.LessonID
	}
	if err := t.store.Detections().Create(d); err != nil {
		log.Error(log.Fields{"letter": label, "error": err.Error()}, "failed to save detection")
		return
	}
	if sess == nil {
		return
	}

	res, err := t.Evaluate(sess.LessonID)
	if err != nil {
		log.Error(log.Fields{"lesson": sess.LessonID, "error": err.Error()}, "failed to score assessment")
		return
	}
	res.SessionID = sess.ID
	res.CurrentLetter = label
	res.CurrentConf = confidence

	t.mu.Lock()
	if t.session == sess {
		t.last = &res
	}
	t.mu.Unlock()
}

// Evaluate scores lessonID's assessment over its trailing time window.
// When every task passes the lesson is marked complete.
func (t *Tracker) Evaluate(lessonID int) (Result, error) {
	lesson, err := Get(lessonID)
	if err != nil {
		return Result{}, err
	}
	a := lesson.Assessment
	now := t.clock.Now()
	since := now.Add(-a.Window)

	res := Result{
		LessonID:      lessonID,
		Tasks:         make([]TaskResult, 0, len(a.Tasks)),
		OverallPass:   true,
		WindowSeconds: int(a.Window.Seconds()),
	}
	for _, task := range a.Tasks {
		minConf := task.MinConfidence
		if minConf == 0 {
			minConf = t.minConfidence
		}
		n, err := t.store.Detections().Count(store.Match{
			LessonID:      lessonID,
			Label:         task.Target,
			MinConfidence: minConf,
			Since:         since,
		})
		if err != nil {
			return Result{}, fmt.Errorf("count %s: %w", task.Target, err)
		}
		tr := TaskResult{
			Task:          task,
			MinConfidence: minConf,
			MatchedCount:  n,
			Passed:        n >= task.MinRepetitions,
		}
		if !tr.Passed {
			res.OverallPass = false
		}
		res.Tasks = append(res.Tasks, tr)
	}

	if res.OverallPass {
		if err := t.store.Sessions().Complete(lessonID, a.Title, now); err != nil {
			return Result{}, fmt.Errorf("mark complete: %w", err)
		}
	}
	return res, nil
}
