// Package assessment defines fingerspelling lessons and scores assessment attempts
// against the detection history.
package assessment

import (
	"errors"
	"time"
)

// ErrUnknownLesson is returned for a lesson ID outside the catalogue.
var ErrUnknownLesson = errors.New("unknown lesson")

// Task asks the learner to sign Target at least MinRepetitions times.
type Task struct {
	Prompt         string  `json:"prompt"`
	Target         string  `json:"target_sign"`
	MinRepetitions int     `json:"min_repetitions"`
	MinConfidence  float64 `json:"min_confidence,omitempty"` // zero means the tracker default
}

// Assessment is the test attached to a lesson.
type Assessment struct {
	Title  string        `json:"title"`
	Window time.Duration `json:"-"`
	Tasks  []Task        `json:"tasks"`
}

// Lesson is a group of letters taught together.
type Lesson struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	Letters     []string   `json:"letters"`
	Assessment  Assessment `json:"assessment"`
}

func signThreeTimes(letter string) Task {
	return Task{
		Prompt:         "Sign the letter " + letter + " three times.",
		Target:         letter,
		MinRepetitions: 3,
	}
}

func letters(from, to byte) []string {
	var out []string
	for c := from; c <= to; c++ {
		out = append(out, string(c))
	}
	return out
}

var catalogue = []Lesson{
	{
		ID:          1,
		Title:       "Lesson 1: ASL Alphabet A–G",
		Description: "Learn and practice ASL handshapes for the letters A through G.",
		Image:       "a_to_g.png",
		Letters:     letters('A', 'G'),
		Assessment: Assessment{
			Title:  "Lesson 1 Assessment",
			Window: 60 * time.Second,
			Tasks:  []Task{signThreeTimes("A"), signThreeTimes("C")},
		},
	},
	{
		ID:          2,
		Title:       "Lesson 2: ASL Alphabet H–N",
		Description: "Learn and practice ASL handshapes for the letters H through N.",
		Image:       "h_to_n.png",
		Letters:     letters('H', 'N'),
		Assessment: Assessment{
			Title:  "Lesson 2 Assessment",
			Window: 60 * time.Second,
			Tasks:  []Task{signThreeTimes("H"), signThreeTimes("L")},
		},
	},
	{
		ID:          3,
		Title:       "Lesson 3: ASL Alphabet O–U",
		Description: "Learn and practice ASL handshapes for the letters O through U.",
		Image:       "o_to_u.png",
		Letters:     letters('O', 'U'),
		Assessment: Assessment{
			Title:  "Lesson 3 Assessment",
			Window: 60 * time.Second,
			Tasks:  []Task{signThreeTimes("O"), signThreeTimes("R")},
		},
	},
	{
		ID:          4,
		Title:       "Lesson 4: ASL Alphabet V–Z",
		Description: "Learn and practice ASL handshapes for the letters V through Z.",
		Image:       "v_to_z.png",
		Letters:     letters('V', 'Z'),
		Assessment: Assessment{
			Title:  "Lesson 4 Assessment",
			Window: 60 * time.Second,
			Tasks:  []Task{signThreeTimes("W"), signThreeTimes("Y")},
		},
	},
	{
		ID:          5,
		Title:       "Final Practice Lesson",
		Description: "Review all letters A–Z and test your recognition skills.",
		Image:       "all_letters.png",
		Letters:     letters('A', 'Z'),
		Assessment: Assessment{
			Title:  "Final Practice Assessment",
			Window: 90 * time.Second,
			Tasks:  []Task{signThreeTimes("B"), signThreeTimes("R"), signThreeTimes("V")},
		},
	},
}

// Lessons returns the lesson catalogue in order.
func Lessons() []Lesson {
	out := make([]Lesson, len(catalogue))
	copy(out, catalogue)
	return out
}

// Get returns the lesson with id.
func Get(id int) (Lesson, error) {
	for _, l := range catalogue {
		if l.ID == id {
			return l, nil
		}
	}
	return Lesson{}, ErrUnknownLesson
}
