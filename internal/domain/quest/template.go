// Package quest contains quest templates and the quest instance state
// machine. Templates are immutable definitions; instances are one assignment
// of a template to a user with a lifecycle and a deadline.
package quest

import (
	"time"

	"github.com/study-quest/progression-engine/internal/domain/shared"
	"github.com/study-quest/progression-engine/internal/domain/user"
	"github.com/study-quest/progression-engine/pkg/timeutil"
)

// Cadence is how often a template is assigned.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// IsValid reports whether the cadence is recognized.
func (c Cadence) IsValid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	default:
		return false
	}
}

// WindowStart returns the start of the cadence window containing t.
// One instance per template is assigned per window.
func (c Cadence) WindowStart(t time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return timeutil.StartOfWeek(t)
	case CadenceMonthly:
		return timeutil.StartOfMonth(t)
	default:
		return timeutil.StartOfDay(t)
	}
}

// Deadline returns the end of the cadence window containing t. Instances
// assigned within a window expire when the window closes.
func (c Cadence) Deadline(t time.Time) time.Time {
	switch c {
	case CadenceWeekly:
		return timeutil.EndOfWeek(t)
	case CadenceMonthly:
		return timeutil.EndOfMonth(t)
	default:
		return timeutil.EndOfDay(t)
	}
}

// Template is an immutable quest definition.
type Template struct {
	// ID is a stable slug, unique across the catalog.
	ID string

	// Title and Description are carried to clients unchanged.
	Title       string
	Description string

	// Cadence determines assignment windows and deadlines.
	Cadence Cadence

	// BaseXP is the reward before difficulty and streak multipliers.
	BaseXP int64

	// Difficulty scales the reward.
	Difficulty shared.Difficulty

	// RequiredAttributes gates assignment on minimum attribute values.
	// Empty means no prerequisite.
	RequiredAttributes map[user.Attribute]int
}

// EligibleFor reports whether a user meets the template's prerequisites.
func (t Template) EligibleFor(u *user.User) bool {
	for attr, minimum := range t.RequiredAttributes {
		if u.Attributes[attr] < minimum {
			return false
		}
	}
	return true
}

// Catalog returns the built-in quest templates.
func Catalog() []Template {
	return []Template{
		{ID: "daily-read-chapter", Title: "Read a chapter of your textbook", Description: "Complete one chapter.", Cadence: CadenceDaily, BaseXP: 10, Difficulty: shared.DifficultyEasy},
		{ID: "daily-take-notes", Title: "Take notes for 1 hour", Description: "Focus on note-taking.", Cadence: CadenceDaily, BaseXP: 15, Difficulty: shared.DifficultyEasy},
		{ID: "daily-practice-problems", Title: "Solve 5 practice problems", Description: "Practice problem-solving.", Cadence: CadenceDaily, BaseXP: 20, Difficulty: shared.DifficultyNormal},
		{ID: "daily-review-concepts", Title: "Review and summarize key concepts", Description: "Summarize what you learned.", Cadence: CadenceDaily, BaseXP: 15, Difficulty: shared.DifficultyEasy},
		{ID: "weekly-practice-exam", Title: "Complete a practice exam", Description: "Test your knowledge.", Cadence: CadenceWeekly, BaseXP: 50, Difficulty: shared.DifficultyMedium},
		{ID: "weekly-study-group", Title: "Attend a study group session", Description: "Collaborate with peers.", Cadence: CadenceWeekly, BaseXP: 30, Difficulty: shared.DifficultyNormal},
		{ID: "weekly-summary-essay", Title: "Write a summary essay on a topic", Description: "Deepen your understanding.", Cadence: CadenceWeekly, BaseXP: 40, Difficulty: shared.DifficultyNormal},
		{ID: "weekly-mind-map", Title: "Create a mind map of the chapter", Description: "Visualize your learning.", Cadence: CadenceWeekly, BaseXP: 25, Difficulty: shared.DifficultyNormal},
		{ID: "monthly-course-module", Title: "Finish a course module", Description: "Complete all lessons in a module.", Cadence: CadenceMonthly, BaseXP: 100, Difficulty: shared.DifficultyMedium},
		{ID: "monthly-peer-presentation", Title: "Present a topic to a peer group", Description: "Teach others.", Cadence: CadenceMonthly, BaseXP: 75, Difficulty: shared.DifficultyMedium},
		{ID: "monthly-major-test", Title: "Achieve a high score on a major test", Description: "Score above 90%.", Cadence: CadenceMonthly, BaseXP: 150, Difficulty: shared.DifficultyHard},
		{ID: "monthly-study-guide", Title: "Create a comprehensive study guide", Description: "Summarize the whole module.", Cadence: CadenceMonthly, BaseXP: 90, Difficulty: shared.DifficultyMedium},
	}
}

// TemplateByID looks a template up in the catalog.
func TemplateByID(id string) (Template, bool) {
	for _, t := range Catalog() {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// TemplatesByCadence filters the catalog.
func TemplatesByCadence(c Cadence) []Template {
	var out []Template
	for _, t := range Catalog() {
		if t.Cadence == c {
			out = append(out, t)
		}
	}
	return out
}
