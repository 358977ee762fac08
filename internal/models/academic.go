package models

import "time"

// AcademicYear spans the institutional year; exactly one is current at any
// instant, derivable from its dates.
type AcademicYear struct {
	Year      int       `db:"year" json:"year"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	EndDate   time.Time `db:"end_date" json:"end_date"`
}

// Contains reports whether t falls inside the academic year.
func (y AcademicYear) Contains(t time.Time) bool {
	return !t.Before(y.StartDate) && !t.After(y.EndDate)
}

// SessionExam is one of the three annual exam windows.
type SessionExam struct {
	ID               string     `db:"id" json:"id"`
	Number           int        `db:"number" json:"number"`
	AcademicYear     int        `db:"academic_year" json:"academic_year"`
	WindowStart      time.Time  `db:"window_start" json:"window_start"`
	WindowEnd        time.Time  `db:"window_end" json:"window_end"`
	DeliberationDate *time.Time `db:"deliberation_date" json:"deliberation_date,omitempty"`
}

// Contains reports whether the encoding window is open at t. Window bounds
// are dates; both ends are inclusive.
func (s SessionExam) Contains(t time.Time) bool {
	day := DateOf(t)
	return !day.Before(DateOf(s.WindowStart)) && !day.After(DateOf(s.WindowEnd))
}

// SessionWindowKind labels calendar messages surfaced to callers when no
// session is open.
type SessionWindowKind string

const (
	SessionWindowClosedOn SessionWindowKind = "closed_on"
	SessionWindowOpensOn  SessionWindowKind = "opens_on"
)

// SessionWindowMessage tells a caller when a closed session ended or a
// future one opens.
type SessionWindowMessage struct {
	Kind          SessionWindowKind `json:"kind"`
	SessionNumber int               `json:"session_number"`
	Date          time.Time         `json:"date"`
}

// Offer represents a programme in a given academic year.
type Offer struct {
	ID             string    `db:"id" json:"id"`
	Acronym        string    `db:"acronym" json:"acronym"`
	AcademicYear   int       `db:"academic_year" json:"academic_year"`
	Title          string    `db:"title" json:"title"`
	EntityAcronym  string    `db:"entity_acronym" json:"entity_acronym"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// LearningUnit is a course-year instance identified by acronym and year.
type LearningUnit struct {
	ID           string    `db:"id" json:"id"`
	Acronym      string    `db:"acronym" json:"acronym"`
	AcademicYear int       `db:"academic_year" json:"academic_year"`
	Title        string    `db:"title" json:"title"`
	Credits      float64   `db:"credits" json:"credits"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DateOf truncates t to its calendar date, preserving the location.
// Deadline and window checks compare business dates, never instants.
func DateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
