// Package session runs the per-meeting attendance state machine. A single
// Coordinator owns the admitted set and the frame debounce, serializing all
// transitions behind one mutex.
package session

import (
	"errors"
	"time"
)

// State of the coordinator.
type State string

const (
	StateClosed  State = "closed"
	StateOpen    State = "open"
	StateClosing State = "closing"
)

var (
	ErrInvalidCredentials = errors.New("invalid class credentials")
	ErrSessionNotOpen     = errors.New("session not open")
	ErrSessionActive      = errors.New("session already open")
	ErrInvalidMeeting     = errors.New("pertemuan outside class meeting range")
)

// Outcome classifies what one submitted frame did to the session.
type Outcome string

const (
	// OutcomeIgnored: unknown or ambiguous match, camera keeps scanning.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDuplicate: student already admitted this meeting.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomePending: confirming streak not yet long enough.
	OutcomePending Outcome = "pending_confirmation"
	// OutcomeAdmitted: attendance record written.
	OutcomeAdmitted Outcome = "admitted"
)

// Admission is the session's verdict on one submitted match.
type Admission struct {
	Outcome    Outcome `json:"outcome"`
	NIM        string  `json:"nim,omitempty"`
	Name       string  `json:"name,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Streak     int     `json:"streak,omitempty"`
}

// Descriptor identifies one open session.
type Descriptor struct {
	ID        string    `json:"id"`
	ClassCode string    `json:"class_code"`
	ClassName string    `json:"class_name"`
	Pertemuan int       `json:"pertemuan"`
	OpenedAt  time.Time `json:"opened_at"`
}

// Summary reports a session after close.
type Summary struct {
	ID        string    `json:"id"`
	ClassCode string    `json:"class_code"`
	Pertemuan int       `json:"pertemuan"`
	Count     int       `json:"count"`
	NIMs      []string  `json:"nims"`
	OpenedAt  time.Time `json:"opened_at"`
	ClosedAt  time.Time `json:"closed_at"`
}

// AdmissionEvent is published to listeners whenever a student is admitted.
type AdmissionEvent struct {
	SessionID  string    `json:"session_id"`
	ClassCode  string    `json:"class_code"`
	Pertemuan  int       `json:"pertemuan"`
	NIM        string    `json:"nim"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	AdmittedAt time.Time `json:"admitted_at"`
}

// Status is a point-in-time view of the coordinator for the API.
type Status struct {
	State      State            `json:"state"`
	Session    *Descriptor      `json:"session,omitempty"`
	Admissions []AdmissionEvent `json:"admissions,omitempty"`
}
