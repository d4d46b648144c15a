package models

import "time"

// ProposalStatus mirrors the lifecycle of a practice counter-offer.
// The booking core only ever moves a proposal into AppointmentSet and
// back out into AppointmentCancelled; the remaining states belong to
// the upstream quote pipeline.
type ProposalStatus string

const (
	ProposalSent           ProposalStatus = "sent"
	ProposalViewed         ProposalStatus = "viewed"
	ProposalCallRequested  ProposalStatus = "call_requested"
	ProposalAppointmentSet ProposalStatus = "appointment_set"
	ProposalAnnulled       ProposalStatus = "appointment_cancelled"
	ProposalRejected       ProposalStatus = "rejected"
)

type AppointmentStatus string

const (
	AppointmentNew       AppointmentStatus = "new"
	AppointmentViewed    AppointmentStatus = "viewed"
	AppointmentNoShow    AppointmentStatus = "no_show"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// IsActive reports whether the status still occupies its resource.
func (s AppointmentStatus) IsActive() bool {
	return s == AppointmentNew || s == AppointmentViewed
}

// IsTerminal reports whether no further transition may leave the status.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentNoShow || s == AppointmentCancelled
}

type Role string

const (
	RoleSales    Role = "sales"
	RolePractice Role = "practice"
	RolePatient  Role = "patient"
)

// Actor is the already-authenticated caller; identity itself is resolved
// by an upstream collaborator.
type Actor struct {
	ID   string
	Role Role
}

type Practice struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	Address string `db:"address"`
	Email   string `db:"email"`
}

type Chair struct {
	ID         string `db:"id"`
	PracticeID string `db:"practice_id"`
	Name       string `db:"name"`
}

// AvailabilityWindow is a recurring weekly opening. ChairID nil means the
// window applies practice-wide with Capacity parallel seats; a non-nil
// ChairID scopes the window to a single chair (capacity 1 per slot).
type AvailabilityWindow struct {
	ID          string  `db:"id"`
	PracticeID  string  `db:"practice_id"`
	ChairID     *string `db:"chair_id"`
	Weekday     int     `db:"weekday"`    // ISO, 1 = Monday .. 7 = Sunday
	StartTime   string  `db:"start_time"` // "15:04"
	EndTime     string  `db:"end_time"`
	SlotMinutes int     `db:"slot_minutes"`
	Capacity    int     `db:"capacity"`
	Active      bool    `db:"active"`
}

// Slot is one materialized occurrence of a window. Capacity is frozen at
// materialization time; Booked is owned by the booking engine alone.
type Slot struct {
	ID         string    `db:"id"`
	WindowID   string    `db:"window_id"`
	PracticeID string    `db:"practice_id"`
	ChairID    *string   `db:"chair_id"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	Capacity   int       `db:"capacity"`
	Booked     int       `db:"booked"`
}

func (s *Slot) Free() int {
	return s.Capacity - s.Booked
}

type Proposal struct {
	ID           string         `db:"id"`
	QuoteID      string         `db:"quote_id"`
	PracticeID   string         `db:"practice_id"`
	PatientName  string         `db:"patient_name"`
	PatientEmail string         `db:"patient_email"`
	PatientPhone string         `db:"patient_phone"`
	Status       ProposalStatus `db:"status"`
}

// AppointmentDetail is an appointment joined with the patient it serves.
type AppointmentDetail struct {
	Appointment
	PatientName string `db:"patient_name"`
}

// ReminderItem is everything the reminder sender needs for one message.
// PatientEmail is nil when the proposal or patient link was severed.
type ReminderItem struct {
	AppointmentID   string
	StartTime       time.Time
	PatientName     string
	PatientEmail    *string
	PracticeName    string
	PracticeAddress string
	ChairName       *string
}

// Appointment binds a proposal to either a slot (slot booking mode) or a
// raw (chair, start, end) range (range mode). References are nulled, not
// cascaded, when the parent goes away: history is never deleted.
type Appointment struct {
	ID           string            `db:"id"`
	ProposalID   *string           `db:"proposal_id"`
	ChairID      *string           `db:"chair_id"`
	SlotID       *string           `db:"slot_id"`
	StartTime    time.Time         `db:"start_time"`
	EndTime      time.Time         `db:"end_time"`
	Status       AppointmentStatus `db:"status"`
	Note         string            `db:"note"`
	ReminderSent bool              `db:"reminder_sent"`
}
