package api

import "time"

type AvailabilityRequest struct {
	PracticeID  string  `json:"practice_id"`
	ChairID     *string `json:"chair_id,omitempty"`
	Weekday     int     `json:"weekday"`
	StartTime   string  `json:"start_time"` // "09:00"
	EndTime     string  `json:"end_time"`
	SlotMinutes int     `json:"slot_minutes"`
	Capacity    int     `json:"capacity"`
	Active      bool    `json:"active"`
}

type AvailabilityResponse struct {
	ID          string  `json:"id"`
	PracticeID  string  `json:"practice_id"`
	ChairID     *string `json:"chair_id,omitempty"`
	Weekday     int     `json:"weekday"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	SlotMinutes int     `json:"slot_minutes"`
	Capacity    int     `json:"capacity"`
	Active      bool    `json:"active"`
}

type SlotGenerateRequest struct {
	PracticeID string  `json:"practice_id"`
	WindowID   *string `json:"window_id,omitempty"` // nil = all active windows
	From       string  `json:"from,omitempty"`      // RFC3339, defaults to now
	To         string  `json:"to,omitempty"`        // RFC3339, defaults to now + horizon
}

type SlotGenerateResponse struct {
	Generated int `json:"generated"`
}

type SlotResponse struct {
	ID         string    `json:"id"`
	WindowID   string    `json:"window_id"`
	PracticeID string    `json:"practice_id"`
	ChairID    *string   `json:"chair_id,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Capacity   int       `json:"capacity"`
	Booked     int       `json:"booked"`
}

// AppointmentRequest carries either SlotID (slot booking mode) or
// ChairID + StartTime + EndTime (range mode).
type AppointmentRequest struct {
	ProposalID string  `json:"proposal_id"`
	SlotID     *string `json:"slot_id,omitempty"`
	ChairID    *string `json:"chair_id,omitempty"`
	StartTime  string  `json:"start_time,omitempty"` // RFC3339
	EndTime    string  `json:"end_time,omitempty"`
	Note       string  `json:"note,omitempty"`
}

type AppointmentResponse struct {
	ID           string    `json:"id"`
	ProposalID   *string   `json:"proposal_id,omitempty"`
	ChairID      *string   `json:"chair_id,omitempty"`
	SlotID       *string   `json:"slot_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Status       string    `json:"status"`
	Note         string    `json:"note,omitempty"`
	ReminderSent bool      `json:"reminder_sent"`
}

type AppointmentStatusRequest struct {
	Status string  `json:"status"`
	Note   *string `json:"note,omitempty"`
}

type ProposalResponse struct {
	ID           string `json:"id"`
	QuoteID      string `json:"quote_id"`
	PracticeID   string `json:"practice_id"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email"`
	PatientPhone string `json:"patient_phone"`
	Status       string `json:"status"`
}

type AgendaSlot struct {
	StartTime   time.Time            `json:"start_time"`
	EndTime     time.Time            `json:"end_time"`
	Available   bool                 `json:"available"`
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	PatientName string               `json:"patient_name,omitempty"`
}

type AgendaDay struct {
	Date    string       `json:"date"` // "2006-01-02"
	Weekday int          `json:"weekday"`
	Slots   []AgendaSlot `json:"slots"`
}

type AgendaChair struct {
	ChairID   string      `json:"chair_id"`
	ChairName string      `json:"chair_name"`
	Days      []AgendaDay `json:"days"`
}

type AgendaResponse struct {
	PracticeID string        `json:"practice_id"`
	From       string        `json:"from"`
	To         string        `json:"to"`
	Chairs     []AgendaChair `json:"chairs"`
}

type ReminderRunResponse struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
