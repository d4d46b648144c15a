package notify

import (
	"context"
	"log/slog"
	"time"
)

// Template names known to the downstream mail/SMS gateway.
const (
	TemplateAppointmentSetPractice     = "appointment_set_practice"
	TemplateAppointmentSetPatient      = "appointment_set_patient"
	TemplateAppointmentCancPractice    = "appointment_cancelled_practice"
	TemplateAppointmentReminderPatient = "appointment_reminder_patient"
)

// Message is one outbound notification. Fields carries the template
// substitutions.
type Message struct {
	Template  string
	Recipient string
	Fields    map[string]string
}

// Dispatcher hands messages to the delivery gateway. Implementations must
// be safe for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogDispatcher records messages instead of delivering them. It backs
// local and test environments where no gateway is wired.
type LogDispatcher struct {
	log *slog.Logger
}

func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, msg Message) error {
	d.log.InfoContext(ctx, "notification dispatched",
		slog.String("template", msg.Template),
		slog.String("recipient", msg.Recipient),
		slog.Any("fields", msg.Fields),
	)

	return nil
}

// AppointmentFields builds the substitution set shared by the booking
// templates.
func AppointmentFields(patientName, practiceName, practiceAddress string, start time.Time) map[string]string {
	return map[string]string{
		"patient_name":     patientName,
		"practice_name":    practiceName,
		"practice_address": practiceAddress,
		"date":             start.Format("2006-01-02"),
		"time":             start.Format("15:04"),
	}
}
