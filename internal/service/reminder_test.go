package service

import (
	"testing"
	"time"

	"prenota-service/internal/models"
	"prenota-service/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDueReminders(t *testing.T) {
	store, _ := newFakeStore(t)

	dueDay := base.AddDate(0, 0, 2)

	store.reminders = []models.ReminderItem{
		{
			AppointmentID: "a1",
			StartTime:     dueDay.Add(9 * time.Hour),
			PatientName:   "Mario Rossi",
			PatientEmail:  strPtr("mario@example.com"),
			PracticeName:  "Studio Uno",
			ChairName:     strPtr("Chair 1"),
		},
		{
			// Proposal link severed, nobody to mail.
			AppointmentID: "a2",
			StartTime:     dueDay.Add(10 * time.Hour),
			PatientName:   "",
			PatientEmail:  nil,
		},
		{
			AppointmentID: "a3",
			StartTime:     dueDay.Add(11 * time.Hour),
			PatientName:   "Luca Bianchi",
			PatientEmail:  strPtr("luca@example.com"),
			PracticeName:  "Studio Uno",
		},
		{
			// Outside the due day, must not be picked up.
			AppointmentID: "a4",
			StartTime:     base.AddDate(0, 0, 5),
			PatientEmail:  strPtr("later@example.com"),
		},
		{
			// Practice link severed: a reminder with no practice to name
			// is skipped, not sent half-empty.
			AppointmentID: "a5",
			StartTime:     dueDay.Add(12 * time.Hour),
			PatientName:   "Anna Neri",
			PatientEmail:  strPtr("anna@example.com"),
			PracticeName:  "",
		},
	}

	dispatcher := &stubDispatcher{failFor: "luca@example.com"}
	svc := newTestService(store, &fakeLocker{ok: true}, dispatcher, testConfig())
	svc.now = func() time.Time { return base }

	got, err := svc.ProcessDueReminders(salesCtx())
	require.NoError(t, err)

	assert.Equal(t, 4, got.Processed)
	assert.Equal(t, 1, got.Sent)
	assert.Equal(t, 2, got.Skipped)
	assert.Equal(t, 1, got.Failed)

	// Only the delivered reminder gets flagged; the failed one stays due
	// for the next run.
	assert.Equal(t, []string{"a1"}, store.remindersMarked)

	require.Len(t, dispatcher.msgs, 1)
	msg := dispatcher.msgs[0]
	assert.Equal(t, notify.TemplateAppointmentReminderPatient, msg.Template)
	assert.Equal(t, "mario@example.com", msg.Recipient)
	assert.Equal(t, "Chair 1", msg.Fields["chair_name"])
	assert.Equal(t, dueDay.Format("2006-01-02"), msg.Fields["date"])
}

func TestProcessDueReminders_NothingDue(t *testing.T) {
	store, _ := newFakeStore(t)

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	got, err := svc.ProcessDueReminders(salesCtx())
	require.NoError(t, err)
	assert.Zero(t, got.Processed)
	assert.Zero(t, got.Sent)
}
