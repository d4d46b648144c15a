package service

import (
	"context"
	"fmt"
	"log/slog"

	"prenota-service/api"
	"prenota-service/internal/notify"
)

// ProcessDueReminders sends a reminder for every active appointment whose
// day lands reminder_lead_days ahead of now. Send happens before the flag
// flips, so a crash between the two repeats a message rather than losing
// one. Per-appointment failures are logged and counted, the batch goes on.
func (s *Service) ProcessDueReminders(ctx context.Context) (*api.ReminderRunResponse, error) {
	const op = "service.ProcessDueReminders"

	day := truncateToDate(s.now().AddDate(0, 0, s.cfg.ReminderLeadDays))
	dayEnd := day.AddDate(0, 0, 1)

	items, err := s.store.ListDueReminders(ctx, day, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp := &api.ReminderRunResponse{Processed: len(items)}

	for _, item := range items {
		log := s.log.With(slog.String("appointment_id", item.AppointmentID))

		if item.PatientEmail == nil || *item.PatientEmail == "" {
			log.WarnContext(ctx, "reminder skipped, no patient contact")
			s.metrics.ObserveReminder("skipped")
			resp.Skipped++
			continue
		}

		if item.PracticeName == "" {
			log.WarnContext(ctx, "reminder skipped, practice link severed")
			s.metrics.ObserveReminder("skipped")
			resp.Skipped++
			continue
		}

		fields := notify.AppointmentFields(item.PatientName, item.PracticeName, item.PracticeAddress, item.StartTime)
		if item.ChairName != nil {
			fields["chair_name"] = *item.ChairName
		}

		err := s.notifier.Dispatch(ctx, notify.Message{
			Template:  notify.TemplateAppointmentReminderPatient,
			Recipient: *item.PatientEmail,
			Fields:    fields,
		})
		if err != nil {
			log.ErrorContext(ctx, "reminder dispatch failed", slog.String("error", err.Error()))
			s.metrics.ObserveReminder("failed")
			resp.Failed++
			continue
		}

		if err := s.store.MarkReminderSent(ctx, item.AppointmentID); err != nil {
			log.ErrorContext(ctx, "reminder sent but not marked", slog.String("error", err.Error()))
			s.metrics.ObserveReminder("failed")
			resp.Failed++
			continue
		}

		s.metrics.ObserveReminder("sent")
		resp.Sent++
	}

	return resp, nil
}
