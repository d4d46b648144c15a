package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"prenota-service/api"
	"prenota-service/internal/models"
	"prenota-service/pkg/response"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// isoWeekday maps time.Weekday to ISO numbering, 1 = Monday .. 7 = Sunday.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// buildSlots walks the days of [from, to] and cuts the window into slots.
// Slots that would start before "from" are skipped.
func buildSlots(w *models.AvailabilityWindow, from, to time.Time) ([]models.Slot, error) {
	startClock, err := time.Parse("15:04", w.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid window start_time: %w", err)
	}
	endClock, err := time.Parse("15:04", w.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid window end_time: %w", err)
	}

	dur := time.Duration(w.SlotMinutes) * time.Minute
	if dur <= 0 {
		return nil, fmt.Errorf("invalid slot duration: %d", w.SlotMinutes)
	}

	var slots []models.Slot

	for d := truncateToDate(from); !d.After(truncateToDate(to)); d = d.AddDate(0, 0, 1) {
		if isoWeekday(d) != w.Weekday {
			continue
		}

		dayStart := time.Date(d.Year(), d.Month(), d.Day(), startClock.Hour(), startClock.Minute(), 0, 0, d.Location())
		dayEnd := time.Date(d.Year(), d.Month(), d.Day(), endClock.Hour(), endClock.Minute(), 0, 0, d.Location())

		for cur := dayStart; !cur.Add(dur).After(dayEnd); cur = cur.Add(dur) {
			if cur.Before(from) {
				continue
			}

			slots = append(slots, models.Slot{
				ID:         newID(),
				WindowID:   w.ID,
				PracticeID: w.PracticeID,
				ChairID:    w.ChairID,
				StartTime:  cur,
				EndTime:    cur.Add(dur),
				Capacity:   w.Capacity,
			})
		}
	}

	return slots, nil
}

// materialize writes the window's slots for [from, to] in one transaction.
func (s *Service) materialize(ctx context.Context, w *models.AvailabilityWindow, from, to time.Time) (int, error) {
	const op = "service.materialize"

	slots, err := buildSlots(w, from, to)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(slots) == 0 {
		return 0, nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	n, err := s.store.UpsertSlots(ctx, tx, slots)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit: %w", op, err)
	}

	return n, nil
}

// reconcileWindow rebuilds the future horizon of an edited window. Unbooked
// slots are dropped and regenerated; booked slots are never touched.
func (s *Service) reconcileWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	const op = "service.reconcileWindow"

	now := s.now()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := s.store.DeleteUnbookedSlots(ctx, tx, w.ID, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if w.Active {
		slots, err := buildSlots(w, now, now.AddDate(0, 0, s.cfg.HorizonDays))
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if _, err := s.store.UpsertSlots(ctx, tx, slots); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func (s *Service) GenerateSlots(ctx context.Context, req *api.SlotGenerateRequest) (*api.SlotGenerateResponse, error) {
	const op = "service.GenerateSlots"

	if err := requirePracticeOwner(ctx, req.PracticeID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	from := s.now()
	if req.From != "" {
		parsed, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid from: %w", op, response.ErrValidation)
		}
		if parsed.After(from) {
			from = parsed
		}
	}

	to := s.now().AddDate(0, 0, s.cfg.HorizonDays)
	if req.To != "" {
		parsed, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid to: %w", op, response.ErrValidation)
		}
		to = parsed
	}

	if to.Before(from) {
		return nil, fmt.Errorf("%s: to is before from: %w", op, response.ErrValidation)
	}

	var windows []models.AvailabilityWindow

	if req.WindowID != nil {
		window, err := s.store.GetWindow(ctx, *req.WindowID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if window.PracticeID != req.PracticeID {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotAuthorized)
		}
		if !window.Active {
			return nil, fmt.Errorf("%s: window is inactive: %w", op, response.ErrValidation)
		}

		windows = append(windows, *window)
	} else {
		listed, err := s.store.ListWindows(ctx, req.PracticeID, true)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		windows = listed
	}

	var generated int

	for i := range windows {
		n, err := s.materialize(ctx, &windows[i], from, to)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		generated += n
	}

	return &api.SlotGenerateResponse{Generated: generated}, nil
}

// ListSlots returns a practice's slots in [from, to). Callers outside the
// practice only see slots with free capacity.
func (s *Service) ListSlots(ctx context.Context, practiceID string, from, to time.Time) ([]*api.SlotResponse, error) {
	const op = "service.ListSlots"

	slots, err := s.store.ListSlots(ctx, practiceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	owner := requirePracticeOwner(ctx, practiceID) == nil

	result := make([]*api.SlotResponse, 0, len(slots))
	for i := range slots {
		slot := &slots[i]
		if !owner && slot.Free() <= 0 {
			continue
		}

		result = append(result, &api.SlotResponse{
			ID:         slot.ID,
			WindowID:   slot.WindowID,
			PracticeID: slot.PracticeID,
			ChairID:    slot.ChairID,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
			Capacity:   slot.Capacity,
			Booked:     slot.Booked,
		})
	}

	return result, nil
}

// Agenda assembles the practice's week view: slots per chair per day with
// booked appointments attached. Range-mode appointments with no slot anchor
// are listed as their own entries.
func (s *Service) Agenda(ctx context.Context, practiceID string, fromDate string) (*api.AgendaResponse, error) {
	const op = "service.Agenda"

	if err := requirePracticeOwner(ctx, practiceID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	from := truncateToDate(s.now())
	if fromDate != "" {
		parsed, err := time.Parse("2006-01-02", fromDate)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid from: %w", op, response.ErrValidation)
		}
		from = parsed
	}
	// The week always starts on the ISO Monday of the requested date.
	from = from.AddDate(0, 0, -(isoWeekday(from) - 1))
	to := from.AddDate(0, 0, 7)

	slots, err := s.store.ListSlots(ctx, practiceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	appointments, err := s.store.ListAppointments(ctx, practiceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	chairs, err := s.store.ListChairs(ctx, practiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	chairNames := map[string]string{"": "practice"}
	for _, c := range chairs {
		chairNames[c.ID] = c.Name
	}

	bySlot := make(map[string]*models.AppointmentDetail)
	var unanchored []models.AppointmentDetail
	for i := range appointments {
		a := appointments[i]
		if a.SlotID != nil {
			bySlot[*a.SlotID] = &appointments[i]
			continue
		}
		unanchored = append(unanchored, a)
	}

	entries := make(map[string]map[string][]api.AgendaSlot)

	add := func(chairID, date string, entry api.AgendaSlot) {
		if entries[chairID] == nil {
			entries[chairID] = make(map[string][]api.AgendaSlot)
		}
		entries[chairID][date] = append(entries[chairID][date], entry)
	}

	for i := range slots {
		slot := &slots[i]

		entry := api.AgendaSlot{
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			Available: slot.Free() > 0,
		}

		if a, ok := bySlot[slot.ID]; ok {
			entry.Appointment = appointmentToResponse(&a.Appointment)
			entry.PatientName = a.PatientName
		}

		chairID := ""
		if slot.ChairID != nil {
			chairID = *slot.ChairID
		}

		add(chairID, slot.StartTime.Format("2006-01-02"), entry)
	}

	for i := range unanchored {
		a := &unanchored[i]
		if !a.Status.IsActive() {
			continue
		}

		chairID := ""
		if a.ChairID != nil {
			chairID = *a.ChairID
		}

		add(chairID, a.StartTime.Format("2006-01-02"), api.AgendaSlot{
			StartTime:   a.StartTime,
			EndTime:     a.EndTime,
			Available:   false,
			Appointment: appointmentToResponse(&a.Appointment),
			PatientName: a.PatientName,
		})
	}

	resp := &api.AgendaResponse{
		PracticeID: practiceID,
		From:       from.Format("2006-01-02"),
		To:         to.Format("2006-01-02"),
	}

	chairIDs := make([]string, 0, len(entries))
	for chairID := range entries {
		chairIDs = append(chairIDs, chairID)
	}
	sort.Strings(chairIDs)

	for _, chairID := range chairIDs {
		chair := api.AgendaChair{ChairID: chairID, ChairName: chairNames[chairID]}

		dates := make([]string, 0, len(entries[chairID]))
		for date := range entries[chairID] {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		for _, date := range dates {
			daySlots := entries[chairID][date]
			sort.Slice(daySlots, func(i, j int) bool {
				return daySlots[i].StartTime.Before(daySlots[j].StartTime)
			})

			day, _ := time.Parse("2006-01-02", date)
			chair.Days = append(chair.Days, api.AgendaDay{
				Date:    date,
				Weekday: isoWeekday(day),
				Slots:   daySlots,
			})
		}

		resp.Chairs = append(resp.Chairs, chair)
	}

	return resp, nil
}
