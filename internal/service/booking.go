package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prenota-service/api"
	"prenota-service/internal/models"
	"prenota-service/internal/notify"
	"prenota-service/pkg/response"
)

const (
	ModeSlot  = "slot"
	ModeRange = "range"
)

// reservation is what a ledger hands back once capacity is secured.
type reservation struct {
	SlotID    *string
	ChairID   *string
	StartTime time.Time
	EndTime   time.Time
}

// Ledger secures and releases booking capacity inside the caller's
// transaction. The slot backend counts seats against materialized slots;
// the range backend checks raw chair overlap.
type Ledger interface {
	Mode() string
	Reserve(ctx context.Context, tx *sql.Tx, proposal *models.Proposal, req *api.AppointmentRequest, now time.Time) (*reservation, error)
	Release(ctx context.Context, tx *sql.Tx, a *models.Appointment) error
}

type slotLedger struct {
	store Store
}

func (l *slotLedger) Mode() string { return ModeSlot }

func (l *slotLedger) Reserve(ctx context.Context, tx *sql.Tx, proposal *models.Proposal, req *api.AppointmentRequest, now time.Time) (*reservation, error) {
	const op = "service.slotLedger.Reserve"

	if req.SlotID == nil {
		return nil, fmt.Errorf("%s: slot_id is required: %w", op, response.ErrValidation)
	}

	slot, err := l.store.GetSlotForUpdateTx(ctx, tx, *req.SlotID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if slot.PracticeID != proposal.PracticeID {
		return nil, fmt.Errorf("%s: slot belongs to another practice: %w", op, response.ErrValidation)
	}
	if !slot.StartTime.After(now) {
		return nil, fmt.Errorf("%s: slot is in the past: %w", op, response.ErrValidation)
	}

	if err := l.store.IncrementSlotBookedTx(ctx, tx, slot.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &reservation{
		SlotID:    &slot.ID,
		ChairID:   slot.ChairID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}, nil
}

func (l *slotLedger) Release(ctx context.Context, tx *sql.Tx, a *models.Appointment) error {
	const op = "service.slotLedger.Release"

	if a.SlotID == nil {
		return nil
	}

	if err := l.store.DecrementSlotBookedTx(ctx, tx, *a.SlotID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type rangeLedger struct {
	store Store
}

func (l *rangeLedger) Mode() string { return ModeRange }

func (l *rangeLedger) Reserve(ctx context.Context, tx *sql.Tx, proposal *models.Proposal, req *api.AppointmentRequest, now time.Time) (*reservation, error) {
	const op = "service.rangeLedger.Reserve"

	if req.ChairID == nil || req.StartTime == "" || req.EndTime == "" {
		return nil, fmt.Errorf("%s: chair_id, start_time and end_time are required: %w", op, response.ErrValidation)
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid start_time: %w", op, response.ErrValidation)
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid end_time: %w", op, response.ErrValidation)
	}

	if !end.After(start) {
		return nil, fmt.Errorf("%s: end_time must be after start_time: %w", op, response.ErrValidation)
	}
	if !start.After(now) {
		return nil, fmt.Errorf("%s: start_time is in the past: %w", op, response.ErrValidation)
	}

	overlap, err := l.store.ChairOverlapExistsTx(ctx, tx, *req.ChairID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if overlap {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	return &reservation{
		ChairID:   req.ChairID,
		StartTime: start,
		EndTime:   end,
	}, nil
}

func (l *rangeLedger) Release(ctx context.Context, tx *sql.Tx, a *models.Appointment) error {
	// Overlap space frees itself once the appointment leaves the active
	// statuses. Cross-mode bookings with a slot anchor still decrement.
	const op = "service.rangeLedger.Release"

	if a.SlotID == nil {
		return nil
	}

	if err := l.store.DecrementSlotBookedTx(ctx, tx, *a.SlotID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// #### booking ####

func (s *Service) CreateAppointment(ctx context.Context, req *api.AppointmentRequest) (*api.AppointmentResponse, error) {
	const op = "service.CreateAppointment"

	if _, err := requireRole(ctx, models.RoleSales); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if req.ProposalID == "" {
		return nil, fmt.Errorf("%s: proposal_id is required: %w", op, response.ErrValidation)
	}

	proposal, err := s.store.GetProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if proposal.Status == models.ProposalRejected {
		return nil, fmt.Errorf("%s: proposal was rejected: %w", op, response.ErrState)
	}

	if req.ChairID != nil {
		chair, err := s.store.GetChair(ctx, *req.ChairID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if chair.PracticeID != proposal.PracticeID {
			return nil, fmt.Errorf("%s: chair belongs to another practice: %w", op, response.ErrValidation)
		}
	}

	lockKey := s.bookingLockKey(req)

	locked, err := s.locker.Lock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: lock error: %w", op, err)
	}
	if !locked {
		s.metrics.ObserveBooking(s.ledger.Mode(), "locked")
		return nil, fmt.Errorf("%s: %w", op, response.ErrLocked)
	}
	defer func() {
		_ = s.locker.Unlock(ctx, lockKey)
	}()

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	now := s.now()

	exists, err := s.store.ActiveFutureAppointmentExistsTx(ctx, tx, proposal.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		s.metrics.ObserveBooking(s.ledger.Mode(), "conflict")
		return nil, fmt.Errorf("%s: proposal already has a booking: %w", op, response.ErrConflict)
	}

	res, err := s.ledger.Reserve(ctx, tx, proposal, req, now)
	if err != nil {
		s.metrics.ObserveBooking(s.ledger.Mode(), reserveOutcome(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	appointment := &models.Appointment{
		ID:         newID(),
		ProposalID: &proposal.ID,
		ChairID:    res.ChairID,
		SlotID:     res.SlotID,
		StartTime:  res.StartTime,
		EndTime:    res.EndTime,
		Status:     models.AppointmentNew,
		Note:       req.Note,
	}

	if err := s.store.InsertAppointmentTx(ctx, tx, appointment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpdateProposalStatusTx(ctx, tx, proposal.ID, models.ProposalAppointmentSet); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	s.metrics.ObserveBooking(s.ledger.Mode(), "ok")

	s.notifyBooked(ctx, proposal, appointment)

	return appointmentToResponse(appointment), nil
}

func (s *Service) bookingLockKey(req *api.AppointmentRequest) string {
	if req.SlotID != nil {
		return fmt.Sprintf("slot:%s", *req.SlotID)
	}
	if req.ChairID != nil {
		return fmt.Sprintf("chair:%s", *req.ChairID)
	}

	return fmt.Sprintf("proposal:%s", req.ProposalID)
}

func reserveOutcome(err error) string {
	switch {
	case errors.Is(err, response.ErrCapacity):
		return "full"
	case errors.Is(err, response.ErrConflict):
		return "conflict"
	case errors.Is(err, response.ErrValidation):
		return "invalid"
	case errors.Is(err, response.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// notifyBooked fires the confirmation messages. Delivery failures are
// logged, never surfaced to the booking caller.
func (s *Service) notifyBooked(ctx context.Context, proposal *models.Proposal, a *models.Appointment) {
	practice, err := s.store.GetPractice(ctx, proposal.PracticeID)
	if err != nil {
		s.log.ErrorContext(ctx, "booking notification skipped",
			slog.String("practice_id", proposal.PracticeID), slog.String("error", err.Error()))
		return
	}

	fields := notify.AppointmentFields(proposal.PatientName, practice.Name, practice.Address, a.StartTime)

	if err := s.notifier.Dispatch(ctx, notify.Message{
		Template:  notify.TemplateAppointmentSetPractice,
		Recipient: practice.Email,
		Fields:    fields,
	}); err != nil {
		s.log.ErrorContext(ctx, "practice notification failed", slog.String("error", err.Error()))
	}

	if proposal.PatientEmail == "" {
		return
	}

	if err := s.notifier.Dispatch(ctx, notify.Message{
		Template:  notify.TemplateAppointmentSetPatient,
		Recipient: proposal.PatientEmail,
		Fields:    fields,
	}); err != nil {
		s.log.ErrorContext(ctx, "patient notification failed", slog.String("error", err.Error()))
	}
}

// #### status transitions ####

// allowedTransition implements the role gate on top of the status graph.
// Terminal statuses absorb everything and identical statuses short-circuit
// before this check.
func allowedTransition(role models.Role, from, to models.AppointmentStatus) bool {
	switch role {
	case models.RolePractice:
		switch to {
		case models.AppointmentViewed:
			return from == models.AppointmentNew
		case models.AppointmentNoShow:
			return from.IsActive()
		default:
			return false
		}
	case models.RoleSales:
		return to == models.AppointmentCancelled && from.IsActive()
	default:
		return false
	}
}

func (s *Service) UpdateAppointmentStatus(ctx context.Context, appointmentID string, req *api.AppointmentStatusRequest) (*api.AppointmentResponse, error) {
	const op = "service.UpdateAppointmentStatus"

	act, err := requireRole(ctx, models.RoleSales, models.RolePractice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	target := models.AppointmentStatus(req.Status)
	switch target {
	case models.AppointmentViewed, models.AppointmentNoShow, models.AppointmentCancelled:
	default:
		return nil, fmt.Errorf("%s: unknown status %q: %w", op, req.Status, response.ErrValidation)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	appointment, err := s.store.GetAppointmentForUpdateTx(ctx, tx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if act.Role == models.RolePractice {
		practiceID, err := s.practiceFor(ctx, appointment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if practiceID != act.ID {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotAuthorized)
		}
	}

	if appointment.Status == target {
		return appointmentToResponse(appointment), nil
	}

	if appointment.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: appointment is %s: %w", op, appointment.Status, response.ErrState)
	}

	if !allowedTransition(act.Role, appointment.Status, target) {
		return nil, fmt.Errorf("%s: %s may not move %s to %s: %w",
			op, act.Role, appointment.Status, target, response.ErrState)
	}

	if target.IsTerminal() {
		if err := s.ledger.Release(ctx, tx, appointment); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if appointment.ProposalID != nil {
			if err := s.store.UpdateProposalStatusTx(ctx, tx, *appointment.ProposalID, models.ProposalAnnulled); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if err := s.store.UpdateAppointmentStatusTx(ctx, tx, appointmentID, target, req.Note); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}

	appointment.Status = target
	if req.Note != nil {
		appointment.Note = *req.Note
	}

	if target.IsTerminal() {
		s.metrics.ObserveCancellation(string(target))
	}
	if target == models.AppointmentCancelled {
		s.notifyCancelled(ctx, appointment)
	}

	return appointmentToResponse(appointment), nil
}

// MarkViewed is the practice acknowledging a fresh booking. Appointments
// past the new status are returned unchanged.
func (s *Service) MarkViewed(ctx context.Context, appointmentID string) (*api.AppointmentResponse, error) {
	const op = "service.MarkViewed"

	act, err := requireRole(ctx, models.RolePractice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	appointment, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	practiceID, err := s.practiceFor(ctx, appointment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if practiceID != act.ID {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotAuthorized)
	}

	if appointment.Status != models.AppointmentNew {
		return appointmentToResponse(appointment), nil
	}

	resp, err := s.UpdateAppointmentStatus(ctx, appointmentID, &api.AppointmentStatusRequest{
		Status: string(models.AppointmentViewed),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resp, nil
}

// practiceFor resolves which practice an appointment belongs to, via the
// proposal link first and the chair as fallback for severed history.
func (s *Service) practiceFor(ctx context.Context, a *models.Appointment) (string, error) {
	if a.ProposalID != nil {
		proposal, err := s.store.GetProposal(ctx, *a.ProposalID)
		if err == nil {
			return proposal.PracticeID, nil
		}
		if !errors.Is(err, response.ErrNotFound) {
			return "", err
		}
	}

	if a.ChairID != nil {
		chair, err := s.store.GetChair(ctx, *a.ChairID)
		if err != nil {
			return "", err
		}
		return chair.PracticeID, nil
	}

	return "", response.ErrNotFound
}

func (s *Service) notifyCancelled(ctx context.Context, a *models.Appointment) {
	if a.ProposalID == nil {
		return
	}

	proposal, err := s.store.GetProposal(ctx, *a.ProposalID)
	if err != nil {
		s.log.ErrorContext(ctx, "cancellation notification skipped", slog.String("error", err.Error()))
		return
	}

	practice, err := s.store.GetPractice(ctx, proposal.PracticeID)
	if err != nil {
		s.log.ErrorContext(ctx, "cancellation notification skipped", slog.String("error", err.Error()))
		return
	}

	err = s.notifier.Dispatch(ctx, notify.Message{
		Template:  notify.TemplateAppointmentCancPractice,
		Recipient: practice.Email,
		Fields:    notify.AppointmentFields(proposal.PatientName, practice.Name, practice.Address, a.StartTime),
	})
	if err != nil {
		s.log.ErrorContext(ctx, "cancellation notification failed", slog.String("error", err.Error()))
	}
}

// #### reads ####

func (s *Service) GetAppointment(ctx context.Context, appointmentID string) (*api.AppointmentResponse, error) {
	const op = "service.GetAppointment"

	act, err := requireRole(ctx, models.RoleSales, models.RolePractice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	appointment, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if act.Role == models.RolePractice {
		practiceID, err := s.practiceFor(ctx, appointment)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if practiceID != act.ID {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotAuthorized)
		}
	}

	return appointmentToResponse(appointment), nil
}

func (s *Service) ListAppointments(ctx context.Context, practiceID string, from, to time.Time) ([]*api.AppointmentResponse, error) {
	const op = "service.ListAppointments"

	act, err := requireRole(ctx, models.RoleSales, models.RolePractice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if act.Role == models.RolePractice && act.ID != practiceID {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotAuthorized)
	}

	appointments, err := s.store.ListAppointments(ctx, practiceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		result = append(result, appointmentToResponse(&appointments[i].Appointment))
	}

	return result, nil
}

func (s *Service) SearchProposals(ctx context.Context, email, phone string) ([]*api.ProposalResponse, error) {
	const op = "service.SearchProposals"

	if _, err := requireRole(ctx, models.RoleSales); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if email == "" && phone == "" {
		return nil, fmt.Errorf("%s: email or phone is required: %w", op, response.ErrValidation)
	}

	proposals, err := s.store.SearchProposals(ctx, email, phone)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.ProposalResponse, 0, len(proposals))
	for _, p := range proposals {
		result = append(result, &api.ProposalResponse{
			ID:           p.ID,
			QuoteID:      p.QuoteID,
			PracticeID:   p.PracticeID,
			PatientName:  p.PatientName,
			PatientEmail: p.PatientEmail,
			PatientPhone: p.PatientPhone,
			Status:       string(p.Status),
		})
	}

	return result, nil
}

func appointmentToResponse(a *models.Appointment) *api.AppointmentResponse {
	return &api.AppointmentResponse{
		ID:           a.ID,
		ProposalID:   a.ProposalID,
		ChairID:      a.ChairID,
		SlotID:       a.SlotID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Status:       string(a.Status),
		Note:         a.Note,
		ReminderSent: a.ReminderSent,
	}
}
