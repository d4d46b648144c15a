package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prenota-service/api"
	"prenota-service/internal/actor"
	"prenota-service/internal/config"
	"prenota-service/internal/lock"
	"prenota-service/internal/metrics"
	"prenota-service/internal/models"
	"prenota-service/internal/notify"
	"prenota-service/pkg/response"
)

type Service struct {
	log      *slog.Logger
	store    Store
	locker   lock.Locker
	ledger   Ledger
	notifier notify.Dispatcher
	metrics  *metrics.BookingMetrics
	cfg      config.Booking

	// now is swapped out in tests.
	now func() time.Time
}

func NewService(log *slog.Logger, store Store, locker lock.Locker, notifier notify.Dispatcher, m *metrics.BookingMetrics, cfg config.Booking) *Service {
	s := &Service{
		log:      log,
		store:    store,
		locker:   locker,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}

	switch cfg.Mode {
	case ModeRange:
		s.ledger = &rangeLedger{store: store}
	default:
		s.ledger = &slotLedger{store: store}
	}

	return s
}

type Store interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Practices / chairs
	GetPractice(ctx context.Context, practiceID string) (*models.Practice, error)
	GetChair(ctx context.Context, chairID string) (*models.Chair, error)
	ListChairs(ctx context.Context, practiceID string) ([]models.Chair, error)

	// Availability windows
	InsertWindow(ctx context.Context, w *models.AvailabilityWindow) error
	UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	DeleteWindowTx(ctx context.Context, tx *sql.Tx, windowID string) error
	GetWindow(ctx context.Context, windowID string) (*models.AvailabilityWindow, error)
	ListWindows(ctx context.Context, practiceID string, onlyActive bool) ([]models.AvailabilityWindow, error)
	WindowOverlapExists(ctx context.Context, practiceID string, chairID *string, weekday int, start, end string, excludeID string) (bool, error)

	// Slots
	UpsertSlots(ctx context.Context, tx *sql.Tx, slots []models.Slot) (int, error)
	DeleteUnbookedSlots(ctx context.Context, tx *sql.Tx, windowID string, from time.Time) (int, error)
	CountBookedFutureSlots(ctx context.Context, windowID string, from time.Time) (int, error)
	GetSlot(ctx context.Context, slotID string) (*models.Slot, error)
	GetSlotForUpdateTx(ctx context.Context, tx *sql.Tx, slotID string) (*models.Slot, error)
	IncrementSlotBookedTx(ctx context.Context, tx *sql.Tx, slotID string) error
	DecrementSlotBookedTx(ctx context.Context, tx *sql.Tx, slotID string) error
	ListSlots(ctx context.Context, practiceID string, from, to time.Time) ([]models.Slot, error)

	// Proposals
	GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error)
	UpdateProposalStatusTx(ctx context.Context, tx *sql.Tx, proposalID string, status models.ProposalStatus) error
	SearchProposals(ctx context.Context, email, phone string) ([]models.Proposal, error)

	// Appointments
	InsertAppointmentTx(ctx context.Context, tx *sql.Tx, a *models.Appointment) error
	GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error)
	GetAppointmentForUpdateTx(ctx context.Context, tx *sql.Tx, appointmentID string) (*models.Appointment, error)
	UpdateAppointmentStatusTx(ctx context.Context, tx *sql.Tx, appointmentID string, status models.AppointmentStatus, note *string) error
	ActiveFutureAppointmentExistsTx(ctx context.Context, tx *sql.Tx, proposalID string, now time.Time) (bool, error)
	ChairOverlapExistsTx(ctx context.Context, tx *sql.Tx, chairID string, start, end time.Time) (bool, error)
	ListAppointments(ctx context.Context, practiceID string, from, to time.Time) ([]models.AppointmentDetail, error)

	// Reminders
	ListDueReminders(ctx context.Context, dayStart, dayEnd time.Time) ([]models.ReminderItem, error)
	MarkReminderSent(ctx context.Context, appointmentID string) error
}

// requireRole returns the actor when it carries one of the wanted roles.
func requireRole(ctx context.Context, roles ...models.Role) (models.Actor, error) {
	act, ok := actor.FromContext(ctx)
	if !ok {
		return models.Actor{}, response.ErrNotAuthorized
	}

	for _, role := range roles {
		if act.Role == role {
			return act, nil
		}
	}

	return models.Actor{}, response.ErrNotAuthorized
}

// requirePracticeOwner checks the caller is the practice itself.
func requirePracticeOwner(ctx context.Context, practiceID string) error {
	act, err := requireRole(ctx, models.RolePractice)
	if err != nil {
		return err
	}
	if act.ID != practiceID {
		return response.ErrNotAuthorized
	}

	return nil
}

// #### availability windows ####

func validateWindow(req *api.AvailabilityRequest) error {
	if req.PracticeID == "" {
		return fmt.Errorf("practice_id is required: %w", response.ErrValidation)
	}
	if req.Weekday < 1 || req.Weekday > 7 {
		return fmt.Errorf("weekday must be 1..7: %w", response.ErrValidation)
	}

	start, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time: %w", response.ErrValidation)
	}
	end, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time: %w", response.ErrValidation)
	}
	if !end.After(start) {
		return fmt.Errorf("end_time must be after start_time: %w", response.ErrValidation)
	}

	if req.SlotMinutes <= 0 {
		return fmt.Errorf("slot_minutes must be positive: %w", response.ErrValidation)
	}
	if req.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1: %w", response.ErrValidation)
	}
	if req.ChairID != nil && req.Capacity != 1 {
		return fmt.Errorf("chair windows carry capacity 1: %w", response.ErrValidation)
	}

	return nil
}

func (s *Service) CreateAvailability(ctx context.Context, req *api.AvailabilityRequest) (*api.AvailabilityResponse, error) {
	const op = "service.CreateAvailability"

	if err := requirePracticeOwner(ctx, req.PracticeID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validateWindow(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if req.ChairID != nil {
		chair, err := s.store.GetChair(ctx, *req.ChairID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if chair.PracticeID != req.PracticeID {
			return nil, fmt.Errorf("%s: chair belongs to another practice: %w", op, response.ErrValidation)
		}
	}

	overlap, err := s.store.WindowOverlapExists(ctx, req.PracticeID, req.ChairID, req.Weekday, req.StartTime, req.EndTime, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if overlap {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	window := &models.AvailabilityWindow{
		ID:          newID(),
		PracticeID:  req.PracticeID,
		ChairID:     req.ChairID,
		Weekday:     req.Weekday,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SlotMinutes: req.SlotMinutes,
		Capacity:    req.Capacity,
		Active:      req.Active,
	}

	if err := s.store.InsertWindow(ctx, window); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if window.Active {
		if _, err := s.materialize(ctx, window, s.now(), s.now().AddDate(0, 0, s.cfg.HorizonDays)); err != nil {
			s.log.ErrorContext(ctx, "slot materialization after create failed",
				slog.String("window_id", window.ID), slog.String("error", err.Error()))
		}
	}

	return windowToResponse(window), nil
}

func (s *Service) UpdateAvailability(ctx context.Context, windowID string, req *api.AvailabilityRequest) (*api.AvailabilityResponse, error) {
	const op = "service.UpdateAvailability"

	window, err := s.store.GetWindow(ctx, windowID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := requirePracticeOwner(ctx, window.PracticeID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req.PracticeID = window.PracticeID

	if err := validateWindow(req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if req.ChairID != nil {
		chair, err := s.store.GetChair(ctx, *req.ChairID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if chair.PracticeID != window.PracticeID {
			return nil, fmt.Errorf("%s: chair belongs to another practice: %w", op, response.ErrValidation)
		}
	}

	overlap, err := s.store.WindowOverlapExists(ctx, window.PracticeID, req.ChairID, req.Weekday, req.StartTime, req.EndTime, windowID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if overlap {
		return nil, fmt.Errorf("%s: %w", op, response.ErrConflict)
	}

	window.ChairID = req.ChairID
	window.Weekday = req.Weekday
	window.StartTime = req.StartTime
	window.EndTime = req.EndTime
	window.SlotMinutes = req.SlotMinutes
	window.Capacity = req.Capacity
	window.Active = req.Active

	if err := s.store.UpdateWindow(ctx, window); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Reconcile the materialized horizon: unbooked future slots follow the
	// new shape, booked slots stay untouched.
	if err := s.reconcileWindow(ctx, window); err != nil {
		s.log.ErrorContext(ctx, "slot reconciliation after update failed",
			slog.String("window_id", window.ID), slog.String("error", err.Error()))
	}

	return windowToResponse(window), nil
}

func (s *Service) DeleteAvailability(ctx context.Context, windowID string) error {
	const op = "service.DeleteAvailability"

	window, err := s.store.GetWindow(ctx, windowID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := requirePracticeOwner(ctx, window.PracticeID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	booked, err := s.store.CountBookedFutureSlots(ctx, windowID, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if booked > 0 {
		return fmt.Errorf("%s: window has booked future slots: %w", op, response.ErrConflict)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := s.store.DeleteUnbookedSlots(ctx, tx, windowID, s.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Same transaction as the slot delete: the cascade from the window
	// touches rows this transaction already locked.
	if err := s.store.DeleteWindowTx(ctx, tx, windowID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func (s *Service) GetAvailability(ctx context.Context, windowID string) (*api.AvailabilityResponse, error) {
	const op = "service.GetAvailability"

	window, err := s.store.GetWindow(ctx, windowID)
	if err != nil {
		if errors.Is(err, response.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return windowToResponse(window), nil
}

func (s *Service) ListAvailability(ctx context.Context, practiceID string) ([]*api.AvailabilityResponse, error) {
	const op = "service.ListAvailability"

	windows, err := s.store.ListWindows(ctx, practiceID, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]*api.AvailabilityResponse, 0, len(windows))
	for i := range windows {
		result = append(result, windowToResponse(&windows[i]))
	}

	return result, nil
}

func windowToResponse(w *models.AvailabilityWindow) *api.AvailabilityResponse {
	return &api.AvailabilityResponse{
		ID:          w.ID,
		PracticeID:  w.PracticeID,
		ChairID:     w.ChairID,
		Weekday:     w.Weekday,
		StartTime:   w.StartTime,
		EndTime:     w.EndTime,
		SlotMinutes: w.SlotMinutes,
		Capacity:    w.Capacity,
		Active:      w.Active,
	}
}
