package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prenota-service/internal/models"
	"prenota-service/pkg/response"

	"github.com/lib/pq"
)

// zeroUUID stands in for a NULL chair in the slot natural key, so one
// practice-wide slot and per-chair slots can share a unique index.
const zeroUUID = "00000000-0000-0000-0000-000000000000"

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// #### practices / chairs ####

func (s *Storage) GetPractice(ctx context.Context, practiceID string) (*models.Practice, error) {
	const op = "storage.postgres.GetPractice"

	var p models.Practice

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, address, email FROM practices WHERE id=$1`, practiceID).
		Scan(&p.ID, &p.Name, &p.Address, &p.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

func (s *Storage) GetChair(ctx context.Context, chairID string) (*models.Chair, error) {
	const op = "storage.postgres.GetChair"

	var c models.Chair

	err := s.db.QueryRowContext(ctx,
		`SELECT id, practice_id, name FROM chairs WHERE id=$1`, chairID).
		Scan(&c.ID, &c.PracticeID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &c, nil
}

func (s *Storage) ListChairs(ctx context.Context, practiceID string) ([]models.Chair, error) {
	const op = "storage.postgres.ListChairs"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, practice_id, name FROM chairs WHERE practice_id=$1 ORDER BY name`, practiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var chairs []models.Chair

	for rows.Next() {
		var c models.Chair
		if err := rows.Scan(&c.ID, &c.PracticeID, &c.Name); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		chairs = append(chairs, c)
	}

	return chairs, nil
}

// #### availability windows ####

func (s *Storage) InsertWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	const op = "storage.postgres.InsertWindow"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO availability_windows
		(id, practice_id, chair_id, weekday, start_time, end_time, slot_minutes, capacity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.PracticeID, w.ChairID, w.Weekday,
		w.StartTime, w.EndTime, w.SlotMinutes, w.Capacity, w.Active,
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		if ok && sqlErr.Code == "23503" {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	const op = "storage.postgres.UpdateWindow"

	res, err := s.db.ExecContext(ctx,
		`UPDATE availability_windows
		SET chair_id=$1, weekday=$2, start_time=$3, end_time=$4,
			slot_minutes=$5, capacity=$6, active=$7, updated_at=now()
		WHERE id=$8`,
		w.ChairID, w.Weekday, w.StartTime, w.EndTime,
		w.SlotMinutes, w.Capacity, w.Active, w.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// DeleteWindowTx removes the window on the caller's transaction so the
// cascaded slot delete shares the locks already taken there.
func (s *Storage) DeleteWindowTx(ctx context.Context, tx *sql.Tx, windowID string) error {
	const op = "storage.postgres.DeleteWindowTx"

	res, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE id=$1`, windowID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) GetWindow(ctx context.Context, windowID string) (*models.AvailabilityWindow, error) {
	const op = "storage.postgres.GetWindow"

	var w models.AvailabilityWindow

	err := s.db.QueryRowContext(ctx,
		`SELECT id, practice_id, chair_id, weekday, start_time, end_time, slot_minutes, capacity, active
		FROM availability_windows WHERE id=$1`, windowID).
		Scan(&w.ID, &w.PracticeID, &w.ChairID, &w.Weekday,
			&w.StartTime, &w.EndTime, &w.SlotMinutes, &w.Capacity, &w.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &w, nil
}

func (s *Storage) ListWindows(ctx context.Context, practiceID string, onlyActive bool) ([]models.AvailabilityWindow, error) {
	const op = "storage.postgres.ListWindows"

	query := `SELECT id, practice_id, chair_id, weekday, start_time, end_time, slot_minutes, capacity, active
		FROM availability_windows WHERE practice_id=$1`
	if onlyActive {
		query += ` AND active=TRUE`
	}
	query += ` ORDER BY weekday, start_time`

	rows, err := s.db.QueryContext(ctx, query, practiceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var windows []models.AvailabilityWindow

	for rows.Next() {
		var w models.AvailabilityWindow
		err := rows.Scan(&w.ID, &w.PracticeID, &w.ChairID, &w.Weekday,
			&w.StartTime, &w.EndTime, &w.SlotMinutes, &w.Capacity, &w.Active)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		windows = append(windows, w)
	}

	return windows, nil
}

// WindowOverlapExists reports whether another window of the same practice,
// chair scope and weekday overlaps [start, end). Half-open comparison:
// back-to-back windows do not overlap. excludeID is compared as text; an
// empty string means no exclusion and must not reach the uuid parser.
func (s *Storage) WindowOverlapExists(ctx context.Context, practiceID string, chairID *string, weekday int, start, end string, excludeID string) (bool, error) {
	const op = "storage.postgres.WindowOverlapExists"

	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM availability_windows
			WHERE practice_id=$1
			AND COALESCE(chair_id::text, $2) = COALESCE($3, $2)
			AND weekday=$4
			AND start_time < $6
			AND end_time > $5
			AND ($7 = '' OR id::text <> $7)
		)`,
		practiceID, zeroUUID, chairID, weekday, start, end, excludeID).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// #### slots ####

// UpsertSlots writes materialized slots. The natural key is
// (practice_id, chair_id-or-zero, start_time, end_time); on conflict only
// structural fields are refreshed and booked rows are left untouched.
func (s *Storage) UpsertSlots(ctx context.Context, tx *sql.Tx, slots []models.Slot) (int, error) {
	const op = "storage.postgres.UpsertSlots"

	var total int64

	for _, slot := range slots {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO slots
			(id, window_id, practice_id, chair_id, start_time, end_time, capacity, booked)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
			ON CONFLICT (practice_id, COALESCE(chair_id, '`+zeroUUID+`'::uuid), start_time, end_time)
			DO UPDATE
			SET window_id = EXCLUDED.window_id,
				capacity = EXCLUDED.capacity,
				updated_at = now()
			WHERE slots.booked = 0`,
			slot.ID, slot.WindowID, slot.PracticeID, slot.ChairID,
			slot.StartTime, slot.EndTime, slot.Capacity,
		)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		total += n
	}

	return int(total), nil
}

// DeleteUnbookedSlots removes future slots of a window nobody has booked.
// Booked slots survive so existing appointments keep their anchor.
func (s *Storage) DeleteUnbookedSlots(ctx context.Context, tx *sql.Tx, windowID string, from time.Time) (int, error) {
	const op = "storage.postgres.DeleteUnbookedSlots"

	res, err := tx.ExecContext(ctx,
		`DELETE FROM slots WHERE window_id=$1 AND start_time >= $2 AND booked = 0`,
		windowID, from,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(n), nil
}

func (s *Storage) CountBookedFutureSlots(ctx context.Context, windowID string, from time.Time) (int, error) {
	const op = "storage.postgres.CountBookedFutureSlots"

	var count int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slots WHERE window_id=$1 AND start_time >= $2 AND booked > 0`,
		windowID, from).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (s *Storage) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	const op = "storage.postgres.GetSlot"

	var slot models.Slot

	err := s.db.QueryRowContext(ctx,
		`SELECT id, window_id, practice_id, chair_id, start_time, end_time, capacity, booked
		FROM slots WHERE id=$1`, slotID).
		Scan(&slot.ID, &slot.WindowID, &slot.PracticeID, &slot.ChairID,
			&slot.StartTime, &slot.EndTime, &slot.Capacity, &slot.Booked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &slot, nil
}

// GetSlotForUpdateTx locks the slot row for the life of the transaction.
func (s *Storage) GetSlotForUpdateTx(ctx context.Context, tx *sql.Tx, slotID string) (*models.Slot, error) {
	const op = "storage.postgres.GetSlotForUpdateTx"

	var slot models.Slot

	err := tx.QueryRowContext(ctx,
		`SELECT id, window_id, practice_id, chair_id, start_time, end_time, capacity, booked
		FROM slots WHERE id=$1 FOR UPDATE`, slotID).
		Scan(&slot.ID, &slot.WindowID, &slot.PracticeID, &slot.ChairID,
			&slot.StartTime, &slot.EndTime, &slot.Capacity, &slot.Booked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &slot, nil
}

func (s *Storage) IncrementSlotBookedTx(ctx context.Context, tx *sql.Tx, slotID string) error {
	const op = "storage.postgres.IncrementSlotBookedTx"

	res, err := tx.ExecContext(ctx,
		`UPDATE slots SET booked = booked + 1, updated_at = now() WHERE id=$1 AND booked < capacity`, slotID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrCapacity)
	}

	return nil
}

func (s *Storage) DecrementSlotBookedTx(ctx context.Context, tx *sql.Tx, slotID string) error {
	const op = "storage.postgres.DecrementSlotBookedTx"

	_, err := tx.ExecContext(ctx,
		`UPDATE slots SET booked = booked - 1, updated_at = now() WHERE id=$1 AND booked > 0`, slotID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) ListSlots(ctx context.Context, practiceID string, from, to time.Time) ([]models.Slot, error) {
	const op = "storage.postgres.ListSlots"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, window_id, practice_id, chair_id, start_time, end_time, capacity, booked
		FROM slots
		WHERE practice_id=$1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`,
		practiceID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var slots []models.Slot

	for rows.Next() {
		var slot models.Slot
		err := rows.Scan(&slot.ID, &slot.WindowID, &slot.PracticeID, &slot.ChairID,
			&slot.StartTime, &slot.EndTime, &slot.Capacity, &slot.Booked)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		slots = append(slots, slot)
	}

	return slots, nil
}

// #### proposals ####

func (s *Storage) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	const op = "storage.postgres.GetProposal"

	var p models.Proposal

	err := s.db.QueryRowContext(ctx,
		`SELECT id, quote_id, practice_id, patient_name, patient_email, patient_phone, status
		FROM proposals WHERE id=$1`, proposalID).
		Scan(&p.ID, &p.QuoteID, &p.PracticeID,
			&p.PatientName, &p.PatientEmail, &p.PatientPhone, &p.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &p, nil
}

func (s *Storage) UpdateProposalStatusTx(ctx context.Context, tx *sql.Tx, proposalID string, status models.ProposalStatus) error {
	const op = "storage.postgres.UpdateProposalStatusTx"

	_, err := tx.ExecContext(ctx,
		`UPDATE proposals SET status=$1, updated_at=now() WHERE id=$2`, string(status), proposalID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SearchProposals finds bookable proposals by patient email or phone
// fragment. Only call_requested proposals are candidates for booking.
func (s *Storage) SearchProposals(ctx context.Context, email, phone string) ([]models.Proposal, error) {
	const op = "storage.postgres.SearchProposals"

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, quote_id, practice_id, patient_name, patient_email, patient_phone, status
		FROM proposals
		WHERE status='call_requested'
		AND (($1 != '' AND patient_email ILIKE '%' || $1 || '%')
			OR ($2 != '' AND patient_phone ILIKE '%' || $2 || '%'))
		ORDER BY id`,
		email, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var proposals []models.Proposal

	for rows.Next() {
		var p models.Proposal
		err := rows.Scan(&p.ID, &p.QuoteID, &p.PracticeID,
			&p.PatientName, &p.PatientEmail, &p.PatientPhone, &p.Status)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		proposals = append(proposals, p)
	}

	return proposals, nil
}

// #### appointments ####

func (s *Storage) InsertAppointmentTx(ctx context.Context, tx *sql.Tx, a *models.Appointment) error {
	const op = "storage.postgres.InsertAppointmentTx"

	_, err := tx.ExecContext(ctx,
		`INSERT INTO appointments
		(id, proposal_id, chair_id, slot_id, start_time, end_time, status, note, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)`,
		a.ID, a.ProposalID, a.ChairID, a.SlotID,
		a.StartTime, a.EndTime, string(a.Status), a.Note,
	)
	if err != nil {
		sqlErr, ok := err.(*pq.Error)
		if ok && sqlErr.Code == "23505" {
			return fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		if ok && sqlErr.Code == "23503" {
			return fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) GetAppointment(ctx context.Context, appointmentID string) (*models.Appointment, error) {
	const op = "storage.postgres.GetAppointment"

	var a models.Appointment

	err := s.db.QueryRowContext(ctx,
		`SELECT id, proposal_id, chair_id, slot_id, start_time, end_time, status, note, reminder_sent
		FROM appointments WHERE id=$1`, appointmentID).
		Scan(&a.ID, &a.ProposalID, &a.ChairID, &a.SlotID,
			&a.StartTime, &a.EndTime, &a.Status, &a.Note, &a.ReminderSent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &a, nil
}

// GetAppointmentForUpdateTx locks the appointment row so concurrent status
// transitions serialize.
func (s *Storage) GetAppointmentForUpdateTx(ctx context.Context, tx *sql.Tx, appointmentID string) (*models.Appointment, error) {
	const op = "storage.postgres.GetAppointmentForUpdateTx"

	var a models.Appointment

	err := tx.QueryRowContext(ctx,
		`SELECT id, proposal_id, chair_id, slot_id, start_time, end_time, status, note, reminder_sent
		FROM appointments WHERE id=$1 FOR UPDATE`, appointmentID).
		Scan(&a.ID, &a.ProposalID, &a.ChairID, &a.SlotID,
			&a.StartTime, &a.EndTime, &a.Status, &a.Note, &a.ReminderSent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &a, nil
}

func (s *Storage) UpdateAppointmentStatusTx(ctx context.Context, tx *sql.Tx, appointmentID string, status models.AppointmentStatus, note *string) error {
	const op = "storage.postgres.UpdateAppointmentStatusTx"

	_, err := tx.ExecContext(ctx,
		`UPDATE appointments SET status=$1, note=COALESCE($2, note), updated_at=now() WHERE id=$3`,
		string(status), note, appointmentID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ActiveFutureAppointmentExistsTx enforces one live booking per proposal.
func (s *Storage) ActiveFutureAppointmentExistsTx(ctx context.Context, tx *sql.Tx, proposalID string, now time.Time) (bool, error) {
	const op = "storage.postgres.ActiveFutureAppointmentExistsTx"

	var exists bool

	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE proposal_id=$1
			AND status IN ('new', 'viewed')
			AND start_time >= $2
		)`,
		proposalID, now).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// ChairOverlapExistsTx reports whether an active appointment on the chair
// overlaps [start, end). Half-open: touching edges are allowed.
func (s *Storage) ChairOverlapExistsTx(ctx context.Context, tx *sql.Tx, chairID string, start, end time.Time) (bool, error) {
	const op = "storage.postgres.ChairOverlapExistsTx"

	var exists bool

	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE chair_id=$1
			AND status IN ('new', 'viewed')
			AND start_time < $3
			AND end_time > $2
		)`,
		chairID, start, end).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// ListAppointments returns a practice's appointments in [from, to) with
// the patient name joined in. Appointments whose proposal link was severed
// show an empty name.
func (s *Storage) ListAppointments(ctx context.Context, practiceID string, from, to time.Time) ([]models.AppointmentDetail, error) {
	const op = "storage.postgres.ListAppointments"

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.proposal_id, a.chair_id, a.slot_id,
			a.start_time, a.end_time, a.status, a.note, a.reminder_sent,
			COALESCE(p.patient_name, '')
		FROM appointments a
		LEFT JOIN proposals p ON p.id = a.proposal_id
		WHERE (p.practice_id = $1 OR a.chair_id IN (SELECT id FROM chairs WHERE practice_id=$1))
		AND a.start_time >= $2 AND a.start_time < $3
		ORDER BY a.start_time`,
		practiceID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var appointments []models.AppointmentDetail

	for rows.Next() {
		var a models.AppointmentDetail
		err := rows.Scan(&a.ID, &a.ProposalID, &a.ChairID, &a.SlotID,
			&a.StartTime, &a.EndTime, &a.Status, &a.Note, &a.ReminderSent,
			&a.PatientName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		appointments = append(appointments, a)
	}

	return appointments, nil
}

// #### reminders ####

// ListDueReminders returns active appointments starting within
// [dayStart, dayEnd) that have not been reminded yet. Patient email comes
// through the proposal link and is nil when the link was severed.
func (s *Storage) ListDueReminders(ctx context.Context, dayStart, dayEnd time.Time) ([]models.ReminderItem, error) {
	const op = "storage.postgres.ListDueReminders"

	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.start_time,
			COALESCE(p.patient_name, ''), p.patient_email,
			COALESCE(pr.name, ''), COALESCE(pr.address, ''),
			c.name
		FROM appointments a
		LEFT JOIN proposals p ON p.id = a.proposal_id
		LEFT JOIN practices pr ON pr.id = p.practice_id
		LEFT JOIN chairs c ON c.id = a.chair_id
		WHERE a.status IN ('new', 'viewed')
		AND a.reminder_sent = FALSE
		AND a.start_time >= $1 AND a.start_time < $2
		ORDER BY a.start_time`,
		dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	defer rows.Close()

	var items []models.ReminderItem

	for rows.Next() {
		var item models.ReminderItem
		err := rows.Scan(&item.AppointmentID, &item.StartTime,
			&item.PatientName, &item.PatientEmail,
			&item.PracticeName, &item.PracticeAddress,
			&item.ChairName)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		items = append(items, item)
	}

	return items, nil
}

func (s *Storage) MarkReminderSent(ctx context.Context, appointmentID string) error {
	const op = "storage.postgres.MarkReminderSent"

	_, err := s.db.ExecContext(ctx,
		`UPDATE appointments SET reminder_sent = TRUE, updated_at = now() WHERE id=$1`, appointmentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
