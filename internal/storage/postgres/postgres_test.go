package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"prenota-service/internal/models"
	"prenota-service/pkg/response"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Storage{db: db}, mock
}

func beginTx(t *testing.T, s *Storage, mock sqlmock.Sqlmock) *sql.Tx {
	t.Helper()

	mock.ExpectBegin()
	tx, err := s.BeginTx(context.Background())
	require.NoError(t, err)

	return tx
}

func TestGetSlotForUpdateTx(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT (.+) FROM slots WHERE id=\$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "window_id", "practice_id", "chair_id", "start_time", "end_time", "capacity", "booked",
		}).AddRow("s1", "w1", "p1", nil, start, start.Add(30*time.Minute), 2, 1))

	slot, err := s.GetSlotForUpdateTx(context.Background(), tx, "s1")
	require.NoError(t, err)

	assert.Equal(t, "s1", slot.ID)
	assert.Nil(t, slot.ChairID)
	assert.Equal(t, 1, slot.Booked)
	assert.Equal(t, 1, slot.Free())
}

func TestGetSlotForUpdateTx_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	mock.ExpectQuery(`SELECT (.+) FROM slots WHERE id=\$1 FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetSlotForUpdateTx(context.Background(), tx, "missing")
	require.ErrorIs(t, err, response.ErrNotFound)
}

func TestIncrementSlotBookedTx_Full(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	mock.ExpectExec(`UPDATE slots SET booked = booked \+ 1, updated_at = now\(\) WHERE id=\$1 AND booked < capacity`).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.IncrementSlotBookedTx(context.Background(), tx, "s1")
	require.ErrorIs(t, err, response.ErrCapacity)
}

func TestIncrementSlotBookedTx(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	mock.ExpectExec(`UPDATE slots SET booked = booked \+ 1`).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.IncrementSlotBookedTx(context.Background(), tx, "s1"))
}

func TestInsertAppointmentTx_ConstraintErrors(t *testing.T) {
	tests := []struct {
		name    string
		pqCode  pq.ErrorCode
		wantErr error
	}{
		{name: "duplicate key", pqCode: "23505", wantErr: response.ErrConflict},
		{name: "missing parent", pqCode: "23503", wantErr: response.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			tx := beginTx(t, s, mock)

			mock.ExpectExec(`INSERT INTO appointments`).
				WillReturnError(&pq.Error{Code: tt.pqCode})

			a := &models.Appointment{
				ID:        "a1",
				StartTime: time.Now(),
				EndTime:   time.Now().Add(30 * time.Minute),
				Status:    models.AppointmentNew,
			}

			err := s.InsertAppointmentTx(context.Background(), tx, a)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWindowOverlapExists(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	chair := "c1"
	exists, err := s.WindowOverlapExists(context.Background(), "p1", &chair, 1, "09:00", "10:00", "")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWindowOverlapExists_EmptyExcludeID(t *testing.T) {
	s, mock := newMockStorage(t)

	// The exclusion is compared as text behind an empty-string guard, so a
	// create call with no window to exclude never feeds '' to the uuid
	// parser.
	mock.ExpectQuery(`AND \(\$7 = '' OR id::text <> \$7\)`).
		WithArgs("p1", sqlmock.AnyArg(), nil, 1, "09:00", "10:00", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := s.WindowOverlapExists(context.Background(), "p1", nil, 1, "09:00", "10:00", "")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWindowTx(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	mock.ExpectExec(`DELETE FROM availability_windows WHERE id=\$1`).
		WithArgs("w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.DeleteWindowTx(context.Background(), tx, "w1"))
}

func TestDeleteWindowTx_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	mock.ExpectExec(`DELETE FROM availability_windows WHERE id=\$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteWindowTx(context.Background(), tx, "missing")
	require.ErrorIs(t, err, response.ErrNotFound)
}

func TestSearchProposals_FragmentAndStatus(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`WHERE status='call_requested'\s+AND \(\(\$1 != '' AND patient_email ILIKE '%' \|\| \$1 \|\| '%'\)`).
		WithArgs("mari", "").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "quote_id", "practice_id", "patient_name", "patient_email", "patient_phone", "status",
		}).AddRow("pr1", "q1", "p1", "Mario Rossi", "mario@example.com", "", "call_requested"))

	got, err := s.SearchProposals(context.Background(), "mari", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pr1", got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueReminders_SeveredLink(t *testing.T) {
	s, mock := newMockStorage(t)

	start := time.Date(2026, 9, 9, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT a\.id, a\.start_time`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "start_time", "patient_name", "patient_email", "name", "address", "chair_name",
		}).
			AddRow("a1", start, "Mario Rossi", "mario@example.com", "Studio Uno", "Via Roma 1", "Chair 1").
			AddRow("a2", start.Add(time.Hour), "", nil, "", "", nil))

	items, err := s.ListDueReminders(context.Background(), start.Add(-9*time.Hour), start.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "mario@example.com", *items[0].PatientEmail)
	assert.Nil(t, items[1].PatientEmail)
	assert.Nil(t, items[1].ChairName)
}

func TestGetAppointment_NotFound(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectQuery(`SELECT (.+) FROM appointments WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetAppointment(context.Background(), "missing")
	require.ErrorIs(t, err, response.ErrNotFound)
}

func TestUpsertSlots_CountsAffectedRows(t *testing.T) {
	s, mock := newMockStorage(t)
	tx := beginTx(t, s, mock)

	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)

	slots := []models.Slot{
		{ID: "s1", WindowID: "w1", PracticeID: "p1", StartTime: start, EndTime: start.Add(30 * time.Minute), Capacity: 2},
		{ID: "s2", WindowID: "w1", PracticeID: "p1", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(time.Hour), Capacity: 2},
	}

	mock.ExpectExec(`INSERT INTO slots`).WillReturnResult(sqlmock.NewResult(0, 1))
	// Second slot already exists with bookings, the guarded upsert skips it.
	mock.ExpectExec(`INSERT INTO slots`).WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := s.UpsertSlots(context.Background(), tx, slots)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
