package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"prenota-service/internal/config"
	"prenota-service/internal/metrics"
	"prenota-service/internal/models"
	"prenota-service/internal/notify"
	"prenota-service/pkg/response"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps everything in maps and borrows sqlmock transactions so
// the commit and rollback plumbing stays real.
type fakeStore struct {
	db *sql.DB

	practices    map[string]*models.Practice
	chairs       map[string]*models.Chair
	windows      map[string]*models.AvailabilityWindow
	slots        map[string]*models.Slot
	proposals    map[string]*models.Proposal
	appointments map[string]*models.Appointment

	reminders       []models.ReminderItem
	remindersMarked []string

	// staleActiveRead makes the existence check miss a racing booking, the
	// way a concurrent transaction would before either commits.
	staleActiveRead bool
}

func newFakeStore(t *testing.T) (*fakeStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &fakeStore{
		db:           db,
		practices:    make(map[string]*models.Practice),
		chairs:       make(map[string]*models.Chair),
		windows:      make(map[string]*models.AvailabilityWindow),
		slots:        make(map[string]*models.Slot),
		proposals:    make(map[string]*models.Proposal),
		appointments: make(map[string]*models.Appointment),
	}, mock
}

func (f *fakeStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return f.db.BeginTx(ctx, nil)
}

func (f *fakeStore) GetPractice(_ context.Context, id string) (*models.Practice, error) {
	if p, ok := f.practices[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) GetChair(_ context.Context, id string) (*models.Chair, error) {
	if c, ok := f.chairs[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListChairs(_ context.Context, practiceID string) ([]models.Chair, error) {
	var chairs []models.Chair
	for _, c := range f.chairs {
		if c.PracticeID == practiceID {
			chairs = append(chairs, *c)
		}
	}
	return chairs, nil
}

func (f *fakeStore) InsertWindow(_ context.Context, w *models.AvailabilityWindow) error {
	cp := *w
	f.windows[w.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateWindow(_ context.Context, w *models.AvailabilityWindow) error {
	if _, ok := f.windows[w.ID]; !ok {
		return response.ErrNotFound
	}
	cp := *w
	f.windows[w.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteWindowTx(_ context.Context, _ *sql.Tx, id string) error {
	if _, ok := f.windows[id]; !ok {
		return response.ErrNotFound
	}
	delete(f.windows, id)
	return nil
}

func (f *fakeStore) GetWindow(_ context.Context, id string) (*models.AvailabilityWindow, error) {
	if w, ok := f.windows[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) ListWindows(_ context.Context, practiceID string, onlyActive bool) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	for _, w := range f.windows {
		if w.PracticeID != practiceID {
			continue
		}
		if onlyActive && !w.Active {
			continue
		}
		windows = append(windows, *w)
	}
	return windows, nil
}

func (f *fakeStore) WindowOverlapExists(_ context.Context, practiceID string, chairID *string, weekday int, start, end string, excludeID string) (bool, error) {
	key := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	for _, w := range f.windows {
		if w.ID == excludeID || w.PracticeID != practiceID || w.Weekday != weekday {
			continue
		}
		if key(w.ChairID) != key(chairID) {
			continue
		}
		if w.StartTime < end && w.EndTime > start {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpsertSlots(_ context.Context, _ *sql.Tx, slots []models.Slot) (int, error) {
	for i := range slots {
		cp := slots[i]
		f.slots[cp.ID] = &cp
	}
	return len(slots), nil
}

func (f *fakeStore) DeleteUnbookedSlots(_ context.Context, _ *sql.Tx, windowID string, from time.Time) (int, error) {
	var n int
	for id, s := range f.slots {
		if s.WindowID == windowID && !s.StartTime.Before(from) && s.Booked == 0 {
			delete(f.slots, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountBookedFutureSlots(_ context.Context, windowID string, from time.Time) (int, error) {
	var n int
	for _, s := range f.slots {
		if s.WindowID == windowID && !s.StartTime.Before(from) && s.Booked > 0 {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetSlot(_ context.Context, id string) (*models.Slot, error) {
	if s, ok := f.slots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) GetSlotForUpdateTx(_ context.Context, _ *sql.Tx, id string) (*models.Slot, error) {
	if s, ok := f.slots[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) IncrementSlotBookedTx(_ context.Context, _ *sql.Tx, id string) error {
	s, ok := f.slots[id]
	if !ok {
		return response.ErrNotFound
	}
	if s.Booked >= s.Capacity {
		return response.ErrCapacity
	}
	s.Booked++
	return nil
}

func (f *fakeStore) DecrementSlotBookedTx(_ context.Context, _ *sql.Tx, id string) error {
	if s, ok := f.slots[id]; ok && s.Booked > 0 {
		s.Booked--
	}
	return nil
}

func (f *fakeStore) ListSlots(_ context.Context, practiceID string, from, to time.Time) ([]models.Slot, error) {
	var slots []models.Slot
	for _, s := range f.slots {
		if s.PracticeID != practiceID {
			continue
		}
		if s.StartTime.Before(from) || !s.StartTime.Before(to) {
			continue
		}
		slots = append(slots, *s)
	}
	return slots, nil
}

func (f *fakeStore) GetProposal(_ context.Context, id string) (*models.Proposal, error) {
	if p, ok := f.proposals[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) UpdateProposalStatusTx(_ context.Context, _ *sql.Tx, id string, status models.ProposalStatus) error {
	if p, ok := f.proposals[id]; ok {
		p.Status = status
	}
	return nil
}

func (f *fakeStore) SearchProposals(_ context.Context, email, phone string) ([]models.Proposal, error) {
	match := func(field, frag string) bool {
		return frag != "" && strings.Contains(strings.ToLower(field), strings.ToLower(frag))
	}
	var proposals []models.Proposal
	for _, p := range f.proposals {
		if p.Status != models.ProposalCallRequested {
			continue
		}
		if match(p.PatientEmail, email) || match(p.PatientPhone, phone) {
			proposals = append(proposals, *p)
		}
	}
	return proposals, nil
}

func (f *fakeStore) InsertAppointmentTx(_ context.Context, _ *sql.Tx, a *models.Appointment) error {
	// Mirrors the partial unique index on active appointments per proposal.
	if a.ProposalID != nil {
		for _, existing := range f.appointments {
			if existing.ProposalID != nil && *existing.ProposalID == *a.ProposalID && existing.Status.IsActive() {
				return response.ErrConflict
			}
		}
	}
	cp := *a
	f.appointments[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	if a, ok := f.appointments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) GetAppointmentForUpdateTx(_ context.Context, _ *sql.Tx, id string) (*models.Appointment, error) {
	if a, ok := f.appointments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, response.ErrNotFound
}

func (f *fakeStore) UpdateAppointmentStatusTx(_ context.Context, _ *sql.Tx, id string, status models.AppointmentStatus, note *string) error {
	a, ok := f.appointments[id]
	if !ok {
		return response.ErrNotFound
	}
	a.Status = status
	if note != nil {
		a.Note = *note
	}
	return nil
}

func (f *fakeStore) ActiveFutureAppointmentExistsTx(_ context.Context, _ *sql.Tx, proposalID string, now time.Time) (bool, error) {
	if f.staleActiveRead {
		return false, nil
	}
	for _, a := range f.appointments {
		if a.ProposalID != nil && *a.ProposalID == proposalID && a.Status.IsActive() && !a.StartTime.Before(now) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ChairOverlapExistsTx(_ context.Context, _ *sql.Tx, chairID string, start, end time.Time) (bool, error) {
	for _, a := range f.appointments {
		if a.ChairID == nil || *a.ChairID != chairID || !a.Status.IsActive() {
			continue
		}
		if a.StartTime.Before(end) && a.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListAppointments(_ context.Context, practiceID string, from, to time.Time) ([]models.AppointmentDetail, error) {
	var result []models.AppointmentDetail
	for _, a := range f.appointments {
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		detail := models.AppointmentDetail{Appointment: *a}
		if a.ProposalID != nil {
			if p, ok := f.proposals[*a.ProposalID]; ok {
				if p.PracticeID != practiceID {
					continue
				}
				detail.PatientName = p.PatientName
			}
		}
		result = append(result, detail)
	}
	return result, nil
}

func (f *fakeStore) ListDueReminders(_ context.Context, dayStart, dayEnd time.Time) ([]models.ReminderItem, error) {
	var due []models.ReminderItem
	for _, item := range f.reminders {
		if !item.StartTime.Before(dayStart) && item.StartTime.Before(dayEnd) {
			due = append(due, item)
		}
	}
	return due, nil
}

func (f *fakeStore) MarkReminderSent(_ context.Context, id string) error {
	f.remindersMarked = append(f.remindersMarked, id)
	return nil
}

type fakeLocker struct {
	ok       bool
	err      error
	unlocked []string
}

func (l *fakeLocker) Lock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return l.ok, l.err
}

func (l *fakeLocker) Unlock(_ context.Context, key string) error {
	l.unlocked = append(l.unlocked, key)
	return nil
}

type stubDispatcher struct {
	msgs    []notify.Message
	err     error
	failFor string
}

func (d *stubDispatcher) Dispatch(_ context.Context, msg notify.Message) error {
	if d.err != nil {
		return d.err
	}
	if d.failFor != "" && msg.Recipient == d.failFor {
		return errors.New("gateway unavailable")
	}
	d.msgs = append(d.msgs, msg)
	return nil
}

func testConfig() config.Booking {
	return config.Booking{
		Mode:             ModeSlot,
		HorizonDays:      90,
		LockTTL:          10 * time.Second,
		ReminderLeadDays: 2,
	}
}

func newTestService(store Store, locker *fakeLocker, dispatcher *stubDispatcher, cfg config.Booking) *Service {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewBookingMetrics(prometheus.NewRegistry())

	return NewService(log, store, locker, dispatcher, m, cfg)
}
