package service

import (
	"context"
	"testing"
	"time"

	"prenota-service/api"
	"prenota-service/internal/actor"
	"prenota-service/internal/models"
	"prenota-service/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 9, 7, 8, 0, 0, 0, time.UTC) // Monday

func strPtr(s string) *string { return &s }

func salesCtx() context.Context {
	return actor.WithActor(context.Background(), models.Actor{ID: "sales-1", Role: models.RoleSales})
}

func practiceCtx(id string) context.Context {
	return actor.WithActor(context.Background(), models.Actor{ID: id, Role: models.RolePractice})
}

// seedBooking loads a practice with one chair, one proposal and one open
// slot starting the day after base.
func seedBooking(store *fakeStore) {
	store.practices["p1"] = &models.Practice{ID: "p1", Name: "Studio Uno", Email: "p1@example.com"}
	store.chairs["c1"] = &models.Chair{ID: "c1", PracticeID: "p1", Name: "Chair 1"}
	store.proposals["pr1"] = &models.Proposal{
		ID: "pr1", QuoteID: "q1", PracticeID: "p1",
		PatientName: "Mario Rossi", PatientEmail: "mario@example.com",
		Status: models.ProposalCallRequested,
	}
	store.slots["s1"] = &models.Slot{
		ID: "s1", WindowID: "w1", PracticeID: "p1", ChairID: strPtr("c1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Capacity: 2, Booked: 0,
	}
}

func TestCreateAppointment_SlotMode(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)

	locker := &fakeLocker{ok: true}
	dispatcher := &stubDispatcher{}
	svc := newTestService(store, locker, dispatcher, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
		Note:       "first visit",
	})
	require.NoError(t, err)

	assert.Equal(t, string(models.AppointmentNew), got.Status)
	assert.Equal(t, "s1", *got.SlotID)
	assert.Equal(t, 1, store.slots["s1"].Booked)
	assert.Equal(t, models.ProposalAppointmentSet, store.proposals["pr1"].Status)

	// Practice and patient both get a confirmation.
	require.Len(t, dispatcher.msgs, 2)
	assert.Equal(t, []string{"slot:s1"}, locker.unlocked)
}

func TestCreateAppointment_SlotFull(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.slots["s1"].Booked = 2

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.ErrorIs(t, err, response.ErrCapacity)
	assert.Equal(t, 2, store.slots["s1"].Booked)
}

func TestCreateAppointment_SecondBookingConflicts(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.appointments["a0"] = &models.Appointment{
		ID: "a0", ProposalID: strPtr("pr1"), SlotID: strPtr("s1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentNew,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.ErrorIs(t, err, response.ErrConflict)
}

func TestCreateAppointment_RacingBookingHitsInsertGuard(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.slots["s2"] = &models.Slot{
		ID: "s2", WindowID: "w1", PracticeID: "p1", ChairID: strPtr("c1"),
		StartTime: base.AddDate(0, 0, 2), EndTime: base.AddDate(0, 0, 2).Add(30 * time.Minute),
		Capacity: 2, Booked: 0,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.NoError(t, err)

	// A second writer that read before the first committed sails past the
	// existence check; the unique index on active bookings stops it.
	store.staleActiveRead = true

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s2"),
	})
	require.ErrorIs(t, err, response.ErrConflict)

	var active int
	for _, a := range store.appointments {
		if a.ProposalID != nil && *a.ProposalID == "pr1" && a.Status.IsActive() {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestCreateAppointment_Locked(t *testing.T) {
	store, _ := newFakeStore(t)
	seedBooking(store)

	svc := newTestService(store, &fakeLocker{ok: false}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	_, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.ErrorIs(t, err, response.ErrLocked)
}

func TestCreateAppointment_SalesOnly(t *testing.T) {
	store, _ := newFakeStore(t)
	seedBooking(store)

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	_, err := svc.CreateAppointment(practiceCtx("p1"), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.ErrorIs(t, err, response.ErrNotAuthorized)
}

func TestCreateAppointment_RejectedProposal(t *testing.T) {
	store, _ := newFakeStore(t)
	seedBooking(store)
	store.proposals["pr1"].Status = models.ProposalRejected

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	_, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
		ProposalID: "pr1",
		SlotID:     strPtr("s1"),
	})
	require.ErrorIs(t, err, response.ErrState)
}

func TestCreateAppointment_RangeMode(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = ModeRange

	start := base.AddDate(0, 0, 1)
	end := start.Add(time.Hour)

	tests := []struct {
		name    string
		seed    func(store *fakeStore)
		wantErr error
	}{
		{
			name: "free chair books",
			seed: func(store *fakeStore) {},
		},
		{
			name: "overlapping active appointment conflicts",
			seed: func(store *fakeStore) {
				store.appointments["a0"] = &models.Appointment{
					ID: "a0", ChairID: strPtr("c1"),
					StartTime: start.Add(30 * time.Minute), EndTime: end.Add(30 * time.Minute),
					Status: models.AppointmentNew,
				}
			},
			wantErr: response.ErrConflict,
		},
		{
			name: "touching edges do not conflict",
			seed: func(store *fakeStore) {
				store.appointments["a0"] = &models.Appointment{
					ID: "a0", ChairID: strPtr("c1"),
					StartTime: end, EndTime: end.Add(time.Hour),
					Status: models.AppointmentNew,
				}
			},
		},
		{
			name: "cancelled appointment frees the range",
			seed: func(store *fakeStore) {
				store.appointments["a0"] = &models.Appointment{
					ID: "a0", ChairID: strPtr("c1"),
					StartTime: start, EndTime: end,
					Status: models.AppointmentCancelled,
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newFakeStore(t)
			seedBooking(store)
			tt.seed(store)

			svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, cfg)
			svc.now = func() time.Time { return base }

			mock.ExpectBegin()
			if tt.wantErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			got, err := svc.CreateAppointment(salesCtx(), &api.AppointmentRequest{
				ProposalID: "pr1",
				ChairID:    strPtr("c1"),
				StartTime:  start.Format(time.RFC3339),
				EndTime:    end.Format(time.RFC3339),
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Nil(t, got.SlotID)
			assert.Equal(t, "c1", *got.ChairID)
		})
	}
}

func TestUpdateAppointmentStatus_CancelFreesSlot(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.slots["s1"].Booked = 1
	store.proposals["pr1"].Status = models.ProposalAppointmentSet
	store.appointments["a1"] = &models.Appointment{
		ID: "a1", ProposalID: strPtr("pr1"), ChairID: strPtr("c1"), SlotID: strPtr("s1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentNew,
	}

	dispatcher := &stubDispatcher{}
	svc := newTestService(store, &fakeLocker{ok: true}, dispatcher, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := svc.UpdateAppointmentStatus(salesCtx(), "a1", &api.AppointmentStatusRequest{
		Status: string(models.AppointmentCancelled),
	})
	require.NoError(t, err)

	assert.Equal(t, string(models.AppointmentCancelled), got.Status)
	assert.Equal(t, 0, store.slots["s1"].Booked)
	assert.Equal(t, models.ProposalAnnulled, store.proposals["pr1"].Status)
	require.Len(t, dispatcher.msgs, 1)
	assert.Equal(t, "p1@example.com", dispatcher.msgs[0].Recipient)
}

func TestUpdateAppointmentStatus_IdempotentSameStatus(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.appointments["a1"] = &models.Appointment{
		ID: "a1", ProposalID: strPtr("pr1"), SlotID: strPtr("s1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentCancelled,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectRollback()

	got, err := svc.UpdateAppointmentStatus(salesCtx(), "a1", &api.AppointmentStatusRequest{
		Status: string(models.AppointmentCancelled),
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.AppointmentCancelled), got.Status)
}

func TestUpdateAppointmentStatus_TerminalAbsorbs(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.appointments["a1"] = &models.Appointment{
		ID: "a1", ProposalID: strPtr("pr1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentNoShow,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.UpdateAppointmentStatus(salesCtx(), "a1", &api.AppointmentStatusRequest{
		Status: string(models.AppointmentCancelled),
	})
	require.ErrorIs(t, err, response.ErrState)
}

func TestUpdateAppointmentStatus_RoleGates(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		from    models.AppointmentStatus
		to      models.AppointmentStatus
		wantErr error
	}{
		{name: "practice marks viewed", ctx: practiceCtx("p1"), from: models.AppointmentNew, to: models.AppointmentViewed},
		{name: "practice marks no_show from viewed", ctx: practiceCtx("p1"), from: models.AppointmentViewed, to: models.AppointmentNoShow},
		{name: "practice cannot cancel", ctx: practiceCtx("p1"), from: models.AppointmentNew, to: models.AppointmentCancelled, wantErr: response.ErrState},
		{name: "foreign practice rejected", ctx: practiceCtx("p2"), from: models.AppointmentNew, to: models.AppointmentViewed, wantErr: response.ErrNotAuthorized},
		{name: "sales cancels", ctx: salesCtx(), from: models.AppointmentViewed, to: models.AppointmentCancelled},
		{name: "sales cannot mark no_show", ctx: salesCtx(), from: models.AppointmentViewed, to: models.AppointmentNoShow, wantErr: response.ErrState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newFakeStore(t)
			seedBooking(store)
			store.appointments["a1"] = &models.Appointment{
				ID: "a1", ProposalID: strPtr("pr1"), ChairID: strPtr("c1"),
				StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
				Status: tt.from,
			}

			svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
			svc.now = func() time.Time { return base }

			mock.ExpectBegin()
			if tt.wantErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			_, err := svc.UpdateAppointmentStatus(tt.ctx, "a1", &api.AppointmentStatusRequest{
				Status: string(tt.to),
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, store.appointments["a1"].Status)
		})
	}
}

func TestMarkViewed(t *testing.T) {
	store, mock := newFakeStore(t)
	seedBooking(store)
	store.appointments["a1"] = &models.Appointment{
		ID: "a1", ProposalID: strPtr("pr1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentNew,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	mock.ExpectBegin()
	mock.ExpectCommit()

	got, err := svc.MarkViewed(practiceCtx("p1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, string(models.AppointmentViewed), got.Status)

	// Sales has no business acknowledging for the practice.
	_, err = svc.MarkViewed(salesCtx(), "a1")
	require.ErrorIs(t, err, response.ErrNotAuthorized)
}

func TestMarkViewed_NoopPastNew(t *testing.T) {
	store, _ := newFakeStore(t)
	seedBooking(store)
	store.appointments["a1"] = &models.Appointment{
		ID: "a1", ProposalID: strPtr("pr1"),
		StartTime: base.AddDate(0, 0, 1), EndTime: base.AddDate(0, 0, 1).Add(30 * time.Minute),
		Status: models.AppointmentCancelled,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())
	svc.now = func() time.Time { return base }

	// No transaction expected: the acknowledgement is a read-only no-op
	// once the appointment left the new status.
	got, err := svc.MarkViewed(practiceCtx("p1"), "a1")
	require.NoError(t, err)
	assert.Equal(t, string(models.AppointmentCancelled), got.Status)
	assert.Equal(t, models.AppointmentCancelled, store.appointments["a1"].Status)
}

func TestSearchProposals_SalesOnly(t *testing.T) {
	store, _ := newFakeStore(t)
	seedBooking(store)
	// Not yet at call_requested, must stay out of the results.
	store.proposals["pr2"] = &models.Proposal{
		ID: "pr2", QuoteID: "q2", PracticeID: "p1",
		PatientName: "Maria Verdi", PatientEmail: "maria@example.com",
		Status: models.ProposalSent,
	}

	svc := newTestService(store, &fakeLocker{ok: true}, &stubDispatcher{}, testConfig())

	// Fragment lookup matches both addresses, the status filter keeps pr1.
	got, err := svc.SearchProposals(salesCtx(), "mari", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pr1", got[0].ID)

	_, err = svc.SearchProposals(practiceCtx("p1"), "mario@example.com", "")
	require.ErrorIs(t, err, response.ErrNotAuthorized)

	_, err = svc.SearchProposals(salesCtx(), "", "")
	require.ErrorIs(t, err, response.ErrValidation)
}

func TestBookingLockKey(t *testing.T) {
	svc := &Service{}

	assert.Equal(t, "slot:s1", svc.bookingLockKey(&api.AppointmentRequest{SlotID: strPtr("s1")}))
	assert.Equal(t, "chair:c1", svc.bookingLockKey(&api.AppointmentRequest{ChairID: strPtr("c1")}))
	assert.Equal(t, "proposal:pr1", svc.bookingLockKey(&api.AppointmentRequest{ProposalID: "pr1"}))
}
