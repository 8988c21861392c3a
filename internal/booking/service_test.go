package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

var testDay = time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	mr     *miniredis.Miniredis
	store  *MemoryStore
	svc    *Service
	doctor Actor
	admin  Actor
}

func newFixture(t *testing.T, repo Repository, store *MemoryStore) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if store == nil {
		store = NewMemoryStore()
	}
	if repo == nil {
		repo = store
	}

	now := func() time.Time { return time.Date(2030, 6, 1, 7, 0, 0, 0, time.UTC) }
	resolver := NewResolver(repo, redisclient.NewDatesCache(client, time.Minute), time.UTC, zerolog.Nop())
	resolver.now = now

	svc := NewService(
		repo,
		resolver,
		redisclient.NewRedisLocker(client, 5*time.Second),
		DefaultDayTemplate(),
		metrics.NewBookingMetrics(prometheus.NewRegistry()),
		zerolog.Nop(),
	)
	svc.now = now

	return &fixture{
		mr:     mr,
		store:  store,
		svc:    svc,
		doctor: Actor{UserID: uuid.New(), Role: RoleDoctor},
		admin:  Actor{UserID: uuid.New(), Role: RoleAdmin},
	}
}

func newPatient() Actor {
	return Actor{UserID: uuid.New(), Role: RolePatient}
}

func (f *fixture) generate(t *testing.T) []Slot {
	t.Helper()
	slots, err := f.svc.GenerateDaySlots(context.Background(), f.doctor, f.doctor.UserID, testDay)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	return slots
}

func requestFor(patient Actor, slot Slot) BookingRequest {
	return BookingRequest{
		SlotID:    slot.ID,
		PatientID: patient.UserID,
		DoctorID:  slot.DoctorID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
	}
}

func (f *fixture) slot(t *testing.T, id uuid.UUID) Slot {
	t.Helper()
	s, err := f.store.GetSlot(context.Background(), id)
	require.NoError(t, err)
	return *s
}

func TestBookCreatesPendingAppointment(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[0]
	patient := newPatient()

	req := requestFor(patient, slot)
	req.Notes = "first visit"
	appt, err := f.svc.Book(ctx, patient, req)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, patient.UserID, appt.PatientID)
	assert.Equal(t, f.doctor.UserID, appt.DoctorID)
	require.NotNil(t, appt.SlotID)
	assert.Equal(t, slot.ID, *appt.SlotID)
	assert.True(t, appt.StartTime.Equal(slot.StartTime))
	require.NotNil(t, appt.Notes)
	assert.Equal(t, "first visit", *appt.Notes)

	assert.False(t, f.slot(t, slot.ID).IsAvailable)

	available, err := f.svc.Resolver().AvailableSlots(ctx, f.doctor.UserID, testDay)
	require.NoError(t, err)
	for _, s := range available {
		assert.NotEqual(t, slot.ID, s.ID)
	}

	var booked int
	for _, ev := range f.store.Events() {
		if ev.EventType == EventAppointmentBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked)
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[3]

	const attempts = 64
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		winners     int
		unavailable int
		other       []error
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			patient := newPatient()
			<-start
			_, err := f.svc.Book(ctx, patient, requestFor(patient, slot))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrSlotUnavailable):
				unavailable++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, unavailable)

	active, err := f.store.GetActiveAppointmentForSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, active.Status)
	assert.False(t, f.slot(t, slot.ID).IsAvailable)
}

func TestRepeatedBookingAfterSuccessFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[0]
	patient := newPatient()

	_, err := f.svc.Book(ctx, patient, requestFor(patient, slot))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.Book(ctx, patient, requestFor(patient, slot))
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}

	appts, err := f.store.ListAppointmentsByPatient(ctx, patient.UserID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestCancelReturnsSlotToAvailable(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[1]
	patient := newPatient()

	appt, err := f.svc.Book(ctx, patient, requestFor(patient, slot))
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)

	available, err := f.svc.Resolver().AvailableSlotsOn(ctx, f.doctor.UserID, testDay)
	require.NoError(t, err)
	var found bool
	for _, s := range available {
		found = found || s.ID == slot.ID
	}
	assert.True(t, found, "cancelled slot reappears in availability")

	other := newPatient()
	again, err := f.svc.Book(ctx, other, requestFor(other, slot))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestConfirmedAppointmentCancellationRules(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[2]
	patient := newPatient()

	appt, err := f.svc.Book(ctx, patient, requestFor(patient, slot))
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = f.svc.Cancel(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.False(t, f.slot(t, slot.ID).IsAvailable)

	cancelled, err := f.svc.Cancel(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)
}

func TestStatusMachine(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slots := f.generate(t)
	patient := newPatient()

	appt, err := f.svc.Book(ctx, patient, requestFor(patient, slots[0]))
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition, "pending cannot complete")

	_, err = f.svc.Confirm(ctx, patient, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden, "patients do not confirm")

	_, err = f.svc.Confirm(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, f.doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	completed, err := f.svc.Complete(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = f.svc.Cancel(ctx, f.doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition, "completed is terminal")

	other := Actor{UserID: uuid.New(), Role: RoleDoctor}
	_, err = f.svc.Confirm(ctx, other, appt.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStatusCanTransition(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusConfirmed))
	assert.True(t, StatusPending.CanTransition(StatusCancelled))
	assert.True(t, StatusConfirmed.CanTransition(StatusCompleted))
	assert.True(t, StatusConfirmed.CanTransition(StatusCancelled))
	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.False(t, StatusCompleted.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusPending))
	assert.False(t, StatusConfirmed.CanTransition(StatusPending))
}

func TestBookUnknownSlot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	f.generate(t)
	patient := newPatient()

	req := BookingRequest{
		SlotID:    uuid.New(),
		PatientID: patient.UserID,
		DoctorID:  f.doctor.UserID,
		StartTime: testDay.Add(9 * time.Hour),
		EndTime:   testDay.Add(9*time.Hour + 45*time.Minute),
	}
	_, err := f.svc.Book(ctx, patient, req)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	appts, err := f.store.ListAppointmentsByDoctor(ctx, f.doctor.UserID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, appts)
}

func TestBookRejectsMismatchedSlotDetails(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[0]
	patient := newPatient()

	req := requestFor(patient, slot)
	req.StartTime = req.StartTime.Add(5 * time.Minute)
	_, err := f.svc.Book(ctx, patient, req)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)

	req = requestFor(patient, slot)
	req.DoctorID = uuid.New()
	_, err = f.svc.Book(ctx, Actor{UserID: req.PatientID, Role: RolePatient}, req)
	require.ErrorAs(t, err, &ve)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)
}

func TestBookValidatesBeforeTouchingStore(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[0]
	patient := newPatient()

	cases := map[string]func(r *BookingRequest){
		"missing patient": func(r *BookingRequest) { r.PatientID = uuid.Nil },
		"missing doctor":  func(r *BookingRequest) { r.DoctorID = uuid.Nil },
		"end before start": func(r *BookingRequest) {
			r.EndTime = r.StartTime.Add(-time.Minute)
		},
		"in the past": func(r *BookingRequest) {
			r.StartTime = testDay.Add(-48 * time.Hour)
			r.EndTime = r.StartTime.Add(45 * time.Minute)
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := requestFor(patient, slot)
			mutate(&req)
			_, err := f.svc.Book(ctx, Actor{UserID: patient.UserID, Role: RoleAdmin}, req)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, f.slot(t, slot.ID).IsAvailable)
		})
	}
}

func TestBookForSomeoneElseIsForbidden(t *testing.T) {
	f := newFixture(t, nil, nil)
	slot := f.generate(t)[0]

	_, err := f.svc.Book(context.Background(), newPatient(), requestFor(newPatient(), slot))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)
}

func TestOverrideMakesSlotsUnbookable(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slots := f.generate(t)

	var ids []uuid.UUID
	for _, s := range slots[:5] {
		p := newPatient()
		_, err := f.svc.Book(ctx, p, requestFor(p, s))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	ids = append(ids, slots[5].ID)

	n, err := f.svc.OverrideAvailability(ctx, f.doctor, f.doctor.UserID, ids, false)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	for _, s := range slots[:6] {
		p := newPatient()
		_, err := f.svc.Book(ctx, p, requestFor(p, s))
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}

	_, err = f.svc.OverrideAvailability(ctx, newPatient(), f.doctor.UserID, ids, true)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOverrideNeverReopensHeldSlot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slots := f.generate(t)
	p := newPatient()

	appt, err := f.svc.Book(ctx, p, requestFor(p, slots[0]))
	require.NoError(t, err)

	_, err = f.svc.OverrideAvailability(ctx, f.doctor, f.doctor.UserID, []uuid.UUID{slots[1].ID}, false)
	require.NoError(t, err)

	n, err := f.svc.OverrideAvailability(ctx, f.doctor, f.doctor.UserID, []uuid.UUID{slots[0].ID, slots[1].ID}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the unheld slot reopens")

	held, err := f.store.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.False(t, held.IsAvailable)
	reopened, err := f.store.GetSlot(ctx, slots[1].ID)
	require.NoError(t, err)
	assert.True(t, reopened.IsAvailable)

	other := newPatient()
	_, err = f.svc.Book(ctx, other, requestFor(other, slots[0]))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = f.svc.Cancel(ctx, p, appt.ID)
	require.NoError(t, err)
	n, err = f.svc.OverrideAvailability(ctx, f.doctor, f.doctor.UserID, []uuid.UUID{slots[0].ID}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteSlotsSkipsReferenced(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slots := f.generate(t)
	p := newPatient()

	_, err := f.svc.Book(ctx, p, requestFor(p, slots[0]))
	require.NoError(t, err)

	n, err := f.svc.DeleteSlots(ctx, f.doctor, f.doctor.UserID, []uuid.UUID{slots[0].ID, slots[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.store.GetSlot(ctx, slots[0].ID)
	assert.NoError(t, err)
	_, err = f.store.GetSlot(ctx, slots[1].ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestDeleteAppointmentReleasesSlot(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slot := f.generate(t)[0]
	p := newPatient()

	appt, err := f.svc.Book(ctx, p, requestFor(p, slot))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Delete(ctx, p, appt.ID), ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.doctor, appt.ID))

	assert.True(t, f.slot(t, slot.ID).IsAvailable)
	_, err = f.svc.Get(ctx, f.admin, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestGenerateDaySlots(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	slots := f.generate(t)
	assert.Len(t, slots, 15)

	_, err := f.svc.GenerateDaySlots(ctx, f.doctor, f.doctor.UserID, testDay)
	assert.ErrorIs(t, err, ErrSlotOverlap, "second generation for the same day fails wholesale")

	listed, err := f.svc.ListSlots(ctx, f.doctor, f.doctor.UserID, testDay, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, listed, 15)
	for i := 1; i < len(listed); i++ {
		assert.True(t, listed[i-1].StartTime.Before(listed[i].StartTime))
	}
}

func TestGenerateDaySlotsGuards(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.GenerateDaySlots(ctx, newPatient(), f.doctor.UserID, testDay)
	assert.ErrorIs(t, err, ErrForbidden)

	var ve *ValidationError
	_, err = f.svc.GenerateDaySlots(ctx, f.doctor, f.doctor.UserID, testDay.AddDate(0, 0, -1))
	assert.ErrorAs(t, err, &ve)

	next := testDay.AddDate(0, 0, 1)
	require.NoError(t, f.mr.Set("lock:slotgen:"+f.doctor.UserID.String()+":2030-06-02", "held"))
	_, err = f.svc.GenerateDaySlots(ctx, f.doctor, f.doctor.UserID, next)
	assert.ErrorIs(t, err, ErrGenerationInProgress)
}

func TestListAppointmentsAuthorization(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	slots := f.generate(t)
	p := newPatient()

	for _, s := range slots[:3] {
		_, err := f.svc.Book(ctx, p, requestFor(p, s))
		require.NoError(t, err)
	}

	mine, err := f.svc.ListForPatient(ctx, p, p.UserID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	_, err = f.svc.ListForPatient(ctx, newPatient(), p.UserID, 10, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := f.svc.ListForDoctor(ctx, f.doctor, f.doctor.UserID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].StartTime.Equal(slots[2].StartTime), "latest appointment first")
	assert.True(t, page[1].StartTime.Equal(slots[1].StartTime))

	_, err = f.svc.ListForDoctor(ctx, p, f.doctor.UserID, 2, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

// flakyStore injects failures into the two-step booking path.
type flakyStore struct {
	*MemoryStore

	mu            sync.Mutex
	insertErrs    []error
	markAvailErrs []error
}

func (s *flakyStore) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	s.mu.Lock()
	var err error
	if len(s.insertErrs) > 0 {
		err, s.insertErrs = s.insertErrs[0], s.insertErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.InsertAppointment(ctx, appt)
}

func (s *flakyStore) MarkAvailable(ctx context.Context, slotID uuid.UUID) error {
	s.mu.Lock()
	var err error
	if len(s.markAvailErrs) > 0 {
		err, s.markAvailErrs = s.markAvailErrs[0], s.markAvailErrs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemoryStore.MarkAvailable(ctx, slotID)
}

func TestInsertFailureIsCompensated(t *testing.T) {
	mem := NewMemoryStore()
	flaky := &flakyStore{MemoryStore: mem, insertErrs: []error{errors.New("connection reset")}}
	f := newFixture(t, flaky, mem)
	ctx := context.Background()
	slot := f.generate(t)[0]
	p := newPatient()

	_, err := f.svc.Book(ctx, p, requestFor(p, slot))
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.True(t, IsRetryable(err))
	assert.True(t, f.slot(t, slot.ID).IsAvailable, "slot released after failed insert")

	// identical resubmission succeeds exactly once
	appt, err := f.svc.Book(ctx, p, requestFor(p, slot))
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, p, requestFor(p, slot))
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	appts, err := mem.ListAppointmentsByPatient(ctx, p.UserID, 10, 0)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, appt.ID, appts[0].ID)
}

func TestCompensationFailureIsRecordedAndReconciled(t *testing.T) {
	mem := NewMemoryStore()
	flaky := &flakyStore{
		MemoryStore:   mem,
		insertErrs:    []error{errors.New("insert timeout")},
		markAvailErrs: []error{errors.New("revert timeout")},
	}
	f := newFixture(t, flaky, mem)
	ctx := context.Background()
	slot := f.generate(t)[0]
	p := newPatient()

	_, err := f.svc.Book(ctx, p, requestFor(p, slot))
	var cf *CompensationFailure
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, slot.ID, cf.SlotID)
	assert.False(t, f.slot(t, slot.ID).IsAvailable, "slot stranded until reconciled")

	stranded, err := mem.FindUnresolvedEvents(ctx, EventSlotCompensationFailed, 10)
	require.NoError(t, err)
	require.Len(t, stranded, 1)
	require.NotNil(t, stranded[0].SlotID)
	assert.Equal(t, slot.ID, *stranded[0].SlotID)

	released, err := f.svc.ReconcileStrandedSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.True(t, f.slot(t, slot.ID).IsAvailable)

	stranded, err = mem.FindUnresolvedEvents(ctx, EventSlotCompensationFailed, 10)
	require.NoError(t, err)
	assert.Empty(t, stranded)

	released, err = f.svc.ReconcileStrandedSlots(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestReconcileLeavesRebookedSlotAlone(t *testing.T) {
	mem := NewMemoryStore()
	f := newFixture(t, nil, mem)
	ctx := context.Background()
	slot := f.generate(t)[0]
	p := newPatient()

	_, err := f.svc.Book(ctx, p, requestFor(p, slot))
	require.NoError(t, err)
	require.NoError(t, mem.InsertEvent(ctx, EventLog{EventType: EventSlotCompensationFailed, SlotID: &slot.ID}))

	released, err := f.svc.ReconcileStrandedSlots(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.False(t, f.slot(t, slot.ID).IsAvailable)
}

// atomicStore records that the service took the single-call path.
type atomicStore struct {
	*MemoryStore
	calls int
	err   error
}

func (s *atomicStore) BookSlot(ctx context.Context, req BookingRequest) (*Appointment, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	slotID := req.SlotID
	return &Appointment{ID: uuid.New(), PatientID: req.PatientID, DoctorID: req.DoctorID, SlotID: &slotID, Status: StatusPending}, nil
}

func TestBookPrefersAtomicStore(t *testing.T) {
	mem := NewMemoryStore()
	atomic := &atomicStore{MemoryStore: mem}
	f := newFixture(t, atomic, mem)
	ctx := context.Background()
	slot := f.generate(t)[0]
	p := newPatient()

	_, err := f.svc.Book(ctx, p, requestFor(p, slot))
	require.NoError(t, err)
	assert.Equal(t, 1, atomic.calls)
	assert.True(t, f.slot(t, slot.ID).IsAvailable, "two-step path not used")

	atomic.err = ErrSlotUnavailable
	_, err = f.svc.Book(ctx, p, requestFor(p, slot))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	assert.Equal(t, 2, atomic.calls)
}
