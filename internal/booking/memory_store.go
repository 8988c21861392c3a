package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Repository. Each method is atomic on its own
// but it does not implement AtomicBooker, so bookings against it take the
// two-step path with compensation.
type MemoryStore struct {
	mu           sync.Mutex
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

func (m *MemoryStore) InsertSlots(ctx context.Context, slots []Slot) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range slots {
		if _, exists := m.slots[s.ID]; exists {
			return nil, ErrSlotOverlap
		}
		for _, existing := range m.slots {
			if existing.overlaps(s) {
				return nil, ErrSlotOverlap
			}
		}
	}

	now := m.now()
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt, s.UpdatedAt = now, now
		m.slots[s.ID] = s
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Slot
	for _, s := range m.slots {
		if s.DoctorID == doctorID && !s.StartTime.Before(from) && s.StartTime.Before(to) {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *MemoryStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ConditionalMarkUnavailable(ctx context.Context, slotID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[slotID]
	if !ok || !s.IsAvailable {
		return false, nil
	}
	s.IsAvailable = false
	s.UpdatedAt = m.now()
	m.slots[slotID] = s
	return true, nil
}

func (m *MemoryStore) MarkAvailable(ctx context.Context, slotID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked(&slotID)
	return nil
}

func (m *MemoryStore) SetAvailability(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID, available bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range ids {
		s, ok := m.slots[id]
		if !ok || s.DoctorID != doctorID {
			continue
		}
		if available && m.activeForSlotLocked(id) != nil {
			continue
		}
		s.IsAvailable = available
		s.UpdatedAt = m.now()
		m.slots[id] = s
		n++
	}
	return n, nil
}

func (m *MemoryStore) DeleteSlots(ctx context.Context, doctorID uuid.UUID, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range ids {
		s, ok := m.slots[id]
		if !ok || s.DoctorID != doctorID || m.activeForSlotLocked(id) != nil {
			continue
		}
		delete(m.slots, id)
		for apptID, a := range m.appointments {
			if a.SlotID != nil && *a.SlotID == id {
				a.SlotID = nil
				m.appointments[apptID] = a
			}
		}
		n++
	}
	return n, nil
}

func (m *MemoryStore) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.availableLocked(doctorID, from), nil
}

func (m *MemoryStore) ListAvailableDates(ctx context.Context, doctorID uuid.UUID, from time.Time, loc *time.Location) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, s := range m.availableLocked(doctorID, from) {
		y, mo, d := s.StartTime.In(loc).Date()
		day := time.Date(y, mo, d, 0, 0, 0, 0, loc)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	return out, nil
}

func (m *MemoryStore) availableLocked(doctorID uuid.UUID, from time.Time) []Slot {
	var out []Slot
	for id, s := range m.slots {
		if s.DoctorID != doctorID || !s.IsAvailable || s.StartTime.Before(from) {
			continue
		}
		if m.activeForSlotLocked(id) != nil {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out
}

func (m *MemoryStore) InsertAppointment(ctx context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appt.SlotID != nil {
		if _, ok := m.slots[*appt.SlotID]; !ok {
			return nil, ErrSlotNotFound
		}
		if m.activeForSlotLocked(*appt.SlotID) != nil {
			return nil, ErrSlotUnavailable
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	now := m.now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	m.appointments[appt.ID] = appt
	return &appt, nil
}

func (m *MemoryStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryStore) GetActiveAppointmentForSlot(ctx context.Context, slotID uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a := m.activeForSlotLocked(slotID); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *MemoryStore) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.listAppointments(func(a Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (m *MemoryStore) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return m.listAppointments(func(a Appointment) bool { return a.DoctorID == doctorID }, limit, offset), nil
}

func (m *MemoryStore) listAppointments(match func(Appointment) bool, limit, offset int) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appointments {
		if match(a) {
			out = append(out, a)
		}
	}
	// newest first, as in PgRepository
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryStore) CancelAppointment(ctx context.Context, id uuid.UUID, from []Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || !containsStatus(from, a.Status) {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCancelled
	a.UpdatedAt = m.now()
	m.appointments[id] = a
	m.releaseLocked(a.SlotID)
	return &a, nil
}

func (m *MemoryStore) DeleteAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	m.releaseLocked(a.SlotID)
	return &a, nil
}

func (m *MemoryStore) InsertEvent(ctx context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryStore) FindUnresolvedEvents(ctx context.Context, eventType string, limit int) ([]EventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []EventLog
	for _, ev := range m.events {
		if ev.EventType == eventType && ev.ResolvedAt == nil {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) ResolveEvent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.events {
		if m.events[i].ID == id {
			now := m.now()
			m.events[i].ResolvedAt = &now
		}
	}
	return nil
}

// Events returns a copy of the event log.
func (m *MemoryStore) Events() []EventLog {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]EventLog(nil), m.events...)
}

func (m *MemoryStore) releaseLocked(slotID *uuid.UUID) {
	if slotID == nil {
		return
	}
	s, ok := m.slots[*slotID]
	if !ok {
		return
	}
	s.IsAvailable = true
	s.UpdatedAt = m.now()
	m.slots[*slotID] = s
}

func (m *MemoryStore) activeForSlotLocked(slotID uuid.UUID) *Appointment {
	for _, a := range m.appointments {
		if a.SlotID != nil && *a.SlotID == slotID && a.Status.Active() {
			return &a
		}
	}
	return nil
}

func sortSlots(s []Slot) {
	sort.Slice(s, func(i, j int) bool { return s[i].StartTime.Before(s[j].StartTime) })
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
