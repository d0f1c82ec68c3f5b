package request

import (
	"context"
	"sort"
	"time"

	"timesheet/internal/attendance"
)

// mockStore backs the workflow with maps while enforcing the same guards the
// Postgres repository expresses in its UPDATE predicates.
type mockStore struct {
	requests map[string]*CorrectionRequest
	records  map[string]*attendance.Record
	seq      int
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[string]*CorrectionRequest),
		records:  make(map[string]*attendance.Record),
	}
}

func (m *mockStore) addRecord(rec attendance.Record) {
	rec.ID = attendance.RecordID(rec.UserID, rec.Date)
	m.records[rec.ID] = &rec
}

func (m *mockStore) Get(_ context.Context, id string) (*CorrectionRequest, error) {
	if req, ok := m.requests[id]; ok {
		cp := *req
		return &cp, nil
	}
	return nil, nil
}

func (m *mockStore) List(_ context.Context) ([]CorrectionRequest, error) {
	return m.listWhere(func(*CorrectionRequest) bool { return true }), nil
}

func (m *mockStore) ListByUser(_ context.Context, userID string) ([]CorrectionRequest, error) {
	return m.listWhere(func(req *CorrectionRequest) bool { return req.UserID == userID }), nil
}

func (m *mockStore) listWhere(keep func(*CorrectionRequest) bool) []CorrectionRequest {
	var res []CorrectionRequest
	for _, req := range m.requests {
		if keep(req) {
			res = append(res, *req)
		}
	}
	// Repository order: newest submissions first, insertion order as tiebreak.
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}

func (m *mockStore) GetAttendance(_ context.Context, userID, date string) (*attendance.Record, error) {
	if rec, ok := m.records[attendance.RecordID(userID, date)]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

func (m *mockStore) CreateWithPending(_ context.Context, req CorrectionRequest) error {
	for _, existing := range m.requests {
		if existing.UserID == req.UserID && existing.AttendanceDate == req.AttendanceDate && existing.Status == StatusUnhandled {
			return ErrDuplicatePending
		}
	}
	rec, ok := m.records[attendance.RecordID(req.UserID, req.AttendanceDate)]
	if !ok {
		return ErrNotFound
	}
	m.seq++
	req.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	m.requests[req.ID] = &req
	rec.Status = attendance.StatusPending
	return nil
}

func (m *mockStore) Decide(_ context.Context, id string, newStatus Status, rec attendance.Record) error {
	req, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != StatusUnhandled {
		return ErrInvalidTransition
	}
	stored, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	req.Status = newStatus
	req.UpdatedAt = time.Now()
	stored.ClockIn = rec.ClockIn
	stored.ClockOut = rec.ClockOut
	stored.BreakTime = rec.BreakTime
	stored.WorkTime = rec.WorkTime
	stored.OverTime = rec.OverTime
	stored.Status = rec.Status
	return nil
}

func (m *mockStore) Reopen(_ context.Context, id string) error {
	req, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	if req.Status != StatusApproved && req.Status != StatusRejected {
		return ErrInvalidTransition
	}
	// Same guard as the partial unique index: one unhandled request per
	// (user, date) at a time.
	for _, other := range m.requests {
		if other.ID != id && other.UserID == req.UserID &&
			other.AttendanceDate == req.AttendanceDate && other.Status == StatusUnhandled {
			return ErrDuplicatePending
		}
	}
	rec, ok := m.records[attendance.RecordID(req.UserID, req.AttendanceDate)]
	if !ok {
		return ErrNotFound
	}
	req.Status = StatusUnhandled
	req.UpdatedAt = time.Now()
	rec.Status = attendance.StatusPending
	return nil
}

// fixedStandard satisfies StandardSource with a constant shift length.
type fixedStandard int

func (f fixedStandard) StandardMinutes(context.Context, string) int { return int(f) }
