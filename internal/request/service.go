package request

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"timesheet/internal/attendance"
	"timesheet/internal/auth"
	"timesheet/internal/metrics"
	"timesheet/internal/timeclock"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Store is the persistence surface the workflow needs. *Repository satisfies
// it; tests substitute an in-memory map that enforces the same guards.
type Store interface {
	Get(ctx context.Context, id string) (*CorrectionRequest, error)
	List(ctx context.Context) ([]CorrectionRequest, error)
	ListByUser(ctx context.Context, userID string) ([]CorrectionRequest, error)
	GetAttendance(ctx context.Context, userID, date string) (*attendance.Record, error)
	CreateWithPending(ctx context.Context, req CorrectionRequest) error
	Decide(ctx context.Context, id string, newStatus Status, rec attendance.Record) error
	Reopen(ctx context.Context, id string) error
}

// StandardSource supplies the per-user standard shift length used to rederive
// overtime when a correction lands. *attendance.Service satisfies it.
type StandardSource interface {
	StandardMinutes(ctx context.Context, userID string) int
}

// Service runs the correction-request workflow. Every call takes an explicit
// auth.Session rather than reading ambient user state.
type Service struct {
	store    Store
	standard StandardSource
	loc      *time.Location
	collator *collate.Collator
	now      func() time.Time
}

// NewService creates a workflow service. loc supplies the wall-clock zone for
// submission dates.
func NewService(store Store, standard StandardSource, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		store:    store,
		standard: standard,
		loc:      loc,
		collator: collate.New(language.Japanese),
		now:      time.Now,
	}
}

// Submit snapshots the attendance record for attendanceDate, merges the edits
// over it, and creates an unhandled request while marking the record pending.
// An edit set that changes nothing is rejected with ErrNothingToSubmit; a
// second submission while one is outstanding fails with ErrDuplicatePending.
func (s *Service) Submit(ctx context.Context, sess auth.Session, attendanceDate string, edits Edits, comment string) (CorrectionRequest, error) {
	if sess.UserID == "" {
		return CorrectionRequest{}, errors.New("session required")
	}
	if !dateRe.MatchString(attendanceDate) {
		return CorrectionRequest{}, fmt.Errorf("%w: date %q, want YYYY-MM-DD", attendance.ErrBadInput, attendanceDate)
	}

	rec, err := s.store.GetAttendance(ctx, sess.UserID, attendanceDate)
	if err != nil {
		return CorrectionRequest{}, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return CorrectionRequest{}, ErrNotFound
	}

	original := FieldSet{ClockIn: rec.ClockIn, ClockOut: rec.ClockOut, BreakTime: rec.BreakTime}
	updated := original
	if edits.ClockIn != nil {
		updated.ClockIn = *edits.ClockIn
	}
	if edits.ClockOut != nil {
		updated.ClockOut = *edits.ClockOut
	}
	if edits.BreakTime != nil {
		updated.BreakTime = *edits.BreakTime
	}
	if updated == original {
		return CorrectionRequest{}, ErrNothingToSubmit
	}

	applicant := sess.Email
	if applicant == "" {
		applicant = sess.UserID
	}
	req := CorrectionRequest{
		ID:             uuid.NewString(),
		UserID:         sess.UserID,
		AttendanceDate: attendanceDate,
		Applicant:      applicant,
		Date:           s.now().In(s.loc).Format("2006-01-02"),
		TargetDate:     attendanceDate,
		Original:       original,
		Updated:        updated,
		Comment:        comment,
		Status:         StatusUnhandled,
	}
	if err := s.store.CreateWithPending(ctx, req); err != nil {
		return CorrectionRequest{}, err
	}
	metrics.Transitions.WithLabelValues("submit").Inc()
	return req, nil
}

// Approve applies the request's updated values to the attendance record and
// marks both sides approved. Only unhandled requests can be approved;
// re-approving is ErrInvalidTransition, not a no-op.
func (s *Service) Approve(ctx context.Context, sess auth.Session, id string) (CorrectionRequest, error) {
	return s.decide(ctx, sess, id, StatusApproved)
}

// Reject reverts the attendance record to the original snapshot and marks
// both sides rejected. Only unhandled requests can be rejected.
func (s *Service) Reject(ctx context.Context, sess auth.Session, id string) (CorrectionRequest, error) {
	return s.decide(ctx, sess, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, sess auth.Session, id string, newStatus Status) (CorrectionRequest, error) {
	if !sess.Admin {
		return CorrectionRequest{}, ErrPermissionDenied
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return CorrectionRequest{}, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return CorrectionRequest{}, ErrNotFound
	}
	if req.Status != StatusUnhandled {
		return CorrectionRequest{}, ErrInvalidTransition
	}

	var fields FieldSet
	var recStatus attendance.Status
	switch newStatus {
	case StatusApproved:
		fields = mergeFields(req.Updated, req.Original)
		recStatus = attendance.StatusApproved
	case StatusRejected:
		fields = req.Original
		recStatus = attendance.StatusRejected
	default:
		return CorrectionRequest{}, ErrInvalidTransition
	}

	rec := s.deriveRecord(ctx, req.UserID, req.AttendanceDate, fields, recStatus)
	if err := s.store.Decide(ctx, id, newStatus, rec); err != nil {
		return CorrectionRequest{}, err
	}

	req.Status = newStatus
	metrics.Transitions.WithLabelValues(actionLabel(newStatus)).Inc()
	return *req, nil
}

// BulkResult reports the per-id outcome of a bulk approval.
type BulkResult struct {
	Approved []string          `json:"approved"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// BulkApprove approves each id independently. One failing item never blocks
// the rest; failures come back keyed by id.
func (s *Service) BulkApprove(ctx context.Context, sess auth.Session, ids []string) (BulkResult, error) {
	if !sess.Admin {
		return BulkResult{}, ErrPermissionDenied
	}
	result := BulkResult{Failed: make(map[string]string)}
	for _, id := range ids {
		if _, err := s.Approve(ctx, sess, id); err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	return result, nil
}

// Reopen moves an approved or rejected request back to unhandled for a fresh
// decision. Only the status markers change; the record's field values keep
// whatever the previous decision wrote.
func (s *Service) Reopen(ctx context.Context, sess auth.Session, id string) (CorrectionRequest, error) {
	if !sess.Admin {
		return CorrectionRequest{}, ErrPermissionDenied
	}
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return CorrectionRequest{}, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return CorrectionRequest{}, ErrNotFound
	}
	if !req.Handled() {
		return CorrectionRequest{}, ErrInvalidTransition
	}
	if err := s.store.Reopen(ctx, id); err != nil {
		return CorrectionRequest{}, err
	}
	req.Status = StatusUnhandled
	metrics.Transitions.WithLabelValues("reopen").Inc()
	return *req, nil
}

// View selects which half of the status partition a listing shows.
type View string

const (
	ViewUnhandled View = "unhandled" // status 未対応
	ViewHandled   View = "handled"   // status 承認 or 否認
	ViewAll       View = "all"
)

// SortKey selects the primary listing order. Submission date descending is
// always the secondary key, so re-sorting stays stable.
type SortKey string

const (
	SortDate       SortKey = "date"
	SortApplicant  SortKey = "applicant"
	SortTargetDate SortKey = "target_date"
	SortStatus     SortKey = "status"
)

// ListFilter narrows and orders a request listing.
type ListFilter struct {
	View   View
	SortBy SortKey
}

// List returns requests visible to the session. Administrators see every
// user's requests; employees only their own. Applicant ordering is collated
// for the display locale.
func (s *Service) List(ctx context.Context, sess auth.Session, filter ListFilter) ([]CorrectionRequest, error) {
	var (
		all []CorrectionRequest
		err error
	)
	if sess.Admin {
		all, err = s.store.List(ctx)
	} else {
		all, err = s.store.ListByUser(ctx, sess.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	var filtered []CorrectionRequest
	for _, req := range all {
		switch filter.View {
		case ViewUnhandled:
			if req.Status != StatusUnhandled {
				continue
			}
		case ViewHandled:
			if !req.Handled() {
				continue
			}
		}
		filtered = append(filtered, req)
	}

	// Secondary key first, then the stable primary sort on top of it.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Date > filtered[j].Date
	})
	switch filter.SortBy {
	case SortApplicant:
		sort.SliceStable(filtered, func(i, j int) bool {
			return s.collator.CompareString(filtered[i].Applicant, filtered[j].Applicant) < 0
		})
	case SortTargetDate:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].TargetDate < filtered[j].TargetDate
		})
	case SortStatus:
		sort.SliceStable(filtered, func(i, j int) bool {
			return statusRank(filtered[i].Status) < statusRank(filtered[j].Status)
		})
	}
	return filtered, nil
}

// Get returns one request visible to the session.
func (s *Service) Get(ctx context.Context, sess auth.Session, id string) (CorrectionRequest, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return CorrectionRequest{}, fmt.Errorf("load request: %w", err)
	}
	if req == nil || (!sess.Admin && req.UserID != sess.UserID) {
		return CorrectionRequest{}, ErrNotFound
	}
	return *req, nil
}

// deriveRecord builds the attendance row a decision writes, rederiving work
// time and overtime from the fields it is about to apply.
func (s *Service) deriveRecord(ctx context.Context, userID, date string, fields FieldSet, status attendance.Status) attendance.Record {
	rec := attendance.Record{
		ID:        attendance.RecordID(userID, date),
		UserID:    userID,
		Date:      date,
		ClockIn:   fields.ClockIn,
		ClockOut:  fields.ClockOut,
		BreakTime: fields.BreakTime,
		Status:    status,
	}
	rec.WorkTime = timeclock.WorkTime(rec.ClockIn, rec.ClockOut)
	actual := timeclock.ActualWorkTime(rec.WorkTime, rec.BreakTime)
	rec.OverTime = timeclock.OverTime(actual, s.standard.StandardMinutes(ctx, userID))
	return rec
}

// mergeFields fills any field the proposal left empty from the snapshot.
// Submissions always merge fully, so this only matters for migrated data.
func mergeFields(updated, original FieldSet) FieldSet {
	if updated.ClockIn == "" {
		updated.ClockIn = original.ClockIn
	}
	if updated.ClockOut == "" {
		updated.ClockOut = original.ClockOut
	}
	if updated.BreakTime == "" {
		updated.BreakTime = original.BreakTime
	}
	return updated
}

func statusRank(s Status) int {
	switch s {
	case StatusUnhandled:
		return 0
	case StatusApproved:
		return 1
	default:
		return 2
	}
}

func actionLabel(s Status) string {
	if s == StatusApproved {
		return "approve"
	}
	return "reject"
}
