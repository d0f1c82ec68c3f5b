package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"timesheet/internal/attendance"
	"timesheet/internal/auth"
	"timesheet/internal/timeclock"
)

var (
	employee = auth.Session{UserID: "u1", Email: "sato@example.com"}
	admin    = auth.Session{UserID: "boss", Email: "boss@example.com", Admin: true}
)

func setupWorkflow(t *testing.T) (*Service, *mockStore) {
	t.Helper()
	store := newMockStore()
	store.addRecord(attendance.Record{
		UserID:    "u1",
		Date:      "2026-08-01",
		ClockIn:   "09:00",
		ClockOut:  "18:00",
		BreakTime: "01:00",
		WorkTime:  "09:00",
		OverTime:  timeclock.NotSet,
	})
	svc := NewService(store, fixedStandard(480), time.UTC)
	return svc, store
}

func strPtr(s string) *string { return &s }

func submit(t *testing.T, svc *Service, edits Edits) CorrectionRequest {
	t.Helper()
	req, err := svc.Submit(context.Background(), employee, "2026-08-01", edits, "forgot to punch out")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return req
}

func TestSubmit(t *testing.T) {
	svc, store := setupWorkflow(t)

	req := submit(t, svc, Edits{ClockOut: strPtr("20:30")})

	if req.Status != StatusUnhandled {
		t.Errorf("status = %q, want 未対応", req.Status)
	}
	want := FieldSet{ClockIn: "09:00", ClockOut: "18:00", BreakTime: "01:00"}
	if req.Original != want {
		t.Errorf("original = %+v, want record snapshot %+v", req.Original, want)
	}
	// Un-edited fields default to the original values.
	wantUpdated := FieldSet{ClockIn: "09:00", ClockOut: "20:30", BreakTime: "01:00"}
	if req.Updated != wantUpdated {
		t.Errorf("updated = %+v, want %+v", req.Updated, wantUpdated)
	}
	if req.TargetDate != "2026-08-01" || req.AttendanceDate != "2026-08-01" {
		t.Errorf("target date not carried: %+v", req)
	}
	if req.Applicant != "sato@example.com" {
		t.Errorf("applicant = %q", req.Applicant)
	}

	rec := store.records["u1_2026-08-01"]
	if rec.Status != attendance.StatusPending {
		t.Errorf("record status = %q, want 申請中", rec.Status)
	}
	// The snapshot must not change the record's fields.
	if rec.ClockOut != "18:00" {
		t.Errorf("record clock out mutated: %q", rec.ClockOut)
	}
}

func TestSubmitPreconditions(t *testing.T) {
	svc, _ := setupWorkflow(t)

	_, err := svc.Submit(context.Background(), employee, "2026-08-01", Edits{}, "")
	if !errors.Is(err, ErrNothingToSubmit) {
		t.Errorf("empty edits: got %v, want ErrNothingToSubmit", err)
	}

	// Edits identical to the current values change nothing either.
	_, err = svc.Submit(context.Background(), employee, "2026-08-01", Edits{ClockIn: strPtr("09:00")}, "")
	if !errors.Is(err, ErrNothingToSubmit) {
		t.Errorf("no-op edits: got %v, want ErrNothingToSubmit", err)
	}

	_, err = svc.Submit(context.Background(), employee, "2026-09-15", Edits{ClockOut: strPtr("19:00")}, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing record: got %v, want ErrNotFound", err)
	}

	_, err = svc.Submit(context.Background(), employee, "08/01", Edits{ClockOut: strPtr("19:00")}, "")
	if !errors.Is(err, attendance.ErrBadInput) {
		t.Errorf("bad date: got %v, want ErrBadInput", err)
	}
}

func TestSubmitDuplicatePending(t *testing.T) {
	svc, _ := setupWorkflow(t)
	submit(t, svc, Edits{ClockOut: strPtr("20:30")})

	_, err := svc.Submit(context.Background(), employee, "2026-08-01", Edits{ClockOut: strPtr("21:00")}, "")
	if !errors.Is(err, ErrDuplicatePending) {
		t.Errorf("second submission: got %v, want ErrDuplicatePending", err)
	}
}

func TestApprove(t *testing.T) {
	svc, store := setupWorkflow(t)
	req := submit(t, svc, Edits{ClockOut: strPtr("20:30")})

	decided, err := svc.Approve(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if decided.Status != StatusApproved {
		t.Errorf("request status = %q, want 承認", decided.Status)
	}

	rec := store.records["u1_2026-08-01"]
	if rec.ClockIn != "09:00" || rec.ClockOut != "20:30" || rec.BreakTime != "01:00" {
		t.Errorf("record fields != updated data: %+v", rec)
	}
	if rec.Status != attendance.StatusApproved {
		t.Errorf("record status = %q, want 承認済み", rec.Status)
	}
	// Derived times follow the corrected punches.
	if rec.WorkTime != "11:30" {
		t.Errorf("work time = %q, want 11:30", rec.WorkTime)
	}
	if rec.OverTime != "02:30" {
		t.Errorf("over time = %q, want 02:30", rec.OverTime)
	}

	// Re-approving is a precondition violation, not a no-op.
	if _, err := svc.Approve(context.Background(), admin, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second approve: got %v, want ErrInvalidTransition", err)
	}
}

func TestReject(t *testing.T) {
	svc, store := setupWorkflow(t)
	req := submit(t, svc, Edits{ClockOut: strPtr("20:30"), BreakTime: strPtr("00:30")})

	decided, err := svc.Reject(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if decided.Status != StatusRejected {
		t.Errorf("request status = %q, want 否認", decided.Status)
	}

	rec := store.records["u1_2026-08-01"]
	if rec.ClockIn != "09:00" || rec.ClockOut != "18:00" || rec.BreakTime != "01:00" {
		t.Errorf("record fields != original data: %+v", rec)
	}
	if rec.Status != attendance.StatusRejected {
		t.Errorf("record status = %q, want 否認", rec.Status)
	}

	if _, err := svc.Reject(context.Background(), admin, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second reject: got %v, want ErrInvalidTransition", err)
	}
}

func TestDecidePermissions(t *testing.T) {
	svc, _ := setupWorkflow(t)
	req := submit(t, svc, Edits{ClockOut: strPtr("20:30")})

	if _, err := svc.Approve(context.Background(), employee, req.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("employee approve: got %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.Reject(context.Background(), employee, req.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("employee reject: got %v, want ErrPermissionDenied", err)
	}
	if _, err := svc.Approve(context.Background(), admin, "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing request: got %v, want ErrNotFound", err)
	}
}

func TestReopen(t *testing.T) {
	svc, store := setupWorkflow(t)
	req := submit(t, svc, Edits{ClockOut: strPtr("20:30")})

	// Unhandled requests cannot be reopened.
	if _, err := svc.Reopen(context.Background(), admin, req.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("reopen unhandled: got %v, want ErrInvalidTransition", err)
	}

	if _, err := svc.Approve(context.Background(), admin, req.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	reopened, err := svc.Reopen(context.Background(), admin, req.ID)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != StatusUnhandled {
		t.Errorf("status = %q, want 未対応", reopened.Status)
	}

	rec := store.records["u1_2026-08-01"]
	if rec.Status != attendance.StatusPending {
		t.Errorf("record status = %q, want 申請中", rec.Status)
	}
	// Only the status marker moves; the approved values stay in place.
	if rec.ClockOut != "20:30" {
		t.Errorf("record fields reverted on reopen: %+v", rec)
	}

	// The reopened request can be decided again, this time the other way.
	if _, err := svc.Reject(context.Background(), admin, req.ID); err != nil {
		t.Fatalf("Reject after reopen: %v", err)
	}
	if rec := store.records["u1_2026-08-01"]; rec.ClockOut != "18:00" {
		t.Errorf("reject after reopen should restore the original: %+v", rec)
	}
}

func TestReopenBlockedByNewerPendingRequest(t *testing.T) {
	svc, _ := setupWorkflow(t)
	first := submit(t, svc, Edits{ClockOut: strPtr("20:30")})
	if _, err := svc.Approve(context.Background(), admin, first.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	// The day is free again, so a second request can go in.
	second := submit(t, svc, Edits{ClockOut: strPtr("21:00")})

	// The unhandled slot for the day is taken; the old request stays decided.
	if _, err := svc.Reopen(context.Background(), admin, first.ID); !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("reopen with pending sibling: got %v, want ErrDuplicatePending", err)
	}
	got, err := svc.Get(context.Background(), admin, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("first request status = %q, want 承認", got.Status)
	}

	// Once the newer request is decided, the reopen goes through.
	if _, err := svc.Reject(context.Background(), admin, second.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, err := svc.Reopen(context.Background(), admin, first.ID); err != nil {
		t.Fatalf("Reopen after slot freed: %v", err)
	}
}

func TestBulkApprove(t *testing.T) {
	svc, store := setupWorkflow(t)
	store.addRecord(attendance.Record{
		UserID: "u1", Date: "2026-08-02",
		ClockIn: "09:00", ClockOut: "18:00", BreakTime: "01:00", WorkTime: "09:00", OverTime: timeclock.NotSet,
	})

	first := submit(t, svc, Edits{ClockOut: strPtr("19:00")})
	second, err := svc.Submit(context.Background(), employee, "2026-08-02", Edits{ClockIn: strPtr("08:30")}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// Decide one up front so the batch hits a guard failure.
	if _, err := svc.Reject(context.Background(), admin, second.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	result, err := svc.BulkApprove(context.Background(), admin, []string{first.ID, second.ID, "ghost"})
	if err != nil {
		t.Fatalf("BulkApprove: %v", err)
	}
	if len(result.Approved) != 1 || result.Approved[0] != first.ID {
		t.Errorf("approved = %v, want [%s]", result.Approved, first.ID)
	}
	if len(result.Failed) != 2 {
		t.Errorf("failed = %v, want entries for the rejected and the missing id", result.Failed)
	}
	if _, ok := result.Failed[second.ID]; !ok {
		t.Errorf("already-decided id missing from failures: %v", result.Failed)
	}
	if _, ok := result.Failed["ghost"]; !ok {
		t.Errorf("unknown id missing from failures: %v", result.Failed)
	}

	// The guard failure must not have blocked the valid item.
	if rec := store.records["u1_2026-08-01"]; rec.Status != attendance.StatusApproved {
		t.Errorf("first record status = %q, want 承認済み", rec.Status)
	}

	if _, err := svc.BulkApprove(context.Background(), employee, []string{first.ID}); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("employee bulk approve: got %v, want ErrPermissionDenied", err)
	}
}

func seedListFixtures(t *testing.T, svc *Service, store *mockStore) (unhandled, handled CorrectionRequest) {
	t.Helper()
	store.addRecord(attendance.Record{
		UserID: "u1", Date: "2026-08-02",
		ClockIn: "09:00", ClockOut: "18:00", BreakTime: "01:00", WorkTime: "09:00", OverTime: timeclock.NotSet,
	})
	unhandled = submit(t, svc, Edits{ClockOut: strPtr("19:00")})
	var err error
	handled, err = svc.Submit(context.Background(), employee, "2026-08-02", Edits{ClockIn: strPtr("08:30")}, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Approve(context.Background(), admin, handled.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	return unhandled, handled
}

// Every request is visible in exactly one of the two tab views.
func TestListViewPartition(t *testing.T) {
	svc, store := setupWorkflow(t)
	unhandledReq, handledReq := seedListFixtures(t, svc, store)

	unhandled, err := svc.List(context.Background(), admin, ListFilter{View: ViewUnhandled})
	if err != nil {
		t.Fatalf("List unhandled: %v", err)
	}
	handled, err := svc.List(context.Background(), admin, ListFilter{View: ViewHandled})
	if err != nil {
		t.Fatalf("List handled: %v", err)
	}

	if len(unhandled) != 1 || unhandled[0].ID != unhandledReq.ID {
		t.Errorf("unhandled view = %v", ids(unhandled))
	}
	if len(handled) != 1 || handled[0].ID != handledReq.ID {
		t.Errorf("handled view = %v", ids(handled))
	}

	all, err := svc.List(context.Background(), admin, ListFilter{View: ViewAll})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != len(unhandled)+len(handled) {
		t.Errorf("views do not partition: all=%d unhandled=%d handled=%d", len(all), len(unhandled), len(handled))
	}
}

func TestListScoping(t *testing.T) {
	svc, store := setupWorkflow(t)
	seedListFixtures(t, svc, store)

	other := auth.Session{UserID: "u2", Email: "tanaka@example.com"}
	mine, err := svc.List(context.Background(), other, ListFilter{View: ViewAll})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 0 {
		t.Errorf("employee sees someone else's requests: %v", ids(mine))
	}

	all, err := svc.List(context.Background(), admin, ListFilter{View: ViewAll})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin view = %v, want both requests", ids(all))
	}
}

func TestListSortByApplicant(t *testing.T) {
	svc, store := setupWorkflow(t)
	store.addRecord(attendance.Record{
		UserID: "u2", Date: "2026-08-01",
		ClockIn: "09:00", ClockOut: "18:00", BreakTime: "01:00", WorkTime: "09:00", OverTime: timeclock.NotSet,
	})
	submit(t, svc, Edits{ClockOut: strPtr("19:00")})
	tanaka := auth.Session{UserID: "u2", Email: "tanaka@example.com"}
	if _, err := svc.Submit(context.Background(), tanaka, "2026-08-01", Edits{ClockOut: strPtr("19:30")}, ""); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	list, err := svc.List(context.Background(), admin, ListFilter{View: ViewAll, SortBy: SortApplicant})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d requests", len(list))
	}
	if list[0].Applicant > list[1].Applicant {
		t.Errorf("applicants out of order: %q, %q", list[0].Applicant, list[1].Applicant)
	}
}

// Submissions spread over three days, all by the same applicant and all
// unhandled, so any primary sort must fall back to the date-desc tiebreak.
func seedSpreadSubmissions(t *testing.T, svc *Service, store *mockStore) []string {
	t.Helper()
	dates := []string{"2026-08-01", "2026-08-02", "2026-08-03"}
	ids := make([]string, len(dates))
	for i, date := range dates {
		if i > 0 {
			store.addRecord(attendance.Record{
				UserID: "u1", Date: date,
				ClockIn: "09:00", ClockOut: "18:00", BreakTime: "01:00", WorkTime: "09:00", OverTime: timeclock.NotSet,
			})
		}
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			t.Fatalf("bad fixture date %q: %v", date, err)
		}
		svc.now = func() time.Time { return day }
		req, err := svc.Submit(context.Background(), employee, date, Edits{ClockOut: strPtr("19:00")}, "")
		if err != nil {
			t.Fatalf("Submit %s: %v", date, err)
		}
		ids[i] = req.ID
	}
	return ids
}

func TestListDefaultOrder(t *testing.T) {
	svc, store := setupWorkflow(t)
	submitted := seedSpreadSubmissions(t, svc, store)

	list, err := svc.List(context.Background(), admin, ListFilter{View: ViewAll})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{submitted[2], submitted[1], submitted[0]}
	got := ids(list)
	if len(got) != len(want) {
		t.Fatalf("got %d requests, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("default order = %v, want newest submission first %v", got, want)
		}
	}
}

func TestListSortKeepsDateTiebreak(t *testing.T) {
	svc, store := setupWorkflow(t)
	submitted := seedSpreadSubmissions(t, svc, store)
	want := []string{submitted[2], submitted[1], submitted[0]}

	// One applicant and one status across the board: the primary key never
	// distinguishes anything, so the date-desc order must survive the re-sort.
	for _, sortBy := range []SortKey{SortApplicant, SortStatus} {
		list, err := svc.List(context.Background(), admin, ListFilter{View: ViewAll, SortBy: sortBy})
		if err != nil {
			t.Fatalf("List sort=%s: %v", sortBy, err)
		}
		got := ids(list)
		if len(got) != len(want) {
			t.Fatalf("sort=%s: got %d requests, want %d", sortBy, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("sort=%s order = %v, want date-desc tiebreak %v", sortBy, got, want)
			}
		}
	}
}

func TestGetScoping(t *testing.T) {
	svc, _ := setupWorkflow(t)
	req := submit(t, svc, Edits{ClockOut: strPtr("19:00")})

	if _, err := svc.Get(context.Background(), employee, req.ID); err != nil {
		t.Errorf("owner cannot read own request: %v", err)
	}
	other := auth.Session{UserID: "u2"}
	if _, err := svc.Get(context.Background(), other, req.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger read: got %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(context.Background(), admin, req.ID); err != nil {
		t.Errorf("admin read: %v", err)
	}
}

func ids(reqs []CorrectionRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}
