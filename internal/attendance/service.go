package attendance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"timesheet/internal/timeclock"
)

var (
	ErrAlreadyClockedIn  = errors.New("already clocked in today")
	ErrAlreadyClockedOut = errors.New("already clocked out today")
	ErrNotClockedIn      = errors.New("not clocked in yet")
	ErrNotFound          = errors.New("attendance record not found")
	ErrBadInput          = errors.New("invalid input")
)

var yearMonthRe = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests substitute an in-memory map.
type Store interface {
	Get(ctx context.Context, userID, date string) (*Record, error)
	Upsert(ctx context.Context, rec Record) error
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	Settings(ctx context.Context, userID string) (minutes int, found bool, err error)
	SaveSettings(ctx context.Context, userID string, minutes int) error
}

// Service coordinates clock punches and derived time for attendance records.
type Service struct {
	store           Store
	loc             *time.Location
	standardMinutes int
	defaultBreak    string
	now             func() time.Time
}

// NewService creates a service. standardMinutes is the fallback shift length
// for users without saved settings; defaultBreak is applied at clock-out when
// no break was recorded.
func NewService(store Store, loc *time.Location, standardMinutes int, defaultBreak string) *Service {
	if loc == nil {
		loc = time.Local
	}
	if standardMinutes <= 0 {
		standardMinutes = 480
	}
	return &Service{
		store:           store,
		loc:             loc,
		standardMinutes: standardMinutes,
		defaultBreak:    defaultBreak,
		now:             time.Now,
	}
}

// ClockIn records today's clock-in time. A second punch on the same day is
// rejected rather than overwritten.
func (s *Service) ClockIn(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("user id required")
	}
	now := s.now().In(s.loc)
	date := now.Format("2006-01-02")

	existing, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if existing != nil && existing.ClockIn != timeclock.NotSet {
		return Record{}, ErrAlreadyClockedIn
	}

	rec := Record{
		UserID:    userID,
		Date:      date,
		ClockIn:   now.Format("15:04"),
		ClockOut:  timeclock.NotSet,
		BreakTime: timeclock.NotSet,
		WorkTime:  timeclock.NotSet,
		OverTime:  timeclock.NotSet,
		Status:    StatusUnset,
	}
	rec.ID = RecordID(userID, date)
	if err := s.store.Upsert(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	return rec, nil
}

// ClockOut records today's clock-out time and derives work time, the
// break-adjusted actual time and overtime against the user's standard shift.
func (s *Service) ClockOut(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("user id required")
	}
	now := s.now().In(s.loc)
	date := now.Format("2006-01-02")

	rec, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if rec == nil || rec.ClockIn == timeclock.NotSet {
		return Record{}, ErrNotClockedIn
	}
	if rec.ClockOut != timeclock.NotSet {
		return Record{}, ErrAlreadyClockedOut
	}

	rec.ClockOut = now.Format("15:04")
	if rec.BreakTime == timeclock.NotSet && s.defaultBreak != "" {
		rec.BreakTime = s.defaultBreak
	}
	s.Derive(ctx, rec)

	if err := s.store.Upsert(ctx, *rec); err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	return *rec, nil
}

// Derive recomputes WorkTime and OverTime from the record's raw fields.
// Called at clock-out and again whenever a correction lands.
func (s *Service) Derive(ctx context.Context, rec *Record) {
	rec.WorkTime = timeclock.WorkTime(rec.ClockIn, rec.ClockOut)
	actual := timeclock.ActualWorkTime(rec.WorkTime, rec.BreakTime)
	rec.OverTime = timeclock.OverTime(actual, s.StandardMinutes(ctx, rec.UserID))
}

// Today returns the user's record for the current date, or ErrNotFound.
func (s *Service) Today(ctx context.Context, userID string) (Record, error) {
	date := s.now().In(s.loc).Format("2006-01-02")
	rec, err := s.store.Get(ctx, userID, date)
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// MonthReport bundles a month's records with their summed durations.
// Totals are timeclock sums: the sentinel when no day contributed.
type MonthReport struct {
	Month       string   `json:"month"`
	Records     []Record `json:"records"`
	TotalWork   string   `json:"total_work"`
	TotalActual string   `json:"total_actual"`
	TotalOver   string   `json:"total_over"`
}

// Month returns the user's records for one "YYYY-MM" month, oldest first,
// with monthly totals.
func (s *Service) Month(ctx context.Context, userID, yearMonth string) (MonthReport, error) {
	if !yearMonthRe.MatchString(yearMonth) {
		return MonthReport{}, fmt.Errorf("%w: month %q, want YYYY-MM", ErrBadInput, yearMonth)
	}
	all, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return MonthReport{}, fmt.Errorf("list records: %w", err)
	}

	report := MonthReport{Month: yearMonth}
	var works, actuals, overs []string
	for _, rec := range all {
		if len(rec.Date) < 7 || rec.Date[:7] != yearMonth {
			continue
		}
		report.Records = append(report.Records, rec)
		works = append(works, rec.WorkTime)
		actuals = append(actuals, timeclock.ActualWorkTime(rec.WorkTime, rec.BreakTime))
		overs = append(overs, rec.OverTime)
	}
	sort.Slice(report.Records, func(i, j int) bool {
		return report.Records[i].Date < report.Records[j].Date
	})
	report.TotalWork = timeclock.Sum(works)
	report.TotalActual = timeclock.Sum(actuals)
	report.TotalOver = timeclock.Sum(overs)
	return report, nil
}

// YearMonths returns the distinct "YYYY-MM" values the user has records in,
// newest first. Feeds the history month selector.
func (s *Service) YearMonths(ctx context.Context, userID string) ([]string, error) {
	all, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	seen := make(map[string]bool)
	var months []string
	for _, rec := range all {
		if len(rec.Date) < 7 {
			continue
		}
		ym := rec.Date[:7]
		if !seen[ym] {
			seen[ym] = true
			months = append(months, ym)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

// StandardMinutes returns the user's configured shift length, falling back to
// the service default when unset or unreadable.
func (s *Service) StandardMinutes(ctx context.Context, userID string) int {
	minutes, found, err := s.store.Settings(ctx, userID)
	if err != nil || !found || minutes <= 0 {
		return s.standardMinutes
	}
	return minutes
}

// SaveStandardMinutes stores the user's shift length.
func (s *Service) SaveStandardMinutes(ctx context.Context, userID string, minutes int) error {
	if minutes <= 0 || minutes > 24*60 {
		return fmt.Errorf("%w: standard minutes out of range: %d", ErrBadInput, minutes)
	}
	return s.store.SaveSettings(ctx, userID, minutes)
}
