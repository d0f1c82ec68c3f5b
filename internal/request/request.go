// Package request implements the correction-request workflow: employees
// propose edits to past attendance entries and administrators approve,
// reject, or reopen them. Every transition keeps the request and its
// attendance record consistent inside one transaction.
package request

import (
	"errors"
	"time"
)

// Status is the authoritative workflow state, persisted with the values the
// original data set uses.
type Status string

const (
	StatusUnhandled Status = "未対応"
	StatusApproved  Status = "承認"
	StatusRejected  Status = "否認"
)

var (
	ErrNotFound          = errors.New("correction request not found")
	ErrNothingToSubmit   = errors.New("nothing to submit: no field differs from the record")
	ErrDuplicatePending  = errors.New("an unhandled request already exists for this date")
	ErrInvalidTransition = errors.New("request is not in a state that allows this transition")
	ErrPermissionDenied  = errors.New("administrator role required")
)

// FieldSet is the correctable slice of an attendance record. Values are
// "HH:MM" or the timeclock sentinel.
type FieldSet struct {
	ClockIn   string `json:"clockIn"`
	ClockOut  string `json:"clockOut"`
	BreakTime string `json:"breakTime"`
}

// Edits carries the employee's proposed changes; nil means "keep as is".
type Edits struct {
	ClockIn   *string `json:"clock_in"`
	ClockOut  *string `json:"clock_out"`
	BreakTime *string `json:"break_time"`
}

// CorrectionRequest is a proposed edit to one attendance record.
// Original is the snapshot taken at submission and never changes afterwards.
type CorrectionRequest struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AttendanceDate string    `json:"attendance_date"` // YYYY-MM-DD
	Applicant      string    `json:"applicant"`
	Date           string    `json:"date"`        // submission date, YYYY-MM-DD
	TargetDate     string    `json:"target_date"` // display copy of AttendanceDate
	Original       FieldSet  `json:"original_data"`
	Updated        FieldSet  `json:"updated_data"`
	Comment        string    `json:"comment,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Handled reports whether an administrator already decided this request.
func (r CorrectionRequest) Handled() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}
