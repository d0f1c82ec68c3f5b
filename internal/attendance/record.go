package attendance

import "time"

// Status mirrors the values persisted by the original data set, so migrated
// records stay readable without a mapping table.
type Status string

const (
	StatusUnset    Status = ""
	StatusPending  Status = "申請中"
	StatusApproved Status = "承認済み"
	StatusRejected Status = "否認"
)

// Record is the authoritative per-day clock-in/out/break entry for one
// employee. Time fields hold "HH:MM" or the timeclock sentinel.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD
	ClockIn   string    `json:"clock_in"`
	ClockOut  string    `json:"clock_out"`
	BreakTime string    `json:"break_time"`
	WorkTime  string    `json:"work_time"`
	OverTime  string    `json:"over_time"`
	Status    Status    `json:"status"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID builds the record key. The "{userId}_{date}" format is load
// bearing: it matches the document ids of the system this data migrated from.
func RecordID(userID, date string) string {
	return userID + "_" + date
}
