// Package timeclock derives worked time, break-adjusted time and overtime
// from "HH:MM" wall-clock strings. Every function is total: malformed or
// out-of-range input degrades to NotSet rather than an error, and callers
// must never treat NotSet as zero.
package timeclock

import "fmt"

// NotSet marks a time or duration that was never recorded or could not be
// derived. It is the persisted value, not just a display placeholder.
const NotSet = "--:--"

// WorkTime returns clockOut minus clockIn as a zero-padded "HH:MM" duration.
// Overnight shifts are unsupported: clockOut at or before clockIn yields NotSet.
func WorkTime(clockIn, clockOut string) string {
	in, ok := clockMinutes(clockIn)
	if !ok {
		return NotSet
	}
	out, ok := clockMinutes(clockOut)
	if !ok {
		return NotSet
	}
	if out <= in {
		return NotSet
	}
	return Format(out - in)
}

// ActualWorkTime subtracts breakTime from workTime. A missing or invalid
// break counts as zero; a break that consumes the whole day yields NotSet.
func ActualWorkTime(workTime, breakTime string) string {
	work, ok := Minutes(workTime)
	if !ok {
		return NotSet
	}
	brk := 0
	if m, ok := Minutes(breakTime); ok {
		brk = m
	}
	actual := work - brk
	if actual <= 0 {
		return NotSet
	}
	return Format(actual)
}

// OverTime returns the part of actualWorkTime beyond standardMinutes,
// or NotSet when the day stayed at or under the standard shift length.
func OverTime(actualWorkTime string, standardMinutes int) string {
	actual, ok := Minutes(actualWorkTime)
	if !ok {
		return NotSet
	}
	if actual <= standardMinutes {
		return NotSet
	}
	return Format(actual - standardMinutes)
}

// Sum adds a list of "HH:MM" durations, skipping unset or malformed entries.
// It returns NotSet when no entry was valid, which is distinct from a valid
// total of "00:00".
func Sum(values []string) string {
	total := 0
	valid := 0
	for _, v := range values {
		m, ok := Minutes(v)
		if !ok {
			continue
		}
		total += m
		valid++
	}
	if valid == 0 {
		return NotSet
	}
	return Format(total)
}

// Minutes parses an "HH:MM" duration into whole minutes. Hours may exceed 24
// (monthly totals pass through here); minutes must stay below 60.
func Minutes(s string) (int, bool) {
	h, m, ok := split(s)
	if !ok {
		return 0, false
	}
	return h*60 + m, true
}

// Format renders whole minutes as a zero-padded "HH:MM" duration without
// wrapping at 24 hours, so 1800 minutes becomes "30:00".
func Format(minutes int) string {
	if minutes < 0 {
		return NotSet
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// clockMinutes parses a time of day, rejecting hours past 23.
func clockMinutes(s string) (int, bool) {
	h, m, ok := split(s)
	if !ok || h > 23 {
		return 0, false
	}
	return h*60 + m, true
}

func split(s string) (h, m int, ok bool) {
	if s == "" || s == NotSet {
		return 0, 0, false
	}
	colon := -1
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			colon = i
			break
		}
	}
	if colon < 1 || colon != len(s)-3 {
		return 0, 0, false
	}
	for i := 0; i < len(s); i++ {
		if i == colon {
			continue
		}
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, false
		}
	}
	for i := 0; i < colon; i++ {
		h = h*10 + int(s[i]-'0')
	}
	m = int(s[colon+1]-'0')*10 + int(s[colon+2]-'0')
	if m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
