package domain

import "time"

const (
	// MaxReminderLevel is the escalation cap. Invoices at this level are never claimed again.
	MaxReminderLevel = 3
	// SecondReminderDelay is the wait after the first reminder before the second is due.
	SecondReminderDelay = 7 * 24 * time.Hour
	// FinalReminderDelay is the wait after the second reminder before the final notice is due.
	FinalReminderDelay = 14 * 24 * time.Hour
)

// NextEligibleLevel reports whether an invoice is due for its next reminder at
// now, and which level the reminder would advance it to. Rules are evaluated in
// order and the first match wins:
//
//   - not eligible unless status is pending, the due date is set and level < 3
//   - level 0: eligible once the due date has passed (any amount past due)
//   - level 1: eligible once the last reminder is at least 7 days old
//   - level 2: eligible once the last reminder is at least 14 days old
//
// Due dates are calendar days; an invoice due on 2024-01-01 is past due from
// 2024-01-02 00:00 UTC, not from the first instant after midnight on the due day.
// The claim SQL in the repository package mirrors this table.
func NextEligibleLevel(status InvoiceStatus, dueDate *time.Time, level int, lastSentAt *time.Time, now time.Time) (int, bool) {
	if status != InvoiceStatusPending || dueDate == nil || level >= MaxReminderLevel || level < 0 {
		return level, false
	}

	switch level {
	case 0:
		return 1, startOfDay(now).After(startOfDay(*dueDate))
	case 1:
		return 2, lastSentAt != nil && !lastSentAt.After(now.Add(-SecondReminderDelay))
	case 2:
		return 3, lastSentAt != nil && !lastSentAt.After(now.Add(-FinalReminderDelay))
	}
	return level, false
}

// IsEligible is NextEligibleLevel without the level.
func IsEligible(status InvoiceStatus, dueDate *time.Time, level int, lastSentAt *time.Time, now time.Time) bool {
	_, ok := NextEligibleLevel(status, dueDate, level, lastSentAt, now)
	return ok
}

func startOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
