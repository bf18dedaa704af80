package email

const (
	subjectFirstReminderFmt  = "Reminder: invoice %s is overdue"
	subjectSecondReminderFmt = "Second reminder: invoice %s is still unpaid"
	subjectFinalReminderFmt  = "Final reminder: invoice %s"
)

func reminderSubjectFormat(level int) string {
	switch level {
	case 1:
		return subjectFirstReminderFmt
	case 2:
		return subjectSecondReminderFmt
	default:
		return subjectFinalReminderFmt
	}
}
