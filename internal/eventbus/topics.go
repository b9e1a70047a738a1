package eventbus

const (
	ReminderCreated   = "reminder.created"
	ReminderCancelled = "reminder.cancelled"
	ReminderTriggered = "reminder.triggered"
	ReminderMissed    = "reminder.missed"
	ReminderSurfaced  = "reminder.surfaced"

	TaskRecurred = "task.recurred"

	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDropped = "notifier.dropped"
	NotifierDeduped = "notifier.deduped"

	ConfigReloaded = "config.reloaded"
)
