// Package scheduler runs the reminder tick: at a fixed interval it samples
// the clock once, fires PENDING reminders whose time has come, classifies
// the ones it finds long overdue as MISSED and hands messages to a Notifier
// outside the book lock.
//
// The tick runs on a robfig/cron runner next to an optional resync job that
// rebuilds the book from the task store.
package scheduler
