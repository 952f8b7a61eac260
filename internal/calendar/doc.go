// Package calendar wraps the Google Calendar v3 API for busymirror.
//
// It exposes the handful of operations the sync engine needs: delta listing of
// the source calendar with sync tokens and pagination, text search of the
// mirror calendar, insertion of busy placeholders, deletion of single events
// and series, and lookup of the account's default calendar.
//
// Source events are classified once, when they are read, into a Shape:
// Cancelled, AllDay, Timed, Recurring or Unknown.
package calendar
