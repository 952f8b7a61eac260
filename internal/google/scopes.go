package google

import calendar "google.golang.org/api/calendar/v3"

// DefaultOAuthScopes are the scopes busymirror needs. The calendar scope
// covers reading the source calendar and writing the mirror calendar.
var DefaultOAuthScopes = []string{
	calendar.CalendarScope,
}
