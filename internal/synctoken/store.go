package synctoken

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/busymirror/internal/properties"
)

const (
	tokenKeyPrefix = "syncToken:"

	// DefaultCalendarKey holds a fallback source calendar id used when the
	// entry point is invoked without one (handy while debugging).
	DefaultCalendarKey = "debugSourceCalendarId"
)

// ErrEmptyCalendarID is returned when a calendar id is empty.
var ErrEmptyCalendarID = errors.New("calendar id cannot be empty")

// Store reads and writes sync tokens keyed by source calendar id.
type Store struct {
	props properties.Store
}

// New creates a Store on top of a property store.
func New(props properties.Store) *Store {
	return &Store{props: props}
}

func tokenKey(calendarID string) string {
	return tokenKeyPrefix + calendarID
}

// Get returns the stored token for calendarID. ok is false when no token is
// stored, which means a full resync is required.
func (s *Store) Get(ctx context.Context, calendarID string) (token string, ok bool, err error) {
	if calendarID == "" {
		return "", false, ErrEmptyCalendarID
	}
	token, ok, err = s.props.Get(ctx, tokenKey(calendarID))
	if err != nil {
		return "", false, fmt.Errorf("failed to get sync token for %s: %w", calendarID, err)
	}
	if token == "" {
		return "", false, nil
	}
	return token, ok, nil
}

// Set stores token as the new cursor for calendarID.
func (s *Store) Set(ctx context.Context, calendarID, token string) error {
	if calendarID == "" {
		return ErrEmptyCalendarID
	}
	if token == "" {
		return s.Clear(ctx, calendarID)
	}
	if err := s.props.Set(ctx, tokenKey(calendarID), token); err != nil {
		return fmt.Errorf("failed to set sync token for %s: %w", calendarID, err)
	}
	return nil
}

// Clear removes the cursor for calendarID, forcing a full resync next time.
func (s *Store) Clear(ctx context.Context, calendarID string) error {
	if calendarID == "" {
		return ErrEmptyCalendarID
	}
	if err := s.props.Delete(ctx, tokenKey(calendarID)); err != nil {
		return fmt.Errorf("failed to clear sync token for %s: %w", calendarID, err)
	}
	return nil
}

// DefaultCalendarID returns the fallback source calendar id, if one is set.
func (s *Store) DefaultCalendarID(ctx context.Context) (string, bool, error) {
	id, ok, err := s.props.Get(ctx, DefaultCalendarKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to get default calendar id: %w", err)
	}
	return id, ok && id != "", nil
}

// SetDefaultCalendarID stores the fallback source calendar id. An empty id
// removes it.
func (s *Store) SetDefaultCalendarID(ctx context.Context, calendarID string) error {
	var err error
	if calendarID == "" {
		err = s.props.Delete(ctx, DefaultCalendarKey)
	} else {
		err = s.props.Set(ctx, DefaultCalendarKey, calendarID)
	}
	if err != nil {
		return fmt.Errorf("failed to set default calendar id: %w", err)
	}
	return nil
}
