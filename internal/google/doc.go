// Package google provides OAuth2 authentication and token management for the
// Google Calendar API.
//
// OAuth client credentials come from a downloaded credentials JSON file
// (GOOGLE_CREDENTIALS_FILE) or from GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.
// Per-account tokens are stored as JSON files in the token directory and are
// produced outside busymirror. Refreshed tokens are written back to disk.
//
// The TokenProvider interface allows different token sources to be plugged in.
package google
