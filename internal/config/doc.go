// Package config loads the busymirror configuration file.
//
// The file is YAML. Every key has a default, so a missing file is valid, and
// most keys can be overridden by BUSYMIRROR_* environment variables. Load
// applies, in order: defaults, the file, the environment, then Normalize.
//
// Example:
//
//	source:
//	  calendar_id: me@example.com
//	mirror:
//	  calendar_id: public@example.com
//	lock:
//	  timeout: 60s
//	state:
//	  type: sqlite
//	watch:
//	  schedule: "*/15 * * * *"
package config
