// Package mirror treats the public calendar as a store of busy placeholders
// keyed by a correlation marker, the id of the private source event, which is
// written verbatim into each placeholder's description.
//
// Placeholders are never edited. A change in the source is applied by
// RemoveByMarker followed by Create.
package mirror
