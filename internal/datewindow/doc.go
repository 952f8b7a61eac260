// Package datewindow produces date boundaries relative to "now".
//
// The reconciliation engine uses a lower bound (now minus the lookback) for
// full resyncs, and the mirror adapter searches a symmetric window around now
// when looking for correlated events. Both go through a Clock so tests can pin
// the current time.
package datewindow
