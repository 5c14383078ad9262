// Package manager owns the image pipeline lifecycle: ordered startup with
// warm-up, capacity-bounded admission to the single loaded pipeline, the
// per-request generation lifecycle with guaranteed ticket release, and
// non-blocking health snapshots.
//
// State is owned here, not in package-level globals, so every test can
// construct a fresh Manager.
package manager
