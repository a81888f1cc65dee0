// Package probe owns telemetry aggregation for the dashboard.
//
// Ownership boundary:
// - ordered fallback chains per telemetry domain
//
// - one strict parser per source variant
//
// - fixed response shapes (absent data is null, never a missing key)
//
// Domains: battery, wifi, system, network. Every probe runs through a
// tools.Executor; samples are recomputed per call and never cached.
package probe
