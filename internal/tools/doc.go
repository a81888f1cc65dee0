// Package tools provides the bounded shell executor shared by the probe,
// command and tunnel modules.
//
// Ownership boundary:
// - command execution (bash -c) with output caps and timeouts
//
// - external tool existence checks
//
// Every execution resolves to an ExecResult. Failures are reported in the
// result, never as a Go error or panic.
package tools
