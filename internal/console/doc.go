// Package console presents the classified log to a person.
//
// TUI is a full-screen tcell view with a status line and single-key
// commands. Printer is the line-oriented alternative used with --plain or
// when stdout is not a terminal; it colors level tags with lipgloss.
//
// Neither type owns the supervisor or the classifier. They read through
// Model and act through Actions, which the app package implements.
package console
