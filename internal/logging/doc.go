// Package logging builds the slog loggers used across perch.
//
// Two output formats are supported: a compact console format for
// interactive use and JSON for log shipping. Component loggers attach a
// stable "component" attribute which the console handler folds into the
// message prefix.
package logging
