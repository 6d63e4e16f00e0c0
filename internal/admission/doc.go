// Package admission holds the pre-flight checks that gate every capture:
// duration ceilings, disk-usage forecasting, free-space verification, and
// storage path probing. All checks run before a subprocess is launched so
// resource exhaustion is rejected up front, never discovered mid-recording.
package admission
