// Package errors defines the coded error type shared by slot derivation,
// proof assembly and the job pipeline. Each code carries default severity and
// retry attributes so callers can decide policy without string matching.
package errors
