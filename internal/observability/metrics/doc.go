// Package metrics exposes Prometheus collectors for slot derivation, proof
// assembly, the job pipeline and the HTTP surface.
package metrics
