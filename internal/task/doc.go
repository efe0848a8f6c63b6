// Package task orchestrates fan-out/fan-in work in two separate stages.
//
// RunBatch starts a set of I/O-bound producers concurrently, one goroutine
// each, and gathers their outcomes in submission order regardless of the order
// in which they finish. RunStage then applies a CPU-bound transform to a
// materialized slice on a fixed-size WorkerPool, preserving input order in the
// outputs. The two stages share no state; the caller hands the successful
// values of one to the other.
//
// The package does not log. Every failure is returned with the index of the
// producer or input it came from so callers can correlate, report or retry.
package task
