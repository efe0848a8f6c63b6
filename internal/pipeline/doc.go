// Package pipeline runs the fetch-then-analyze workflow on top of the task
// package: every URL of a run is fetched concurrently, the fetched documents
// are analyzed on a bounded worker pool, and the per-URL outcome is recorded
// on the run. A Dispatcher executes submitted runs in the background.
package pipeline
