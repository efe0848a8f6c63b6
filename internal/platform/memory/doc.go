// Package memory provides an in-process implementation of store.RunStore.
// Runs live only as long as the process; every value crossing the store
// boundary is deep-copied so callers never share mutable state with it.
package memory
