// Package domain contains the core entities of the fetch-and-analyze pipeline:
// runs, their per-URL items, fetched documents and the analysis computed for
// them. It is independent of any specific infrastructure or delivery mechanism.
package domain
