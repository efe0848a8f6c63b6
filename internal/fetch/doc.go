// Package fetch turns URLs into task producers that download a document.
// Each producer issues a GET bound to the producer's context and reports the
// network wait as a suspension to the batch runner that owns it.
package fetch
