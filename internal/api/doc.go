// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between HTTP clients and
// the run store and dispatcher: runs are created as pending, queued for
// background execution and polled by ID.
package api
