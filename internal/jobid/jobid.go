// Package jobid defines the opaque, prefixed identifier assigned to every
// job at construction time.
package jobid

import "go.jetify.com/typeid"

// Prefix identifies the typeid namespace used for job identifiers.
type Prefix struct{}

// Prefix returns the job id prefix "job".
func (Prefix) Prefix() string { return "job" }

// ID is the job identifier type. It is generated exactly once, at job
// construction, and never changes for the lifetime of the job.
type ID struct {
	typeid.TypeID[Prefix]
}

// New returns a freshly generated ID.
func New() (ID, error) {
	return typeid.New[ID]()
}
