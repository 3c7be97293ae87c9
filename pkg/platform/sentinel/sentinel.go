// Package sentinel defines infrastructure-level sentinel errors. Stores return
// these (optionally wrapped) so services can translate them into coded domain
// errors without knowing which backend produced them.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a record already occupies the key
// - ErrUnavailable: backend temporarily unavailable
package sentinel

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
