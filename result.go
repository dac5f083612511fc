package firequery

import "time"

type Status uint8

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is the state of one cache entry as seen by its observers.
//
// Data keeps the last good value across errors: a failed refetch sets Err and
// StatusError but leaves Data and UpdatedAt alone.
type Result[V any] struct {
	Data      V
	Err       error
	Status    Status
	UpdatedAt time.Time // when Data was produced; zero if never

	FromStore bool // Data came from the provider rather than from Firestore
	Stale     bool // invalidated; a fresh value has not arrived yet

	settled bool // produced by a read or a listener, not by seeding
}

func (r Result[V]) IsLoading() bool { return r.Status == StatusPending }
func (r Result[V]) IsSuccess() bool { return r.Status == StatusSuccess }
func (r Result[V]) IsError() bool   { return r.Status == StatusError }

// HasData reports whether Data holds a value, even if the latest attempt failed.
func (r Result[V]) HasData() bool { return !r.UpdatedAt.IsZero() }
