package query

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusPending means no data and no error yet.
	StatusPending Status = iota
	// StatusSuccess means the last fetch succeeded.
	StatusSuccess
	// StatusError means the last fetch failed. Data from an earlier success may still be present.
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

// ErrTypeMismatch is returned when a key's cached value is read as a different type.
var ErrTypeMismatch = errors.New("query: cached value has a different type")

// State is what a consumer sees for one key.
type State[T any] struct {
	Data    T
	HasData bool
	// Err is the error of the most recent failed fetch, cleared on success.
	Err            error
	Status         Status
	UpdatedAt      time.Time
	ErrorUpdatedAt time.Time
	IsStale        bool
	IsFetching     bool
	Invalidated    bool
}

// snapshot is an untyped copy of an entry taken under the client lock.
type snapshot struct {
	data           any
	hasData        bool
	err            error
	updatedAt      time.Time
	errorUpdatedAt time.Time
	fetching       bool
	invalidated    bool
	stale          bool
	observers      int
}

func (s snapshot) status() Status {
	switch {
	case s.err != nil:
		return StatusError
	case s.hasData:
		return StatusSuccess
	default:
		return StatusPending
	}
}

func stateOf[T any](key Key, s snapshot) State[T] {
	st := State[T]{
		Err:            s.err,
		Status:         s.status(),
		UpdatedAt:      s.updatedAt,
		ErrorUpdatedAt: s.errorUpdatedAt,
		IsStale:        s.stale,
		IsFetching:     s.fetching,
		Invalidated:    s.invalidated,
	}
	if !s.hasData {
		return st
	}
	v, ok := s.data.(T)
	if !ok {
		var zero T
		st.Err = fmt.Errorf("%w: key %s holds %T, want %T", ErrTypeMismatch, key, s.data, zero)
		st.Status = StatusError
		return st
	}
	st.Data = v
	st.HasData = true
	return st
}
