package firequery

import (
	"errors"
	"strings"
)

var (
	ErrClosed       = errors.New("firequery: cache closed")
	ErrNoFetcher    = errors.New("firequery: request has no fetch function")
	ErrNoSubscriber = errors.New("firequery: request has no subscribe function")
	ErrNotStored    = errors.New("firequery: no persisted value")
)

// InvalidateError is returned by Invalidate when the persisted side of an
// invalidation only partly applied. The in-memory entry is stale either way.
type InvalidateError struct {
	Key     string
	BumpErr error // generation bump
	DelErr  error // snapshot delete
}

func (e *InvalidateError) Error() string {
	var b strings.Builder
	b.WriteString("firequery: invalidate ")
	b.WriteString(e.Key)
	b.WriteString(": ")
	sep := ""
	for _, part := range []struct {
		what string
		err  error
	}{{"gen bump", e.BumpErr}, {"delete", e.DelErr}} {
		if part.err == nil {
			continue
		}
		b.WriteString(sep + part.what + ": " + part.err.Error())
		sep = "; "
	}
	if sep == "" {
		b.WriteString("no cause recorded")
	}
	return b.String()
}

func (e *InvalidateError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.BumpErr, e.DelErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
