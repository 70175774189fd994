package alloc

import "errors"

var (
	// ErrNoSpace indicates that no free span large enough was found in
	// any permitted region. Non-fatal; the failure is logged.
	ErrNoSpace = errors.New("alloc: no free span large enough")
)
