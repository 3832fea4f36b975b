package repository

import "errors"

var (
	// ErrStaleStatus means a conditional update matched no row because the
	// delivery left the expected status (or attempt count) before commit.
	ErrStaleStatus = errors.New("stale_status")
	// ErrAtCapacity means the transporter reached its active-delivery cap
	// between selection and commit.
	ErrAtCapacity = errors.New("at_capacity")
)
