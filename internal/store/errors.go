package store

import "errors"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoIntelResult    = errors.New("no intel result to save")
	ErrTaskNotFound     = errors.New("task not found")
	ErrTaskProvisional  = errors.New("task is not confirmed yet")
	ErrNotAdmin         = errors.New("admin privileges required")
	ErrDropNotFound     = errors.New("intel drop not found")
	ErrEmptyTitle       = errors.New("title is required")
	ErrClosed           = errors.New("store is closed")
)
