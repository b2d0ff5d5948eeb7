package wfc

import "errors"

var (
	ErrNotConnected     = errors.New("wfc: engine not connected")
	ErrEmptyStateSet    = errors.New("wfc: narrowing would empty the state set")
	ErrAlreadyCollapsed = errors.New("wfc: cell already collapsed to a different state")
	ErrStateNotPossible = errors.New("wfc: state not in possible set")
	ErrChunkExists      = errors.New("wfc: chunk already exists")
	ErrChunkNotFound    = errors.New("wfc: chunk not found")
	ErrOutOfBounds      = errors.New("wfc: position outside chunk")
)
