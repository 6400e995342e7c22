package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrNotFound = errors.New("not found")

	// account errors
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountDisabled = errors.New("account is disabled")

	// sync errors
	ErrSyncBusy        = errors.New("sync already in progress for account")
	ErrStaleCheckpoint = errors.New("checkpoint was advanced by another writer")

	// extraction errors
	ErrExtractionTimeout = errors.New("extraction timed out")
	ErrUnsupportedType   = errors.New("unsupported content type")
)
