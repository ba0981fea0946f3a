package nodestore

import (
	"errors"
	"fmt"

	"github.com/LeJamon/goXRPLsync/internal/types"
)

var (
	ErrNotFound           = errors.New("node not found")
	ErrDataCorrupt        = errors.New("data corruption detected")
	ErrBackendClosed      = errors.New("backend is closed")
	ErrBackendOpen        = errors.New("backend already open")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// NodeStoreError wraps an error with additional context specific to the NodeStore.
type NodeStoreError struct {
	Operation string
	Hash      types.Hash256
	Backend   string
	Cause     error
}

func (e *NodeStoreError) Error() string {
	if e.Hash.IsZero() {
		return fmt.Sprintf("nodestore %s error on backend %s: %v", e.Operation, e.Backend, e.Cause)
	}
	return fmt.Sprintf("nodestore %s error on backend %s for hash %s: %v",
		e.Operation, e.Backend, e.Hash, e.Cause)
}

func (e *NodeStoreError) Unwrap() error {
	return e.Cause
}

func statusError(status Status) error {
	switch status {
	case OK:
		return nil
	case NotFound:
		return ErrNotFound
	case DataCorrupt:
		return ErrDataCorrupt
	default:
		return fmt.Errorf("backend status: %s", status)
	}
}
