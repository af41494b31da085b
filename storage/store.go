package storage

import (
	"context"
	"errors"
)

// KeyCurrentSessionID remembers the last activated work session.
const KeyCurrentSessionID = "currentSessionId"

// ErrWatchUnsupported is returned by stores that cannot observe changes
// made by other processes.
var ErrWatchUnsupported = errors.New("store does not support watching")

// Store is durable local key/value storage. A missing key is not an error.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Watcher is implemented by stores shared with other processes. fn is called
// with the key that changed. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}
