// Package locker serializes event handling per contact.
package locker

import (
	"context"
	"errors"
)

// ErrLockTimeout indicates the lock could not be acquired before the context ended.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Unlock releases a held lock.
type Unlock func()

// Locker grants exclusive access to a key.
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)
	Close() error
}

// ContactKey builds the lock key of a contact on a channel.
func ContactKey(channelID, externalID string) string {
	return "dmflow:lock:contact:" + channelID + ":" + externalID
}
