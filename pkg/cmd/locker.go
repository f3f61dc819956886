package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/dmflow/pkg/locker"
)

// NewLocker creates the per-contact locker: redis:// or rediss:// URLs use
// Redis, anything else an in-process locker.
func NewLocker(ctx context.Context, logger *slog.Logger, lockerURL string) locker.Locker {
	if strings.HasPrefix(lockerURL, "redis://") || strings.HasPrefix(lockerURL, "rediss://") {
		l, err := locker.NewRedis(ctx, lockerURL, logger)
		if err != nil {
			panic(fmt.Errorf("failed to initialize redis locker: %w", err))
		}

		return l
	}

	return locker.NewMemory()
}
