package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
)

// NewLocker creates the execution locker for lockURL: "memory" (or empty)
// for a single instance, a redis:// URL when instances share executions.
// The returned close function releases the connection.
func NewLocker(ctx context.Context, lockURL string) (locks.Locker, func() error, error) {
	switch {
	case lockURL == "" || lockURL == "memory":
		return locks.NewMemoryLocker(), func() error { return nil }, nil
	case strings.HasPrefix(lockURL, "redis://"), strings.HasPrefix(lockURL, "rediss://"):
		locker, err := locks.NewRedisLocker(ctx, lockURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis locker: %w", err)
		}

		return locker, locker.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock url: %s", lockURL)
	}
}
