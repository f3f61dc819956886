package sqlbase

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrationManager_LatestVersion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		migrations map[int]string
		want       int
	}{
		{name: "none", migrations: nil, want: 0},
		{name: "single", migrations: map[int]string{1: "SELECT 1"}, want: 1},
		{name: "unordered", migrations: map[int]string{3: "c", 1: "a", 2: "b"}, want: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			manager := NewMigrationManager(slog.Default(), nil, tc.migrations)
			assert.Equal(t, tc.want, manager.LatestVersion())
		})
	}
}
