package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_NotifyTriggersAreRowLevel(t *testing.T) {
	up, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000003_row_level_notify.up.sql"))
	require.NoError(t, err)
	sql := string(up)

	for _, trigger := range []string{"visitors_changed", "feedback_changed", "detailed_feedback_changed"} {
		assert.Contains(t, sql, "CREATE TRIGGER "+trigger)
	}
	assert.Equal(t, 3, strings.Count(sql, "FOR EACH ROW"))
	assert.NotContains(t, sql, "FOR EACH STATEMENT")
}
