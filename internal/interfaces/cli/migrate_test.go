package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/BOMMesh/pkg/errors"
)

func TestMigrate_RequiresDatabase(t *testing.T) {
	for _, sub := range [][]string{{"up"}, {"down"}, {"status"}, {"force", "1"}} {
		args := append([]string{"migrate"}, sub...)
		args = append(args, "--config", writeConfig(t, quietConfig))
		_, err := executeRoot(t, args...)
		require.Error(t, err, sub)
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), sub)
	}
}

func TestMigrate_ForceRejectsBadVersion(t *testing.T) {
	_, err := executeRoot(t, "migrate", "force", "abc", "--config", writeConfig(t, quietConfig))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestMigrationStatus_String(t *testing.T) {
	s := migrationStatus{Version: 2, Files: []string{"a", "b", "c", "d"}}
	assert.Equal(t, "schema version 2 (clean), 4 migration files embedded", s.String())
	s.Dirty = true
	assert.Contains(t, s.String(), "(dirty)")
}
