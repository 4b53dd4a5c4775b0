package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "db")
	p, err := Init(root)
	require.NoError(t, err)

	for _, dir := range []string{p.Store, p.Audit, p.Retention} {
		fi, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir(), dir)
	}
}

func TestEnsureStateDirsRejectsFile(t *testing.T) {
	root := t.TempDir()
	p := PathsFor(root)
	require.NoError(t, os.WriteFile(p.Store, []byte("x"), 0o600))
	assert.Error(t, EnsureStateDirs(p))
}
