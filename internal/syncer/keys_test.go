package syncer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeysFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadKeysFile(t *testing.T) {
	path := writeKeysFile(t, "CPO-1\n\n# backfill batch 2\n  FULLSTACK-204  \nCPO-33\n")

	keys, err := ReadKeysFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"CPO-1", "FULLSTACK-204", "CPO-33"}, keys)
}

func TestReadKeysFileMalformed(t *testing.T) {
	path := writeKeysFile(t, "CPO-1\nnot a key\nCPO-2\n")

	keys, err := ReadKeysFile(path)
	require.Error(t, err)
	assert.Nil(t, keys, "one bad line rejects the whole file")
	assert.Contains(t, err.Error(), ":2:")
	assert.Contains(t, err.Error(), "not a key")
}

func TestReadKeysFileMissing(t *testing.T) {
	_, err := ReadKeysFile(filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}
