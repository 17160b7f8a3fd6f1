package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedType(fsType string) fsTyper {
	return func(string) (string, error) { return fsType, nil }
}

func TestCheckLocalFS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		fsType string
		remote bool
	}{
		{fsType: "apfs"},
		{fsType: "0xef53"},
		{fsType: ""},
		{fsType: "nfs", remote: true},
		{fsType: "SMBFS", remote: true},
		{fsType: " cifs ", remote: true},
		{fsType: "9p", remote: true},
	}

	for _, tt := range tests {
		t.Run(tt.fsType, func(t *testing.T) {
			t.Parallel()
			dbPath := filepath.Join(t.TempDir(), "history.db")
			err := checkLocalFSWith(dbPath, fixedType(tt.fsType))
			if !tt.remote {
				assert.NoError(t, err)
				return
			}
			var netErr *NetworkFSError
			require.ErrorAs(t, err, &netErr)
			assert.Equal(t, dbPath, netErr.Path)
			assert.Contains(t, err.Error(), "--history-db")
		})
	}
}

func TestCheckLocalFSProbesExistingAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var probed string
	err := checkLocalFSWith(filepath.Join(root, "not", "yet", "history.db"), func(path string) (string, error) {
		probed = path
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, probed)
}

func TestCheckLocalFSDetectorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("statfs failed")
	err := checkLocalFSWith(filepath.Join(t.TempDir(), "history.db"), func(string) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestFilesystemTypeOnTempDir(t *testing.T) {
	t.Parallel()

	_, err := filesystemType(t.TempDir())
	assert.NoError(t, err)
}
