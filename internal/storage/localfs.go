package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// NetworkFSError reports a database path on a network mount, where SQLite
// file locking is unreliable.
type NetworkFSError struct {
	Path   string
	FSType string
}

func (e *NetworkFSError) Error() string {
	return fmt.Sprintf("history database %s is on a %s network mount; SQLite needs a local disk for locking (set state.path or pass --history-db)",
		e.Path, e.FSType)
}

// remoteFSTypes are mount types that do not honour advisory locks reliably.
var remoteFSTypes = []string{"9p", "afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// fsTyper names the filesystem holding an existing path.
type fsTyper func(path string) (string, error)

func checkLocalFS(path string) error {
	return checkLocalFSWith(path, filesystemType)
}

func checkLocalFSWith(path string, typeOf fsTyper) error {
	probe, err := existingAncestor(path)
	if err != nil {
		return err
	}
	fsType, err := typeOf(probe)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %s: %w", probe, err)
	}
	if isRemoteFS(fsType) {
		return &NetworkFSError{Path: path, FSType: fsType}
	}
	return nil
}

// existingAncestor walks up from path to the first entry that exists, since
// the database and its directory may not have been created yet.
func existingAncestor(path string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	for {
		_, err := os.Stat(dir)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor of %s", path)
		}
		dir = parent
	}
}

func isRemoteFS(fsType string) bool {
	return slices.Contains(remoteFSTypes, strings.ToLower(strings.TrimSpace(fsType)))
}
