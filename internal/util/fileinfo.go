package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileInfo contains the identity of a storage node without following links.
type FileInfo struct {
	Size   int64  // Size in bytes
	Inode  uint64 // Inode number (unique file identifier on Unix-like systems)
	IsDir  bool
	IsLink bool
}

// GetFileInfo retrieves file information for path, reporting symlinks
// as links instead of resolving them.
// Supported on Linux and macOS.
func GetFileInfo(path string) (*FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return nil, fmt.Errorf("lstat %s: %w", path, err)
	}

	mode := uint32(st.Mode) & unix.S_IFMT
	return &FileInfo{
		Size:   st.Size,
		Inode:  uint64(st.Ino),
		IsDir:  mode == unix.S_IFDIR,
		IsLink: mode == unix.S_IFLNK,
	}, nil
}
