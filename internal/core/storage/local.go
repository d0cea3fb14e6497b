package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/penwyp/go-trace-project/internal/util"
)

// Local is a Backend rooted at a directory of the local filesystem.
// Links are symbolic links.
type Local struct {
	root string
}

// NewLocal creates a backend rooted at dir, creating dir if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) abs(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." {
		return l.root, nil
	}
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *Local) info(p string) (Info, error) {
	full, err := l.abs(p)
	if err != nil {
		return Info{}, err
	}
	fi, err := util.GetFileInfo(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return Info{}, err
	}
	name := Base(p)
	isDir := fi.IsDir
	if fi.IsLink {
		// a link counts as a folder when its target is one
		if target, statErr := os.Stat(full); statErr == nil {
			isDir = target.IsDir()
		}
	}
	return Info{
		Name:   name,
		Path:   p,
		IsDir:  isDir,
		IsLink: fi.IsLink,
		Hidden: IsHidden(name),
		Inode:  fi.Inode,
	}, nil
}

// Stat returns resource information without following links.
func (l *Local) Stat(p string) (Info, error) {
	return l.info(p)
}

// Exists reports whether the resource exists.
func (l *Local) Exists(p string) bool {
	_, err := l.info(p)
	return err == nil
}

// Members lists the direct members of folder p sorted by name.
func (l *Local) Members(p string, includeHidden bool) ([]Info, error) {
	full, err := l.abs(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("list %s: %w", p, err)
	}

	members := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if !includeHidden && IsHidden(entry.Name()) {
			continue
		}
		info, err := l.info(Join(p, entry.Name()))
		if err != nil {
			// vanished between listing and stat
			util.LogDebug(fmt.Sprintf("Skipping member %s: %v", entry.Name(), err))
			continue
		}
		members = append(members, info)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].Name < members[j].Name
	})
	return members, nil
}

// Walk visits every non-hidden resource below folder p, parents first.
// Linked folders are never descended.
func (l *Local) Walk(p string, fn WalkFunc) error {
	members, err := l.Members(p, false)
	if err != nil {
		return err
	}
	for _, member := range members {
		if !fn(member) {
			continue
		}
		if member.IsDir && !member.IsLink {
			if err := l.Walk(member.Path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateFolder creates folder p and any missing parents.
func (l *Local) CreateFolder(p string) error {
	full, err := l.abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	return nil
}

// CreateFile creates file p with data. Missing parents are created.
func (l *Local) CreateFile(p string, data []byte) error {
	full, err := l.abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", p, ErrExists)
		}
		return fmt.Errorf("create file %s: %w", p, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write file %s: %w", p, err)
	}
	return nil
}

// Delete removes p recursively. Deleting a link removes only the link.
// Deleting a missing resource is not an error.
func (l *Local) Delete(p string) error {
	full, err := l.abs(p)
	if err != nil {
		return err
	}
	if full == l.root {
		return fmt.Errorf("refusing to delete storage root")
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// Copy copies src to dst. A shallow copy of a link creates a new link to
// the same target; otherwise content is copied.
func (l *Local) Copy(src, dst string, shallow bool) error {
	srcFull, err := l.abs(src)
	if err != nil {
		return err
	}
	dstFull, err := l.abs(dst)
	if err != nil {
		return err
	}
	info, err := l.info(src)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dstFull); err == nil {
		return fmt.Errorf("%s: %w", dst, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}

	if info.IsLink && shallow {
		target, err := linkTarget(srcFull)
		if err != nil {
			return err
		}
		if err := os.Symlink(target, dstFull); err != nil {
			return fmt.Errorf("link %s: %w", dst, err)
		}
		return nil
	}
	if err := copyTree(srcFull, dstFull); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Move renames src to dst, creating missing parents of dst.
func (l *Local) Move(src, dst string) error {
	srcFull, err := l.abs(src)
	if err != nil {
		return err
	}
	dstFull, err := l.abs(dst)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(srcFull); err != nil {
		return fmt.Errorf("%s: %w", src, ErrNotFound)
	}
	if _, err := os.Lstat(dstFull); err == nil {
		return fmt.Errorf("%s: %w", dst, ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

func linkTarget(full string) (string, error) {
	target, err := os.Readlink(full)
	if err != nil {
		return "", fmt.Errorf("read link %s: %w", full, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(full), target)
	}
	return target, nil
}

func copyTree(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return copyFile(src, dst, fi.Mode().Perm())
	}
	if err := os.MkdirAll(dst, fi.Mode().Perm()|0700); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		s := filepath.Join(src, entry.Name())
		d := filepath.Join(dst, entry.Name())
		if entry.Type()&fs.ModeSymlink != 0 {
			target, err := linkTarget(s)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, d); err != nil {
				return err
			}
			continue
		}
		if err := copyTree(s, d); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
