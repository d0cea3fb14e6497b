package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/penwyp/go-trace-project/internal/util"
)

// PropertyStore persists key/value properties per resource path.
// Properties follow their resource through copy, move and delete.
type PropertyStore interface {
	Get(p, key string) (string, bool, error)
	Set(p, key, value string) error
	Delete(p, key string) error
	Properties(p string) (map[string]string, error)
	CopyTree(src, dst string) error
	MoveTree(src, dst string) error
	DeleteTree(p string) error
	Close() error
}

// PropertiesConfig configures the BadgerDB property store.
type PropertiesConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string
	// InMemory keeps everything in memory, for tests.
	InMemory bool
	// SyncWrites makes every write durable before returning.
	SyncWrites bool
}

// DefaultPropertiesConfig returns a durable configuration stored at dir.
func DefaultPropertiesConfig(dir string) PropertiesConfig {
	return PropertiesConfig{Path: dir, SyncWrites: true}
}

// InMemoryPropertiesConfig returns a configuration for tests.
func InMemoryPropertiesConfig() PropertiesConfig {
	return PropertiesConfig{InMemory: true}
}

// BadgerProperties is a PropertyStore backed by BadgerDB.
// Keys are laid out as "p:" + path + "\x00" + key so that a prefix scan
// over "p:" + path finds a resource and all its descendants.
type BadgerProperties struct {
	db *badger.DB
}

const (
	propertyPrefix = "p:"
	keySeparator   = "\x00"
)

// badgerLogger routes BadgerDB internals to the application logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	util.LogErrorf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	util.LogWarnf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	util.LogDebugf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	util.LogDebugf("badger: "+strings.TrimSuffix(format, "\n"), args...)
}

// OpenProperties opens a BadgerDB property store.
func OpenProperties(cfg PropertiesConfig) (*BadgerProperties, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent property store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create property store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open property store: %w", err)
	}
	return &BadgerProperties{db: db}, nil
}

func propertyKey(p, key string) []byte {
	return []byte(propertyPrefix + p + keySeparator + key)
}

func splitPropertyKey(k []byte) (string, string) {
	s := strings.TrimPrefix(string(k), propertyPrefix)
	i := strings.Index(s, keySeparator)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// Get returns the property value and whether it was set.
func (b *BadgerProperties) Get(p, key string) (string, bool, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(propertyKey(p, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get property %s of %s: %w", key, p, err)
	}
	return value, true, nil
}

// Set stores a property value.
func (b *BadgerProperties) Set(p, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(propertyKey(p, key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set property %s of %s: %w", key, p, err)
	}
	return nil
}

// Delete removes one property.
func (b *BadgerProperties) Delete(p, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(propertyKey(p, key))
	})
	if err != nil {
		return fmt.Errorf("delete property %s of %s: %w", key, p, err)
	}
	return nil
}

// Properties returns every property of resource p.
func (b *BadgerProperties) Properties(p string) (map[string]string, error) {
	props := make(map[string]string)
	prefix := []byte(propertyPrefix + p + keySeparator)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			_, key := splitPropertyKey(item.Key())
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			props[key] = string(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list properties of %s: %w", p, err)
	}
	return props, nil
}

type propertyEntry struct {
	path  string
	key   string
	value []byte
}

// tree collects the properties of p and every resource below it.
func (b *BadgerProperties) tree(txn *badger.Txn, p string) ([]propertyEntry, error) {
	var entries []propertyEntry
	prefix := []byte(propertyPrefix + p)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		rest := item.Key()[len(prefix):]
		if p != "" && !bytes.HasPrefix(rest, []byte(keySeparator)) && !bytes.HasPrefix(rest, []byte("/")) {
			// sibling sharing a name prefix, e.g. "a" vs "ab"
			continue
		}
		path, key := splitPropertyKey(item.Key())
		val, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		entries = append(entries, propertyEntry{path: path, key: key, value: val})
	}
	return entries, nil
}

func rebase(src, dst, p string) string {
	if p == src {
		return dst
	}
	return Join(dst, Rel(src, p))
}

// CopyTree duplicates the properties of src and its descendants under dst.
func (b *BadgerProperties) CopyTree(src, dst string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entries, err := b.tree(txn, src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := txn.Set(propertyKey(rebase(src, dst, e.path), e.key), e.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("copy properties %s to %s: %w", src, dst, err)
	}
	return nil
}

// MoveTree moves the properties of src and its descendants under dst.
func (b *BadgerProperties) MoveTree(src, dst string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entries, err := b.tree(txn, src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := txn.Delete(propertyKey(e.path, e.key)); err != nil {
				return err
			}
			if err := txn.Set(propertyKey(rebase(src, dst, e.path), e.key), e.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("move properties %s to %s: %w", src, dst, err)
	}
	return nil
}

// DeleteTree removes the properties of p and its descendants.
func (b *BadgerProperties) DeleteTree(p string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entries, err := b.tree(txn, p)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := txn.Delete(propertyKey(e.path, e.key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete properties of %s: %w", p, err)
	}
	return nil
}

// Close closes the database.
func (b *BadgerProperties) Close() error {
	return b.db.Close()
}
