package util

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

const logTimeLayout = "2006/01/02 15:04:05.000"

// encodeEntry renders entry as one line without the trailing newline.
// Text lines read: time [LEVEL] [request] element: message k=v ...
func encodeEntry(entry LogEntry, format LogFormat) ([]byte, error) {
	if format == FormatJSON {
		return sonic.Marshal(entry)
	}

	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(logTimeLayout))
	b.WriteString(" [")
	b.WriteString(entry.Level)
	b.WriteString("]")
	if entry.RequestID != "" {
		b.WriteString(" [")
		b.WriteString(entry.RequestID)
		b.WriteString("]")
	}
	if entry.Element != "" {
		b.WriteString(" ")
		b.WriteString(entry.Element)
		b.WriteString(":")
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return []byte(b.String()), nil
}

// ConsoleOutput writes entries to a stream such as stderr.
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
	format LogFormat
}

func NewConsoleOutput(writer io.Writer, format LogFormat) *ConsoleOutput {
	return &ConsoleOutput{writer: writer, format: format}
}

func (c *ConsoleOutput) Write(entry LogEntry) error {
	data, err := encodeEntry(entry, c.format)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.writer.Write(append(data, '\n'))
	return err
}

func (c *ConsoleOutput) Close() error { return nil }

// FileOutput appends entries to a file. Past maxSize the file is moved to
// <path>.1, replacing the previous generation, and a new one is started.
type FileOutput struct {
	mu      sync.Mutex
	path    string
	format  LogFormat
	maxSize int64
	file    *os.File
	size    int64
}

func NewFileOutput(path string, format LogFormat, maxSize int64) (*FileOutput, error) {
	f := &FileOutput{path: path, format: format, maxSize: maxSize}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileOutput) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	f.file = file
	f.size = info.Size()
	return nil
}

// BackupPath is where the previous generation of the log lives.
func (f *FileOutput) BackupPath() string {
	return f.path + ".1"
}

// rotate keeps logging to a fresh file even when the old one could not be
// moved aside.
func (f *FileOutput) rotate() error {
	closeErr := f.file.Close()
	f.file = nil
	renameErr := os.Rename(f.path, f.BackupPath())
	if errors.Is(renameErr, fs.ErrNotExist) {
		renameErr = nil
	}
	if err := f.open(); err != nil {
		return err
	}
	return errors.Join(closeErr, renameErr)
}

func (f *FileOutput) Write(entry LogEntry) error {
	data, err := encodeEntry(entry, f.format)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return fs.ErrClosed
	}
	var rotateErr error
	if f.maxSize > 0 && f.size > 0 && f.size+int64(len(data)) > f.maxSize {
		if rotateErr = f.rotate(); rotateErr != nil {
			rotateErr = fmt.Errorf("rotate %s: %w", f.path, rotateErr)
			if f.file == nil {
				return rotateErr
			}
		}
	}
	n, err := f.file.Write(data)
	f.size += int64(n)
	return errors.Join(rotateErr, err)
}

func (f *FileOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
