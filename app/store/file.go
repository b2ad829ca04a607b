package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/go-pkgz/lgr"
)

// FileKV keeps every slot in its own file under location. Values are written to a temp file
// in the same directory and renamed over the slot file.
type FileKV struct {
	location string
}

// NewFileKV makes FileKV for given directory, creating it if needed
func NewFileKV(location string) (*FileKV, error) {
	if err := os.MkdirAll(location, 0o700); err != nil {
		return nil, fmt.Errorf("can't make store location %s: %w", location, err)
	}
	return &FileKV{location: location}, nil
}

// Get reads slot file, ok is false if the slot was never set
func (f *FileKV) Get(key string) (value string, ok bool, err error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(f.slotFile(key)) // #nosec G304 - key validated
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("can't read slot %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes slot file atomically
func (f *FileKV) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.location, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("can't create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		if e := os.Remove(tmpName); e != nil && !errors.Is(e, fs.ErrNotExist) {
			log.Printf("[WARN] can't remove temp file %s, %v", tmpName, e)
		}
	}

	if _, err = tmp.WriteString(value); err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return fmt.Errorf("can't write slot %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.slotFile(key)); err != nil {
		cleanup()
		return fmt.Errorf("can't replace slot %s: %w", key, err)
	}
	log.Printf("[DEBUG] slot %s saved, %d bytes", key, len(value))
	return nil
}

// Delete removes slot file, no-op if missing
func (f *FileKV) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := os.Remove(f.slotFile(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("can't delete slot %s: %w", key, err)
	}
	return nil
}

func (f *FileKV) slotFile(key string) string {
	return filepath.Join(f.location, key+".json")
}

func (f *FileKV) String() string {
	return "file:" + f.location
}
