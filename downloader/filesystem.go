package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Persists cached responses in a JSON file, so that repeated CLI
// invocations don't hit upstream APIs. Misses go to Upstream.
type Filesystem struct {
	Path     string
	Upstream Downloader
	Logger   *slog.Logger
	TimeNow  func() time.Time

	mutex   sync.Mutex
	entries map[string]fsEntry
}

type fsEntry struct {
	Body    []byte    `json:"body"`
	Expires time.Time `json:"expires"`
}

// Opens the cache at path. A missing file is an empty cache.
func NewFilesystem(path string) (*Filesystem, error) {
	fs := &Filesystem{
		Path:     path,
		Upstream: NewMemoryDownloader(),
		Logger:   slog.Default(),
		TimeNow:  time.Now,
		entries:  map[string]fsEntry{},
	}

	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}
	if err := json.Unmarshal(buf, &fs.entries); err != nil {
		return nil, fmt.Errorf("decoding cache: %w", err)
	}

	return fs, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		f.mutex.Lock()
		entry, found := f.entries[url]
		f.mutex.Unlock()

		if found && entry.Expires.After(f.TimeNow()) {
			f.Logger.Debug("cache hit", "url", url)
			return entry.Body, nil
		}
	}

	body, err := f.Upstream.Get(ctx, url, headers, GetOptions{
		MaxSize: options.MaxSize,
		Timeout: options.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if !options.Cache {
		return body, nil
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.entries[url] = fsEntry{Body: body, Expires: f.TimeNow().Add(options.CacheTTL)}
	if err := f.save(); err != nil {
		return nil, err
	}

	return body, nil
}

// Writes the cache via a temporary file. Expired entries are dropped.
// Caller holds the mutex.
func (f *Filesystem) save() error {
	now := f.TimeNow()
	for url, entry := range f.entries {
		if !entry.Expires.After(now) {
			delete(f.entries, url)
		}
	}

	buf, err := json.Marshal(f.entries)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*")
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}
