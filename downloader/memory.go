package downloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Caches downloaded files in memory. Cache misses are optionally
// rate limited.
type MemoryDownloader struct {
	mutex sync.Mutex
	cache map[string]downloaderCacheEntry

	Limiter *rate.Limiter
	TimeNow func() time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		cache:   make(map[string]downloaderCacheEntry),
		TimeNow: time.Now,
	}
}

// Limits requests to rps per second, with bursts up to burst.
func NewRateLimitedDownloader(rps float64, burst int) *MemoryDownloader {
	d := NewMemoryDownloader()
	d.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return d
}

type downloaderCacheEntry struct {
	data       []byte
	expiration time.Time
}

func (d *MemoryDownloader) lookup(url string) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, ok := d.cache[url]
	if !ok || !entry.expiration.After(d.TimeNow()) {
		return nil, false
	}
	return entry.data, true
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if options.Cache {
		if data, ok := d.lookup(url); ok {
			return data, nil
		}
	}

	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body, err := HTTPGet(ctx, url, headers, options)
	if err != nil {
		return nil, err
	}

	if options.Cache {
		d.mutex.Lock()
		d.cache[url] = downloaderCacheEntry{
			data:       body,
			expiration: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()
	}

	return body, nil
}
