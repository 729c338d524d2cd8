package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/a3tai/asset-form-generator/internal/logger"
)

// Image is a resolved photo, normalized to PNG
type Image struct {
	ID     string
	Path   string
	Data   []byte
	Width  int
	Height int
}

// Options configures a Resolver
type Options struct {
	CacheDir     string
	MaxDimension int
	FetchTimeout time.Duration
}

// Stats counts resolver activity for the run summary
type Stats struct {
	Requests  int64 `json:"requests"`
	CacheHits int64 `json:"cache_hits"`
	DiskHits  int64 `json:"disk_hits"`
	Fetches   int64 `json:"fetches"`
	Resolved  int64 `json:"resolved"`
	Missing   int64 `json:"missing"`
}

type cacheEntry struct {
	img *Image
	ok  bool
}

// Resolver turns photo references into local images. Results, including
// misses, are cached per stable identifier and each identifier is fetched at
// most once per run even under concurrent callers.
type Resolver struct {
	opts       Options
	strategies []Strategy
	log        *logger.Logger

	mu    sync.RWMutex
	cache map[string]cacheEntry
	group singleflight.Group

	requests  atomic.Int64
	cacheHits atomic.Int64
	diskHits  atomic.Int64
	fetches   atomic.Int64
	resolved  atomic.Int64
	missing   atomic.Int64
}

// NewResolver creates a resolver trying strategies in order
func NewResolver(opts Options, log *logger.Logger, strategies ...Strategy) *Resolver {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &Resolver{
		opts:       opts,
		strategies: strategies,
		log:        log.With("component", "asset_resolver"),
		cache:      make(map[string]cacheEntry),
	}
}

// Resolve returns the image behind a photo cell. It never fails: a reference
// that no strategy can serve yields (nil, false).
func (r *Resolver) Resolve(ctx context.Context, cell string) (*Image, bool) {
	ref, ok := ParseReference(cell)
	if !ok {
		return nil, false
	}
	r.requests.Add(1)

	r.mu.RLock()
	entry, cached := r.cache[ref.ID]
	r.mu.RUnlock()
	if cached {
		r.cacheHits.Add(1)
		return entry.img, entry.ok
	}

	v, _, _ := r.group.Do(ref.ID, func() (interface{}, error) {
		r.mu.RLock()
		entry, cached := r.cache[ref.ID]
		r.mu.RUnlock()
		if cached {
			r.cacheHits.Add(1)
			return entry, nil
		}

		img, err := r.resolve(ctx, ref)
		entry = cacheEntry{img: img, ok: err == nil}
		if err != nil {
			r.missing.Add(1)
			r.log.Warn("photo unavailable", "ref", ref.Raw, "id", ref.ID, "error", err)
		} else {
			r.resolved.Add(1)
		}

		r.mu.Lock()
		r.cache[ref.ID] = entry
		r.mu.Unlock()
		return entry, nil
	})

	entry = v.(cacheEntry)
	return entry.img, entry.ok
}

// Stats returns a snapshot of the resolver counters
func (r *Resolver) Stats() Stats {
	return Stats{
		Requests:  r.requests.Load(),
		CacheHits: r.cacheHits.Load(),
		DiskHits:  r.diskHits.Load(),
		Fetches:   r.fetches.Load(),
		Resolved:  r.resolved.Load(),
		Missing:   r.missing.Load(),
	}
}

func (r *Resolver) resolve(ctx context.Context, ref Reference) (*Image, error) {
	if img, err := r.loadFromDisk(ref.ID); err == nil {
		r.diskHits.Add(1)
		return img, nil
	}

	var errs []error
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		img, err := r.attempt(ctx, s, ref)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		if err != nil {
			r.log.Debug("photo strategy failed", "strategy", s.Name(), "id", ref.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		r.log.Debug("photo resolved", "strategy", s.Name(), "id", ref.ID, "width", img.Width, "height", img.Height)
		return img, nil
	}

	if len(errs) == 0 {
		return nil, errors.New("no strategy can handle this reference")
	}
	return nil, errors.Join(errs...)
}

// attempt runs one strategy under its own timeout
func (r *Resolver) attempt(ctx context.Context, s Strategy, ref Reference) (*Image, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	raw, err := s.Fetch(attemptCtx, ref)
	if err != nil {
		return nil, err
	}
	r.fetches.Add(1)

	data, w, h, err := Normalize(raw, r.opts.MaxDimension)
	if err != nil {
		return nil, err
	}

	img := &Image{ID: ref.ID, Data: data, Width: w, Height: h}
	if r.opts.CacheDir != "" {
		path := r.cachePath(ref.ID)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			r.log.Warn("failed to write photo cache", "path", path, "error", err)
		} else {
			img.Path = path
		}
	}
	return img, nil
}

func (r *Resolver) loadFromDisk(id string) (*Image, error) {
	if r.opts.CacheDir == "" {
		return nil, os.ErrNotExist
	}
	path := r.cachePath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Image{ID: id, Path: path, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

func (r *Resolver) cachePath(id string) string {
	return filepath.Join(r.opts.CacheDir, id+".png")
}
