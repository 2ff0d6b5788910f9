package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"m3u-server/work/client"
	"m3u-server/work/config"
	"m3u-server/work/logger"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/ratelimit"
)

// Fetcher retrieves raw playlist bytes from configured sources. Locators may
// be HTTP(S) URLs or filesystem paths; each source gets its configured
// timeout, size cap, headers, and a dedicated outbound rate limiter.
//
// Fetch has no side effects beyond the network or file I/O itself: all
// failures come back as a typed *FetchError for the scheduler to absorb.
type Fetcher struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient

	limiterMu sync.Mutex
	limiters  map[string]ratelimit.Limiter // per-source limiters keyed by source name
}

// New creates a Fetcher sharing the given HTTP client across all sources.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: httpClient,
		limiters:   make(map[string]ratelimit.Limiter),
	}
}

// Fetch retrieves the raw playlist for one source, honoring its timeout and
// the global size cap. The returned error, when non-nil, is always a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src *config.SourceConfig) ([]byte, error) {
	if isFileLocator(src.Locator) {
		return f.fetchFile(src)
	}
	return f.fetchHTTP(ctx, src)
}

// maxBytes returns the per-fetch size cap in bytes.
func (f *Fetcher) maxBytes() int64 {
	return f.cfg.MaxPlaylistSize * 1024 * 1024
}

// fetchHTTP performs a rate-limited GET with the source's timeout and
// headers, transparently decoding gzip bodies.
func (f *Fetcher) fetchHTTP(ctx context.Context, src *config.SourceConfig) ([]byte, error) {
	// pace outbound requests to this source
	f.limiterFor(src).Take()

	ctx, cancel := context.WithTimeout(ctx, src.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Locator, nil)
	if err != nil {
		return nil, &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: err}
	}

	resp, err := f.httpClient.Do(req, src)
	if err != nil {
		return nil, f.classifyTransport(ctx, src, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: ErrNotFound, Source: src.Name, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var reader io.Reader = resp.Body

	// decode gzip bodies we asked for with Accept-Encoding
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gzReader, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return nil, &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: gzErr}
		}
		defer gzReader.Close()
		reader = gzReader
	}

	// read one byte past the cap so we can tell "at limit" from "over it"
	data, err := io.ReadAll(io.LimitReader(reader, f.maxBytes()+1))
	if err != nil {
		return nil, f.classifyTransport(ctx, src, err)
	}
	if int64(len(data)) > f.maxBytes() {
		return nil, &FetchError{Kind: ErrTooLarge, Source: src.Name, Err: fmt.Errorf("exceeds %d MB cap", f.cfg.MaxPlaylistSize)}
	}

	logger.Debug("{fetcher/fetcher - fetchHTTP} Fetched %d bytes from %s", len(data), f.cfg.LogLocator(src.Locator))
	return data, nil
}

// fetchFile reads a playlist from the local filesystem, applying the same
// size cap as HTTP fetches.
func (f *Fetcher) fetchFile(src *config.SourceConfig) ([]byte, error) {
	path := strings.TrimPrefix(src.Locator, "file://")

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FetchError{Kind: ErrNotFound, Source: src.Name, Err: err}
		}
		return nil, &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: err}
	}
	if info.Size() > f.maxBytes() {
		return nil, &FetchError{Kind: ErrTooLarge, Source: src.Name, Err: fmt.Errorf("%d bytes exceeds %d MB cap", info.Size(), f.cfg.MaxPlaylistSize)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: err}
	}

	logger.Debug("{fetcher/fetcher - fetchFile} Read %d bytes from %s", len(data), path)
	return data, nil
}

// classifyTransport maps a transport-level failure onto the error taxonomy:
// deadline expiry becomes Timeout, everything else Unreachable.
func (f *Fetcher) classifyTransport(ctx context.Context, src *config.SourceConfig, err error) *FetchError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: ErrTimeout, Source: src.Name, Err: err}
	}
	return &FetchError{Kind: ErrUnreachable, Source: src.Name, Err: err}
}

// limiterFor returns the source's rate limiter, creating it on first use.
func (f *Fetcher) limiterFor(src *config.SourceConfig) ratelimit.Limiter {
	f.limiterMu.Lock()
	defer f.limiterMu.Unlock()

	if lim, ok := f.limiters[src.Name]; ok {
		return lim
	}

	rate := src.RateLimit
	if rate <= 0 {
		rate = 5
	}
	lim := ratelimit.New(rate)
	f.limiters[src.Name] = lim
	return lim
}

// isFileLocator reports whether a locator names a filesystem path rather
// than a URL.
func isFileLocator(locator string) bool {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return false
	}
	return strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, "./") || strings.HasPrefix(locator, "file://")
}
