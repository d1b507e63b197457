package lrthrome

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// remoteFetchTimeout bounds a single endpoint fetch, the way routedns's
// HTTPLoader bounds its upstream request with httpTimeout.
const remoteFetchTimeout = 30 * time.Second

// RemoteFetcher pulls CIDR lists from one or more HTTP(S) endpoints,
// one line per CIDR. It has no reliable way to tell whether an
// endpoint's content changed since the last cycle (not every endpoint
// serves an ETag or Last-Modified), so HasUpdate always returns true
// and the list is re-fetched and re-parsed every tempering cycle —
// the same tradeoff remote.rs's Remote::has_update makes.
//
// If CacheDir is set, the most recently successful response for each
// endpoint is persisted to disk, keyed by the SHA-256 of its URL, and
// is used as a fallback if the single live fetch for that endpoint fails —
// grounded on routedns's HTTPLoader.loadFromDisk/writeToDisk.
type RemoteFetcher struct {
	name      string
	endpoints []string
	cacheDir  string
	client    *http.Client
}

// NewRemoteFetcher returns a RemoteFetcher for the given endpoints. name
// identifies the fetcher in logs and String(). cacheDir may be empty to
// disable on-disk fallback caching.
func NewRemoteFetcher(name string, endpoints []string, cacheDir string) *RemoteFetcher {
	return &RemoteFetcher{
		name:      name,
		endpoints: endpoints,
		cacheDir:  cacheDir,
		client:    &http.Client{Timeout: remoteFetchTimeout},
	}
}

var _ Fetcher = (*RemoteFetcher)(nil)

func (f *RemoteFetcher) String() string { return "remote(" + f.name + ")" }

func (f *RemoteFetcher) HasUpdate() bool { return true }

func (f *RemoteFetcher) IterateCIDR(ctx context.Context) ([]CIDR, error) {
	log := Log.WithField("source", f.name)

	var cidrs []CIDR
	for _, endpoint := range f.endpoints {
		lines, err := f.fetch(ctx, endpoint)
		if err != nil {
			log.WithField("endpoint", endpoint).WithError(err).Warn("fetch failed, trying cache")
			lines, err = f.loadFromDisk(endpoint)
			if err != nil {
				return nil, Wrap(KindHTTPFetch, err, "endpoint "+endpoint+" unreachable and no cached copy")
			}
		}
		for _, line := range lines {
			cidr, err := ParseCIDR(line)
			if err != nil {
				continue
			}
			cidrs = append(cidrs, cidr)
		}
	}
	return cidrs, nil
}

func (f *RemoteFetcher) fetch(ctx context.Context, endpoint string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("got unexpected status code %d from %s", resp.StatusCode, endpoint)
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if f.cacheDir != "" {
		if err := f.writeToDisk(endpoint, lines); err != nil {
			Log.WithError(err).Warn("failed to write endpoint cache to disk")
		}
	}
	return lines, nil
}

func (f *RemoteFetcher) loadFromDisk(endpoint string) ([]string, error) {
	if f.cacheDir == "" {
		return nil, ErrMalformed("no cache dir configured")
	}
	file, err := os.Open(f.cacheFilename(endpoint))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func (f *RemoteFetcher) writeToDisk(endpoint string, lines []string) (err error) {
	tmp, err := os.CreateTemp(f.cacheDir, "lrthrome")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)

	defer func() {
		name := tmp.Name()
		w.Flush()
		tmp.Close()
		if err == nil {
			err = os.Rename(name, f.cacheFilename(endpoint))
		}
		os.Remove(name)
	}()

	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (f *RemoteFetcher) cacheFilename(endpoint string) string {
	name := fmt.Sprintf("%x", sha256.Sum256([]byte(endpoint)))
	return filepath.Join(f.cacheDir, name)
}
