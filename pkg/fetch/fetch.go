// Package fetch implements the HTTP client over a prioritized source list:
// fetching repository indices and package archives, verifying checksums,
// retrying with linear backoff, and failing over across mirrors.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/gitrustux/rustica/pkg/rpgerrors"
	"github.com/gitrustux/rustica/pkg/signature"
	"github.com/gitrustux/rustica/pkg/sources"
)

// ToolVersion is embedded in the default User-Agent string.
const ToolVersion = "0.1.0"

// Options configures the fetch protocol.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	VerifySSL  bool
	UserAgent  string
	HTTPClient *http.Client
}

// DefaultOptions is the fetch protocol's default policy: 30-second
// timeout, 3 retries, mandatory TLS verification.
func DefaultOptions() Options {
	return Options{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		VerifySSL:  true,
		UserAgent:  "RPG/" + ToolVersion,
	}
}

func (o Options) fillDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.UserAgent == "" {
		o.UserAgent = "RPG/" + ToolVersion
	}
	return o
}

// PackageEntry is one package listed in a repository index.
type PackageEntry struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Size         uint64   `json:"size"`
	SHA256       string   `json:"sha256"`
	Signature    string   `json:"signature"`
	Dependencies []string `json:"dependencies,omitempty"`
	Path         string   `json:"path"`
}

// RepositoryIndex is the parsed form of a source's index.json.
type RepositoryIndex struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	LastUpdated *int64         `json:"last_updated,omitempty"`
	Packages    []PackageEntry `json:"packages"`
}

// DownloadResult is the outcome of a successful package fetch.
type DownloadResult struct {
	Path    string
	Bytes   int64
	SHA256  string
	Resumed bool
}

// byPriority sorts a copy of sources ascending by priority, stable for
// equal priorities.
func byPriority(list []sources.Source) []sources.Source {
	sorted := make([]sources.Source, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return sorted
}

// newClient builds a retryablehttp client whose CheckRetry/Backoff
// implement the fetch protocol's retry policy for one source: retry only
// on transport-level network errors or timeouts, linear backoff by retry
// index (1s, 2s, 3s, ...), never retry on any HTTP status code (404 and
// other errors fail over to the next source immediately).
func newClient(opt Options) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = opt.MaxRetries
	c.Logger = nil
	c.HTTPClient = opt.HTTPClient
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: opt.Timeout}
	} else {
		c.HTTPClient.Timeout = opt.Timeout
	}
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			// Network error or timeout: retry the same source.
			return true, nil
		}
		// Any HTTP status, including 404 and 5xx: no retry here. The
		// caller advances to the next source.
		return false, nil
	}
	c.Backoff = func(_, _ time.Duration, attemptNum int, _ *http.Response) time.Duration {
		return time.Duration(attemptNum+1) * time.Second
	}
	return c
}

// attempt performs the fetch protocol against a single ordered source
// list for one URL-deriving function, returning the response body on the
// first source that yields HTTP 200.
func attempt(ctx context.Context, opt Options, candidates []sources.Source, urlFor func(sources.Source) string) ([]byte, error) {
	opt = opt.fillDefaults()
	sorted := byPriority(candidates)
	if len(sorted) == 0 {
		return nil, rpgerrors.New(rpgerrors.AllSourcesFailed, "no sources configured")
	}

	for _, src := range sorted {
		url := urlFor(src)

		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, rpgerrors.Wrap(rpgerrors.InvalidURL, err, "building request for %s", url)
		}
		req.Header.Set("User-Agent", opt.UserAgent)

		client := newClient(opt)
		resp, err := client.Do(req)
		if err != nil {
			// Retries against this source (if any) are already
			// exhausted by the client; advance to the next source.
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			continue
		case resp.StatusCode != http.StatusOK:
			continue
		case readErr != nil:
			continue
		}
		return body, nil
	}

	return nil, rpgerrors.New(rpgerrors.AllSourcesFailed, "all sources exhausted")
}

// FetchIndex fetches and parses the repository index from the first
// reachable source in candidates.
func FetchIndex(ctx context.Context, opt Options, candidates []sources.Source) (*RepositoryIndex, error) {
	body, err := attempt(ctx, opt, candidates, func(s sources.Source) string { return s.IndexURL() })
	if err != nil {
		return nil, err
	}
	var idx RepositoryIndex
	if err := json.Unmarshal(body, &idx); err != nil {
		return nil, rpgerrors.Wrap(rpgerrors.Serialization, err, "parsing repository index")
	}
	return &idx, nil
}

// FetchPackage downloads a package archive to outputPath, verifying it
// against expectedSHA256. If outputPath already exists with a matching
// checksum, it returns immediately with Resumed=true and performs no
// network I/O.
func FetchPackage(ctx context.Context, opt Options, candidates []sources.Source, name, version, expectedSHA256, outputPath string) (*DownloadResult, error) {
	if existing, err := os.ReadFile(outputPath); err == nil {
		if signature.Checksum(existing) == expectedSHA256 {
			return &DownloadResult{
				Path:    outputPath,
				Bytes:   int64(len(existing)),
				SHA256:  expectedSHA256,
				Resumed: true,
			}, nil
		}
	}

	body, err := attempt(ctx, opt, candidates, func(s sources.Source) string { return s.PackageURL(name, version) })
	if err != nil {
		return nil, err
	}

	actual := signature.Checksum(body)
	if actual != expectedSHA256 {
		return nil, rpgerrors.NewChecksumMismatch(expectedSHA256, actual)
	}

	if err := writeAtomic(outputPath, body); err != nil {
		return nil, err
	}

	return &DownloadResult{
		Path:    outputPath,
		Bytes:   int64(len(body)),
		SHA256:  actual,
		Resumed: false,
	}, nil
}

// PackageJob is one package download request for FetchPackages.
type PackageJob struct {
	Name           string
	Version        string
	ExpectedSHA256 string
	OutputPath     string
	Sources        []sources.Source
}

// PackageJobResult pairs a PackageJob with the DownloadResult or error it
// produced.
type PackageJobResult struct {
	Job    PackageJob
	Result *DownloadResult
	Err    error
}

// DefaultPoolSize bounds FetchPackages' concurrency when the caller does
// not request a specific size.
func DefaultPoolSize() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}

// FetchPackages downloads many packages concurrently, fanning work out
// across a bounded pool of goroutines guarded by a buffered channel
// (poolSize <= 0 uses DefaultPoolSize). Each job carries its own source
// candidates so callers can mix package kinds (kernel/system/apps) in one
// call. Results are returned in the same order as jobs. This is the
// concurrency spec.md §5 allows for fetches; transaction activation
// remains strictly sequential and is never called from here.
func FetchPackages(ctx context.Context, opt Options, jobs []PackageJob, poolSize int) []PackageJobResult {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize()
	}
	results := make([]PackageJobResult, len(jobs))
	done := make(chan int, len(jobs))
	guard := make(chan struct{}, poolSize)

	for i, job := range jobs {
		i, job := i, job
		guard <- struct{}{}
		go func() {
			defer func() { <-guard }()
			dl, err := FetchPackage(ctx, opt, job.Sources, job.Name, job.Version, job.ExpectedSHA256, job.OutputPath)
			results[i] = PackageJobResult{Job: job, Result: dl, Err: err}
			done <- i
		}()
	}
	for range jobs {
		<-done
	}
	return results
}

func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return rpgerrors.Wrap(rpgerrors.Io, err, "creating %s", dir)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return rpgerrors.Wrap(rpgerrors.Io, err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return rpgerrors.Wrap(rpgerrors.Io, err, "renaming %s to %s", tmp, path)
	}
	return nil
}

// IsAllSourcesFailed reports whether err is the AllSourcesFailed failure
// reported once every candidate source has been exhausted.
func IsAllSourcesFailed(err error) bool {
	var rerr *rpgerrors.Error
	return errors.As(err, &rerr) && rerr.Kind == rpgerrors.AllSourcesFailed
}
