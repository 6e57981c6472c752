package npm

import (
	"context"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/stackresolve/pkg/buildinfo"
	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/httputil"
	"github.com/matzehuels/stackresolve/pkg/manifest"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/version"
)

const (
	DefaultRegistry = "https://registry.npmjs.org"
	DefaultMemoSize = 4096 // Decoded packuments kept in memory

	// Abbreviated metadata carries everything resolution needs and is a
	// fraction of the full document.
	acceptAbbreviated = "application/vnd.npm.install-v1+json; q=1.0, application/json; q=0.8, */*"
)

// Options configures [New].
type Options struct {
	Registry   string        // Registry base URL (default: DefaultRegistry)
	Token      string        // Bearer token for private registries
	Cache      cache.Cache   // Packument cache (default: none)
	HTTP       *http.Client  // HTTP client (default: 30s timeout)
	RetryDelay time.Duration // Initial retry backoff (default: 1s)
	Local      source.Source // Resolves workspace:, link: and file: specifiers
	StoreDir   string        // Keep fetched tarballs here (default: discard)
	Refresh    bool          // Bypass cached packuments
	MemoSize   int           // In-process packument LRU size (default: DefaultMemoSize)
	OS, CPU    string        // Platform for os/cpu checks (default: host)
	Logger     *log.Logger   // Default: discard
}

// Source resolves registry specifiers against an npm registry.
type Source struct {
	registry string
	client   *httputil.Client
	local    source.Source
	storeDir string
	refresh  bool
	os, cpu  string
	logger   *log.Logger

	memo  *lru.Cache[string, *packument]
	group singleflight.Group
}

var _ source.Source = (*Source)(nil)

// New creates a registry source.
func New(opts Options) *Source {
	registry := strings.TrimSuffix(opts.Registry, "/")
	if registry == "" {
		registry = DefaultRegistry
	}
	headers := map[string]string{"Accept": acceptAbbreviated, "User-Agent": buildinfo.UserAgent()}
	if opts.Token != "" {
		headers["Authorization"] = "Bearer " + opts.Token
	}
	host := registry
	if u, err := url.Parse(registry); err == nil && u.Host != "" {
		host = u.Host
	}
	size := opts.MemoSize
	if size <= 0 {
		size = DefaultMemoSize
	}
	memo, _ := lru.New[string, *packument](size)

	s := &Source{
		registry: registry,
		client: httputil.NewClient(httputil.ClientOptions{
			HTTP:       opts.HTTP,
			Cache:      opts.Cache,
			Keyer:      cache.NewScopedKeyer(nil, host+":"),
			TTL:        cache.TTLPackument,
			Headers:    headers,
			RetryDelay: opts.RetryDelay,
		}),
		local:    opts.Local,
		storeDir: opts.StoreDir,
		refresh:  opts.Refresh,
		os:       opts.OS,
		cpu:      opts.CPU,
		logger:   opts.Logger,
		memo:     memo,
	}
	if s.os == "" {
		s.os = hostOS()
	}
	if s.cpu == "" {
		s.cpu = hostCPU()
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// Request implements [source.Source].
func (s *Source) Request(ctx context.Context, wanted manifest.WantedDependency, opts source.RequestOptions) (*source.Response, error) {
	spec := source.ParseSpec(wanted.Alias, wanted.Spec)
	if spec.Kind != source.SpecRegistry {
		if s.local == nil {
			return nil, errors.New(errors.ErrCodeUnsupported, "no local source for %s", wanted)
		}
		return s.local.Request(ctx, wanted, opts)
	}
	if err := errors.ValidateNpmPackageName(spec.Name); err != nil {
		return nil, err
	}

	doc, err := s.packument(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	picked, err := pick(doc, spec, opts)
	if err != nil {
		return nil, err
	}

	pv := doc.Versions[picked]
	m := pv.Manifest
	m.Name, m.Version = doc.Name, picked
	res := &source.Response{
		ID:       m.ID(),
		Manifest: &m,
		Resolution: source.Resolution{
			Tarball:   pv.Dist.Tarball,
			Integrity: pv.Dist.integrity(),
		},
		ResolvedVia: "registry",
		Unsupported: unsupported(m.OS, m.CPU, s.os, s.cpu),
	}
	if m.Deprecated != "" {
		s.logger.Debug("deprecated package", "id", res.ID, "message", m.Deprecated)
	}
	if !opts.SkipFetch && res.Resolution.Tarball != "" {
		res.Fetch = s.fetcher(res.ID, res.Resolution)
	}
	return res, nil
}

// pick selects the version of doc to install for spec.
func pick(doc *packument, spec source.Spec, opts source.RequestOptions) (string, error) {
	if cur := opts.CurrentPkg; cur != nil && !opts.Update && cur.Name == doc.Name {
		if _, ok := doc.Versions[cur.Version]; ok && version.Satisfies(cur.Version, spec.Range) {
			return cur.Version, nil
		}
	}
	if tagged, ok := doc.DistTags[spec.Range]; ok {
		if _, ok := doc.Versions[tagged]; ok {
			return tagged, nil
		}
	}
	if latest, ok := doc.DistTags["latest"]; ok {
		if _, ok := doc.Versions[latest]; ok && version.Satisfies(latest, spec.Range) {
			return latest, nil
		}
	}
	if v, ok := version.MaxSatisfying(slices.Collect(maps.Keys(doc.Versions)), spec.Range); ok {
		return v, nil
	}
	return "", errors.New(errors.ErrCodeVersionNotFound, "no version of %s satisfies %s", doc.Name, spec.Range)
}

// packument returns the decoded packument of name from memory, the cache
// or the registry, in that order.
func (s *Source) packument(ctx context.Context, name string) (*packument, error) {
	if doc, ok := s.memo.Get(name); ok {
		return doc, nil
	}
	v, err, _ := s.group.Do(name, func() (any, error) {
		var doc packument
		err := s.client.Cached(ctx, "npm", name, s.refresh, &doc, func() error {
			return s.client.Get(ctx, s.registry+"/"+escapeName(name), &doc)
		})
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				return nil, errors.Wrap(errors.ErrCodePackageNotFound, err, "package %s not found", name)
			}
			return nil, err
		}
		if doc.Name == "" {
			doc.Name = name
		}
		s.memo.Add(name, &doc)
		return &doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*packument), nil
}

// escapeName encodes the scope separator: @types/node -> @types%2fnode.
func escapeName(name string) string {
	return strings.Replace(name, "/", "%2f", 1)
}
