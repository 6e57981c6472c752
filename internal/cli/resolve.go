package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackresolve/internal/workspace"
	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/lockfile"
	"github.com/matzehuels/stackresolve/pkg/observability"
	"github.com/matzehuels/stackresolve/pkg/render"
	"github.com/matzehuels/stackresolve/pkg/resolve"
	"github.com/matzehuels/stackresolve/pkg/source"
	"github.com/matzehuels/stackresolve/pkg/source/local"
	"github.com/matzehuels/stackresolve/pkg/source/memory"
	"github.com/matzehuels/stackresolve/pkg/source/npm"
)

// resolveOptions holds the flags of the resolve command.
type resolveOptions struct {
	fixtures string
	update   bool
	dryRun   bool
	fetch    bool
	noCache  bool
	refresh  bool
	strict   bool
	autoPeer bool
	maxDepth int
	dot      string
	svg      string
	detailed bool
	quiet    bool
}

func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve [dir]",
		Short: "Resolve a workspace and write its lockfile",
		Long: `Resolve the dependencies of every project in a workspace and write ` + lockfile.Filename + `.

The workspace root is the nearest directory containing ` + workspace.Filename + `,
or the nearest package.json when there is none.`,
		Example: `  stackresolve resolve
  stackresolve resolve ./apps/web --svg graph.svg
  stackresolve resolve --fixtures registry.yaml --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return c.runResolve(cmd.Context(), cmd, dir, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.fixtures, "fixtures", "", "resolve against a YAML fixtures registry instead of npm (relative to the workspace root)")
	f.BoolVar(&opts.update, "update", false, "ignore versions locked in the existing lockfile")
	f.BoolVar(&opts.dryRun, "dry-run", false, "do not write the lockfile")
	f.BoolVar(&opts.fetch, "fetch", false, "download and verify package tarballs")
	f.BoolVar(&opts.noCache, "no-cache", false, "disable the registry response cache")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass cached registry responses")
	f.BoolVar(&opts.strict, "strict-peer-dependencies", false, "fail on peer dependency issues")
	f.BoolVar(&opts.autoPeer, "auto-install-peers", false, "install missing required peers")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "maximum dependency depth (0 for unlimited)")
	f.StringVar(&opts.dot, "dot", "", "write the resolved graph as Graphviz DOT")
	f.StringVar(&opts.svg, "svg", "", "write the resolved graph as SVG")
	f.BoolVar(&opts.detailed, "detailed", false, "include node metadata in graph output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "no spinner")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, cmd *cobra.Command, dir string, opts resolveOptions) error {
	out := printer{w: cmd.OutOrStdout()}
	prog := newProgress(c.Logger)

	abs, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", dir)
	}
	root, err := workspace.Find(abs)
	if err != nil {
		return err
	}
	ws, err := workspace.Load(root)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	c.Logger.Debug("loaded workspace", "root", root, "projects", len(ws.Projects))

	patches, err := ws.Patches()
	if err != nil {
		return err
	}
	var locked *lockfile.Lockfile
	if !opts.update {
		if locked, err = lockfile.Read(root); err != nil {
			return err
		}
	}

	src, err := c.newSource(root, ws, cfg, opts)
	if err != nil {
		return err
	}

	var counter cacheCounter
	spin := newSpinner(ctx, cmd.ErrOrStderr(), "Resolving...")
	observability.SetResolveHooks(resolveProgress{spin: spin, logger: c.Logger})
	observability.SetHTTPHooks(httpLogger{logger: c.Logger})
	observability.SetCacheHooks(&counter)
	defer observability.Reset()
	if !opts.quiet {
		spin.start()
	}

	res, err := resolve.ResolveDependencyTree(ctx, ws.Projects, resolve.Options{
		Source:                        src,
		Lockfile:                      locked,
		LockfileDir:                   root,
		Catalogs:                      ws.Catalogs(),
		PatchedDependencies:           patches,
		AllowUnusedPatches:            cfg.AllowUnusedPatches,
		AutoInstallPeers:              opts.autoPeer || cfg.AutoInstallPeers,
		StrictPeerDependencies:        opts.strict || cfg.StrictPeerDependencies,
		ResolvePeersFromWorkspaceRoot: cfg.ResolvePeersFromWorkspaceRoot,
		DisableDedupePeerDependents:   cfg.DisableDedupePeerDependents,
		DisableDedupeInjectedDeps:     cfg.DisableDedupeInjectedDeps,
		PeersSuffixMaxLength:          cfg.PeersSuffixMaxLength,
		NetworkConcurrency:            cfg.NetworkConcurrency,
		MaxDepth:                      opts.maxDepth,
		SkipFetch:                     !opts.fetch,
		Update:                        opts.update,
		Logger:                        c.Logger,
	})
	spin.stop()
	if res == nil {
		out.fail("Resolution failed")
		return err
	}

	out.issues(res.PeerDependencyIssuesByProjects)
	out.skipped(res.SkippedOptional)
	if err != nil {
		return err
	}
	if opts.fetch {
		if err := res.WaitTillAllFetchingsFinish(ctx); err != nil {
			return err
		}
	}

	out.success("Resolved %s", plural(len(ws.Projects), "%d project", "%d projects"))
	out.stats(res.Stats, counter.hits.Load(), counter.misses.Load())

	if !opts.dryRun {
		path := filepath.Join(root, lockfile.Filename)
		if err := lockfile.Write(path, res.Lockfile()); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write lockfile")
		}
		out.file(path)
	}
	if err := writeGraph(ctx, res, opts, out); err != nil {
		return err
	}
	prog.done("resolve finished")

	if opts.dot == "" && opts.svg == "" {
		out.nextStep("Visualize the graph", "stackresolve resolve --svg graph.svg")
	}
	return nil
}

// newSource builds the package source: the fixtures registry when
// --fixtures is set, npm otherwise. Workspace, link and file specifiers
// are always resolved from disk.
func (c *CLI) newSource(root string, ws *workspace.Workspace, cfg Config, opts resolveOptions) (source.Source, error) {
	projects := local.New(ws.Manifests)

	if opts.fixtures != "" {
		path := opts.fixtures
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		reg, err := memory.Load(path, root)
		if err != nil {
			return nil, err
		}
		return projects.WithRegistry(reg), nil
	}

	cache, err := newCache(opts.noCache)
	if err != nil {
		return nil, err
	}
	storeDir := cfg.StoreDir
	if opts.fetch && storeDir == "" {
		if dir, err := cacheDir(); err == nil {
			storeDir = filepath.Join(dir, "store")
		}
	}
	return npm.New(npm.Options{
		Registry: cfg.Registry,
		Token:    cfg.Token,
		Cache:    cache,
		Local:    projects,
		StoreDir: storeDir,
		Refresh:  opts.refresh,
		Logger:   c.Logger.WithPrefix("npm"),
	}), nil
}

func writeGraph(ctx context.Context, res *resolve.Result, opts resolveOptions, out printer) error {
	if opts.dot == "" && opts.svg == "" {
		return nil
	}
	dot := render.ResultDOT(res, render.Options{Detailed: opts.detailed})
	if opts.dot != "" {
		if err := os.WriteFile(opts.dot, []byte(dot), 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", opts.dot)
		}
		out.file(opts.dot)
	}
	if opts.svg != "" {
		svg, err := render.RenderSVG(ctx, dot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.svg, svg, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "write %s", opts.svg)
		}
		out.file(opts.svg)
	}
	return nil
}
