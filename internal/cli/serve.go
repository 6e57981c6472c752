package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackresolve/internal/api"
	"github.com/matzehuels/stackresolve/pkg/buildinfo"
	"github.com/matzehuels/stackresolve/pkg/cache"
	"github.com/matzehuels/stackresolve/pkg/observability"
	"github.com/matzehuels/stackresolve/pkg/source/npm"
)

const shutdownTimeout = 10 * time.Second

func (c *CLI) serveCommand() *cobra.Command {
	var (
		listen  string
		redis   string
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the resolution HTTP API",
		Long: `Serve resolution over HTTP. Results and registry responses are cached in
Redis when an address is configured, in the local cache directory otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(wd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if redis != "" {
				cfg.Redis.Addr = redis
			}
			return c.runServe(cmd.Context(), cmd, cfg, noCache)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&redis, "redis", "", "Redis address for the shared cache")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, cmd *cobra.Command, cfg Config, noCache bool) error {
	store, err := c.serverCache(ctx, cfg, noCache)
	if err != nil {
		return err
	}
	defer store.Close()

	observability.SetHTTPHooks(httpLogger{logger: c.Logger})
	defer observability.Reset()

	src := npm.New(npm.Options{
		Registry: cfg.Registry,
		Token:    cfg.Token,
		Cache:    store,
		Logger:   c.Logger.WithPrefix("npm"),
	})
	handler := api.New(api.Options{
		Source:   src,
		Registry: cfg.Registry,
		Cache:    store,
		Keyer:    cache.NewScopedKeyer(nil, "api:"),
		Version:  buildinfo.Version,
		Logger:   c.Logger.WithPrefix("api"),
	}).Router()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Fprintln(cmd.OutOrStdout(), StyleTitle.Render(appName)+" "+StyleDim.Render("listening on")+" "+StyleValue.Render(cfg.Listen))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serverCache picks Redis when configured, the file cache otherwise.
func (c *CLI) serverCache(ctx context.Context, cfg Config, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		c.Logger.Info("using redis cache", "addr", cfg.Redis.Addr)
		return rc, nil
	}
	return newCache(false)
}
