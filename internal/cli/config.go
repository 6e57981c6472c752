package cli

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/stackresolve/pkg/errors"
	"github.com/matzehuels/stackresolve/pkg/source/npm"
)

// configFile is read from the workspace root.
const configFile = ".stackresolve.toml"

// Config holds settings shared by all commands. Values come from
// .stackresolve.toml in the workspace root, then from the environment
// (a .env file next to it is loaded first), then from flags.
//
//	registry = "https://registry.npmjs.org/"
//	auto-install-peers = true
//
//	[redis]
//	addr = "localhost:6379"
type Config struct {
	Registry string `toml:"registry"`
	Token    string `toml:"-"` // NPM_TOKEN only
	StoreDir string `toml:"store-dir"`

	AutoInstallPeers              bool `toml:"auto-install-peers"`
	StrictPeerDependencies        bool `toml:"strict-peer-dependencies"`
	ResolvePeersFromWorkspaceRoot bool `toml:"resolve-peers-from-workspace-root"`
	DisableDedupePeerDependents   bool `toml:"disable-dedupe-peer-dependents"`
	DisableDedupeInjectedDeps     bool `toml:"disable-dedupe-injected-deps"`
	AllowUnusedPatches            bool `toml:"allow-unused-patches"`

	NetworkConcurrency   int `toml:"network-concurrency"`
	PeersSuffixMaxLength int `toml:"peers-suffix-max-length"`

	Listen string      `toml:"listen"`
	Redis  RedisConfig `toml:"redis"`
}

// RedisConfig configures the shared result cache of the API server.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

func defaultConfig() Config {
	return Config{
		Registry: npm.DefaultRegistry,
		Listen:   ":8080",
	}
}

// loadConfig reads the configuration for the workspace at dir. Missing
// files are not an error.
func loadConfig(dir string) (Config, error) {
	cfg := defaultConfig()

	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "load .env")
	}

	path := filepath.Join(dir, configFile)
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "parse %s", path)
	}

	if v := os.Getenv("STACKRESOLVE_REGISTRY"); v != "" {
		cfg.Registry = v
	}
	if v := os.Getenv("NPM_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("STACKRESOLVE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("STACKRESOLVE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("STACKRESOLVE_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrap(errors.ErrCodeInvalidInput, err, "STACKRESOLVE_REDIS_DB")
		}
		cfg.Redis.DB = db
	}

	if err := errors.ValidateURL(cfg.Registry); err != nil {
		return cfg, err
	}
	return cfg, nil
}
