// Package config loads bizast's node configuration from flags, environment
// variables, a config file, and built-in defaults, in that order of
// precedence, via spf13/viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix bizast uses for environment variable overrides,
// e.g. BIZAST_DHTPORT.
const EnvPrefix = "BIZAST"

// Config is the resolved, validated configuration for a bizast node.
type Config struct {
	DHTPort      int      `mapstructure:"dhtport"`
	WebPort      int      `mapstructure:"webport"`
	Bootstrap    []string `mapstructure:"bootstrap"`
	InstanceName string   `mapstructure:"instancename"`
	Verbose      bool     `mapstructure:"verbose"`
}

// Default matches the CLI surface fixed by the protocol: a single
// well-known bootstrap seed, the historical bizast ports, and the
// "bizast" instance namespace.
func Default() Config {
	return Config{
		DHTPort:      26282,
		WebPort:      62341,
		Bootstrap:    []string{"soyvindication.dyndns.org:26282"},
		InstanceName: "bizast",
		Verbose:      false,
	}
}

// BindFlags registers bizast's CLI flags on fs and binds them into v,
// giving flags the highest precedence once Load runs.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Int("dhtport", 26282, "UDP port for DHT participation")
	fs.Int("webport", 62341, "TCP port for the HTTP gateway")
	fs.StringSlice("bootstrap", []string{"soyvindication.dyndns.org:26282"}, "bootstrap node host:port, may be repeated")
	fs.String("instancename", "bizast", "namespaces the state directory, allowing multiple instances per host")
	fs.Bool("verbose", false, "enable debug-level logging")

	for _, name := range []string{"dhtport", "webport", "bootstrap", "instancename", "verbose"} {
		_ = v.BindPFlag(name, fs.Lookup(name))
	}
}

// Load resolves configuration from, in increasing precedence: built-in
// defaults, an optional bizast.yaml config file, BIZAST_* environment
// variables, and any flags already bound into v via BindFlags.
func Load(v *viper.Viper) (Config, error) {
	defaults := Default()
	v.SetDefault("dhtport", defaults.DHTPort)
	v.SetDefault("webport", defaults.WebPort)
	v.SetDefault("bootstrap", defaults.Bootstrap)
	v.SetDefault("instancename", defaults.InstanceName)
	v.SetDefault("verbose", defaults.Verbose)

	v.SetConfigName("bizast")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/bizast")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the resolved configuration is usable.
func (c Config) Validate() error {
	if c.DHTPort < 1 || c.DHTPort > 65535 {
		return fmt.Errorf("config: dhtport %d out of range", c.DHTPort)
	}
	if c.WebPort < 1 || c.WebPort > 65535 {
		return fmt.Errorf("config: webport %d out of range", c.WebPort)
	}
	if c.InstanceName == "" {
		return fmt.Errorf("config: instancename must not be empty")
	}
	if len(c.Bootstrap) == 0 {
		return fmt.Errorf("config: at least one bootstrap node is required")
	}
	return nil
}

// StateDir returns the directory bizast persists this instance's state
// and identity material under: <user-cache-dir>/<instancename>.
func (c Config) StateDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user cache dir: %w", err)
	}
	return filepath.Join(cacheDir, c.InstanceName), nil
}

// StatePath returns the path to this instance's state.json.
func (c Config) StatePath() (string, error) {
	dir, err := c.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.json"), nil
}
