package config

import (
	"flag"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Flags holds the global CLI switches after parsing.
type Flags struct {
	ConfigPath string
	AskKey     bool
	Args       []string
}

// Load resolves the configuration from defaults, file, env and the global
// flags in args. The remaining positional arguments are returned in Flags.
func Load(args []string) (*Config, *Flags, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs := flag.NewFlagSet("chronicles", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		f          Flags
		host       string
		apiKey     string
		apiVersion string
		debug      bool
	)
	fs.StringVar(&f.ConfigPath, "conf", os.Getenv(EnvConfig), "path to a YAML config file")
	fs.StringVar(&host, "host", "", "service base URL")
	fs.StringVar(&apiKey, "api-key", "", "API key sent as X-API-Key")
	fs.StringVar(&apiVersion, "api-version", "", "API version (default v1)")
	fs.BoolVar(&debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.AskKey, "ask-key", false, "prompt for the API key on the terminal")
	if err := fs.Parse(args); err != nil {
		return nil, nil, errors.Wrap(err, "parse flags")
	}

	if strings.TrimSpace(f.ConfigPath) != "" {
		if err := cfg.LoadFile(f.ConfigPath); err != nil {
			return nil, nil, err
		}
	}
	cfg.LoadEnv()

	if host != "" {
		cfg.Host = host
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	if debug {
		cfg.Debug = true
	}
	f.Args = fs.Args()
	return cfg, &f, nil
}
