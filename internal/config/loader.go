package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// envPrefix namespaces environment variables; nested keys use a double
// underscore, e.g. TELCOBRIDGE_SERVER__HTTP_PORT -> server.http_port
const envPrefix = "TELCOBRIDGE_"

// Loader merges configuration sources with ascending precedence:
// file, then environment, then flags
type Loader struct {
	path  string
	flags *pflag.FlagSet
}

// NewLoader creates a loader for the given config file path. The file is
// optional; a missing file leaves only environment and flag sources.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// NewLoaderWithFlags creates a loader that also applies values from the
// given flag set (registered via RegisterFlags)
func NewLoaderWithFlags(path string, flags *pflag.FlagSet) *Loader {
	return &Loader{path: path, flags: flags}
}

// Get loads and merges all sources into a Config
func (l *Loader) Get() (*Config, error) {
	k := koanf.New(".")

	if l.path != "" {
		if _, err := os.Stat(l.path); err == nil {
			if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", l.path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envToKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if l.flags != nil {
		mapping := GetFlagMapping()
		provider := posflag.ProviderWithFlag(l.flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only explicitly set flags override; unset flags would
			// otherwise stomp file and env values with zero values
			if !f.Changed {
				return "", nil
			}
			path, ok := mapping[f.Name]
			if !ok {
				return "", nil
			}
			return path, posflag.FlagVal(l.flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// envToKey maps TELCOBRIDGE_SERVER__HTTP_PORT to server.http_port
func envToKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(key, "__", ".")
}
