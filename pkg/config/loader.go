package config

import (
	"errors"
	"os"
	"strings"

	"github.com/kkyr/fig"
)

const EnvPrefix = "LIVECAST"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix LIVECAST_.
// Params from the config should be in uppercase separated with _.
// Missing config files are not an error, struct defaults are used instead.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.livecast")
		}
	}
	err := fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) {
		return LoadConfigEnv(config)
	}
	return err
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}

// lookupEnv reads one of the short env names used by older deployments.
func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// splitList parses a comma-separated list, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
