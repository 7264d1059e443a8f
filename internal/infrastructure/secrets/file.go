package secrets

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// LoadFile reads a flat key/value TOML file (the secrets file named in
// spec.md §6) and returns its contents for NewResolver. A missing file is
// treated as an empty secret set, not an error, matching config.Load's
// tolerance for absent optional files.
func LoadFile(path string) (map[string]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("secrets: reading %s: %w", path, err)
	}

	raw := v.AllSettings()
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}
