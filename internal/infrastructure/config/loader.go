package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/plaidhost/plaid/internal/infrastructure/secrets"
)

// fileNames enumerates the TOML files spec.md §6 requires, one
// viper.Viper instance per file, following the teacher's one-file-one-viper
// convention generalized to a named set.
var fileNames = []string{"webhooks", "loading", "apis", "data", "storage", "cache", "logging", "executor"}

// Load reads every named TOML file from dir, substitutes
// `{plaid-secret{KEY}}` references using resolver, and decodes the result
// into a Config. A missing optional file is treated as an empty document;
// module_dir and signing settings are validated by the caller.
func Load(dir string, resolver *secrets.Resolver) (*Config, error) {
	sub := NewSecretSubstitutor(resolver)
	raw := make(map[string]map[string]interface{}, len(fileNames))

	for _, name := range fileNames {
		v := viper.New()
		v.SetConfigName(name)
		v.SetConfigType("toml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				raw[name] = map[string]interface{}{}
				continue
			}
			return nil, fmt.Errorf("reading %s.toml: %w", name, err)
		}
		settings := v.AllSettings()
		if err := sub.SubstituteMap(settings); err != nil {
			return nil, fmt.Errorf("interpolating secrets in %s.toml: %w", name, err)
		}
		raw[name] = settings
	}

	cfg := &Config{}
	decodes := []struct {
		name string
		dst  interface{}
	}{
		{"webhooks", &cfg.Webhooks},
		{"loading", &cfg.Loading},
		{"apis", &cfg.Apis},
		{"data", &cfg.Data},
		{"storage", &cfg.Storage},
		{"cache", &cfg.Cache},
		{"logging", &cfg.Logging},
		{"executor", &cfg.Executor},
	}
	for _, d := range decodes {
		if err := decode(raw[d.name], d.dst); err != nil {
			return nil, fmt.Errorf("decoding %s.toml: %w", d.name, err)
		}
	}

	if cfg.Loading.ModuleDir != "" && !filepath.IsAbs(cfg.Loading.ModuleDir) {
		cfg.Loading.ModuleDir = filepath.Join(dir, cfg.Loading.ModuleDir)
	}

	return cfg, nil
}

func decode(m map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// ParseLimitSpec interprets a config-file limit value: the literal
// "unlimited", or a base-10 integer.
func ParseLimitSpec(s string) (LimitSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "unlimited") {
		return LimitSpec{Unlimited: true}, nil
	}
	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return LimitSpec{}, fmt.Errorf("invalid limit %q: %w", s, err)
	}
	return LimitSpec{Value: n}, nil
}
