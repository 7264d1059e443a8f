package config

import (
	"fmt"
	"regexp"

	"github.com/plaidhost/plaid/internal/infrastructure/secrets"
)

// secretPattern matches the literal `{plaid-secret{KEY}}` interpolation
// form, generalized from the teacher's `{{ secret "key" }}` regex-based
// VariableSubstitutor to Plaid's own delimiter and to plain decoded TOML
// values rather than a fixed profile schema.
var secretPattern = regexp.MustCompile(`\{plaid-secret\{([a-zA-Z0-9_.-]+)\}\}`)

// SecretSubstitutor walks a decoded configuration tree and replaces every
// occurrence of {plaid-secret{KEY}} in string values with the resolved
// secret.
type SecretSubstitutor struct {
	resolver *secrets.Resolver
}

// NewSecretSubstitutor builds a substitutor backed by resolver.
func NewSecretSubstitutor(resolver *secrets.Resolver) *SecretSubstitutor {
	return &SecretSubstitutor{resolver: resolver}
}

// SubstituteString replaces all secret references within s, returning an
// error naming the first unresolved key encountered.
func (s *SecretSubstitutor) SubstituteString(str string) (string, error) {
	var firstErr error
	result := secretPattern.ReplaceAllStringFunc(str, func(match string) string {
		if firstErr != nil {
			return match
		}
		sub := secretPattern.FindStringSubmatch(match)
		key := sub[1]
		val, err := s.resolver.Resolve(key)
		if err != nil {
			firstErr = fmt.Errorf("interpolating %q: %w", match, err)
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// SubstituteMap recursively substitutes every string leaf of a decoded
// map[string]interface{} tree (as produced by viper's AllSettings), in
// place, and returns the first error encountered.
func (s *SecretSubstitutor) SubstituteMap(m map[string]interface{}) error {
	for k, v := range m {
		nv, err := s.substituteValue(v)
		if err != nil {
			return err
		}
		m[k] = nv
	}
	return nil
}

func (s *SecretSubstitutor) substituteValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return s.SubstituteString(val)
	case map[string]interface{}:
		if err := s.SubstituteMap(val); err != nil {
			return nil, err
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			nv, err := s.substituteValue(item)
			if err != nil {
				return nil, err
			}
			val[i] = nv
		}
		return val, nil
	default:
		return v, nil
	}
}
