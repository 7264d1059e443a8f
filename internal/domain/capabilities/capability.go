// Package capabilities models Plaid's capability-based security surface:
// named host resources (storage namespaces, caches, outbound HTTP targets,
// cloud/SaaS adapters) that a rule may reach only if explicitly granted.
package capabilities

// Kind identifies the family a named capability belongs to.
type Kind string

const (
	// KindStorage covers rule-scoped and shared key/value namespaces.
	KindStorage Kind = "storage"
	// KindCache covers named process-wide caches.
	KindCache Kind = "cache"
	// KindNetwork covers preconfigured outbound HTTP targets reachable via make_named_request.
	KindNetwork Kind = "network"
	// KindAPI covers cloud/SaaS adapters (e.g. Slack, GitHub, AWS) exposed as opaque capabilities.
	KindAPI Kind = "api"
)

// Capability identifies a single named resource: a Kind plus the
// configuration-assigned name of the resource (e.g. storage:incidents,
// network:test-response-mnr-vars).
type Capability struct {
	Kind Kind
	Name string
}

// String renders the capability as "<kind>:<name>" for logs and error codes.
func (c Capability) String() string {
	return string(c.Kind) + ":" + c.Name
}

// Equals reports whether two capabilities name the same resource.
func (c Capability) Equals(o Capability) bool {
	return c.Kind == o.Kind && c.Name == o.Name
}

// IsEmpty reports whether c is the zero value.
func (c Capability) IsEmpty() bool {
	return c.Kind == "" && c.Name == ""
}

// Grant is a named resource's access policy: the rule filenames permitted
// to use it, and whether it stays reachable when the caller is running
// under test mode. Non-network/storage-with-allowlist capabilities may
// carry an empty AllowedRules, meaning "every loaded rule may use this."
type Grant struct {
	Capability          Capability
	AllowedRules        []string
	AvailableInTestMode bool
}

// AllowsRule reports whether filename is permitted to use this grant. An
// empty allowlist means every rule is permitted.
func (g Grant) AllowsRule(filename string) bool {
	if len(g.AllowedRules) == 0 {
		return true
	}
	for _, r := range g.AllowedRules {
		if r == filename {
			return true
		}
	}
	return false
}
