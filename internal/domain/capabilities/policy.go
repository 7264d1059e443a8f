package capabilities

// AccessDecision is the outcome of evaluating a capability call against the
// registry, distinct from the underlying error so callers can distinguish
// "denied" from "not configured" without string matching.
type AccessDecision int

const (
	// Allowed means the call may proceed.
	Allowed AccessDecision = iota
	// DeniedNotFound means no grant exists for the requested resource.
	DeniedNotFound
	// DeniedAllowlist means a grant exists but does not name the caller.
	DeniedAllowlist
	// DeniedTestMode means the caller is running under test mode and neither
	// the module nor the resource is exempt.
	DeniedTestMode
)

// Policy evaluates capability calls against a set of Grants and a set of
// modules exempted from the test-mode gate.
type Policy struct {
	grants          map[Capability]Grant
	testExemptions  map[string]bool
}

// NewPolicy builds a Policy from the given grants and test-mode exemptions
// (module filenames exempted from the test-mode gate regardless of the
// target resource's own AvailableInTestMode flag).
func NewPolicy(grants []Grant, testExemptions []string) *Policy {
	p := &Policy{
		grants:         make(map[Capability]Grant, len(grants)),
		testExemptions: make(map[string]bool, len(testExemptions)),
	}
	for _, g := range grants {
		p.grants[g.Capability] = g
	}
	for _, m := range testExemptions {
		p.testExemptions[m] = true
	}
	return p
}

// Evaluate decides whether callerFilename may invoke the given capability.
// Module exemption wins over a resource's own AvailableInTestMode flag when
// both could independently justify the call (spec Open Question a).
func (p *Policy) Evaluate(cap Capability, callerFilename string, testMode bool) AccessDecision {
	grant, ok := p.grants[cap]
	if !ok {
		return DeniedNotFound
	}
	if !grant.AllowsRule(callerFilename) {
		return DeniedAllowlist
	}
	if testMode && !p.testExemptions[callerFilename] && !grant.AvailableInTestMode {
		return DeniedTestMode
	}
	return Allowed
}

// Grant returns the registered grant for a capability, if any.
func (p *Policy) Grant(cap Capability) (Grant, bool) {
	g, ok := p.grants[cap]
	return g, ok
}
