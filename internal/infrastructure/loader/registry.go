package loader

import (
	"sync"

	"github.com/plaidhost/plaid/internal/domain/module"
)

// Registry is the published, queryable view of the active module set. It
// implements dispatcher.Registry.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*module.Artifact
	byLogType map[string][]*module.Artifact
}

func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]*module.Artifact),
		byLogType: make(map[string][]*module.Artifact),
	}
}

// Replace atomically swaps in a freshly loaded module set.
func (r *Registry) Replace(artifacts []*module.Artifact) {
	byName := make(map[string]*module.Artifact, len(artifacts))
	byLogType := make(map[string][]*module.Artifact)
	for _, a := range artifacts {
		byName[a.Filename] = a
		byLogType[a.LogType] = append(byLogType[a.LogType], a)
	}

	r.mu.Lock()
	r.byName = byName
	r.byLogType = byLogType
	r.mu.Unlock()
}

// ArtifactsForLogType implements dispatcher.Registry.
func (r *Registry) ArtifactsForLogType(logType string) []*module.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byLogType[logType]
}

// Artifact implements dispatcher.Registry.
func (r *Registry) Artifact(filename string) (*module.Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[filename]
	return a, ok
}

// All returns every loaded artifact, for diagnostics.
func (r *Registry) All() []*module.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*module.Artifact, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	return out
}
