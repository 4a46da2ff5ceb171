package manager

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// TemplateRegistry is a thread-safe in-memory store of loaded templates.
// Hot reloads build a complete new template map and swap it in atomically, so
// readers always observe either the old set or the new set, never a partial
// rebuild.
type TemplateRegistry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	version   string
	loadTime  time.Time
}

// NewTemplateRegistry creates a new empty template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*Template),
		loadTime:  time.Now(),
	}
}

// Get retrieves a template by id.
func (r *TemplateRegistry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, ok := r.templates[id]
	return tmpl, ok
}

// Has checks whether a template with the given id exists.
func (r *TemplateRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.templates[id]
	return ok
}

// List returns all templates sorted by id.
func (r *TemplateRegistry) List() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	templates := make([]*Template, 0, len(ids))
	for _, id := range ids {
		templates = append(templates, r.templates[id])
	}
	return templates
}

// Count returns the number of templates in the registry.
func (r *TemplateRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.templates)
}

// Replace atomically replaces the entire template set.
// This is the only mutation path used by hot reload.
func (r *TemplateRegistry) Replace(templates []*Template) {
	newTemplates := make(map[string]*Template, len(templates))
	for _, tmpl := range templates {
		newTemplates[tmpl.ID] = tmpl
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.templates = newTemplates
	r.loadTime = time.Now()
	r.version = registryVersion(newTemplates)
}

// Version returns a hash identifying the current template set.
// It changes whenever the set is replaced with different contents.
func (r *TemplateRegistry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.version
}

// LoadTime returns when the template set was last replaced.
func (r *TemplateRegistry) LoadTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.loadTime
}

// registryVersion hashes template ids and versions deterministically.
func registryVersion(templates map[string]*Template) string {
	ids := make([]string, 0, len(templates))
	for id := range templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, id := range ids {
		tmpl := templates[id]
		h.Write([]byte(tmpl.ID))
		h.Write([]byte(tmpl.Version))
		h.Write([]byte(tmpl.SourceFile))
	}

	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
