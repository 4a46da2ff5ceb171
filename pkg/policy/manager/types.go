package manager

import (
	"time"

	"github.com/kagehq/echos-sub001/pkg/chaos"
)

// Template is a named, reusable policy definition loaded from disk.
// Templates are immutable once loaded; a directory change replaces the whole
// set.
type Template struct {
	// ID is derived from the file name (without extension).
	ID string `yaml:"-" json:"id"`

	// Name is the human-readable template name. Defaults to ID.
	Name string `yaml:"name" json:"name"`

	// Version is the template version string.
	Version string `yaml:"version" json:"version"`

	// Description describes what the template is for.
	Description string `yaml:"description" json:"description"`

	// Allow, Ask, and Block are ordered lists of "intent:target" patterns.
	Allow []string `yaml:"allow" json:"allow"`
	Ask   []string `yaml:"ask" json:"ask"`
	Block []string `yaml:"block" json:"block"`

	// Limits holds optional spend limits. Values are kept loosely typed at
	// load time; merging prunes anything non-numeric.
	Limits map[string]any `yaml:"limits,omitempty" json:"limits,omitempty"`

	// SourceFile is the path the template was loaded from.
	SourceFile string `yaml:"-" json:"-"`
}

// Overrides are agent-supplied additions applied on top of a template when a
// role is assigned. Rule lists are validated against the closed pattern
// grammar before they are accepted.
type Overrides struct {
	Allow  []string       `yaml:"allow,omitempty" json:"allow,omitempty"`
	Ask    []string       `yaml:"ask,omitempty" json:"ask,omitempty"`
	Block  []string       `yaml:"block,omitempty" json:"block,omitempty"`
	Limits map[string]any `yaml:"limits,omitempty" json:"limits,omitempty"`

	// Chaos optionally attaches fault injection to the agent.
	Chaos *chaos.Config `yaml:"chaos,omitempty" json:"chaos,omitempty"`
}

// ResolvedPolicy is the effective policy for an agent: a template's rule
// lists concatenated with the agent's override lists. The decision engine
// evaluates block before ask before allow regardless of rule origin.
type ResolvedPolicy struct {
	Allow  []string           `json:"allow"`
	Ask    []string           `json:"ask"`
	Block  []string           `json:"block"`
	Limits map[string]float64 `json:"limits,omitempty"`
}

// RoleAssignment binds an agent to a template and its resolved policy.
// An agent has at most one assignment; re-applying a role replaces it.
type RoleAssignment struct {
	AgentID    string         `json:"agent_id"`
	TemplateID string         `json:"template"`
	Policy     ResolvedPolicy `json:"policy"`
	AppliedAt  time.Time      `json:"applied_at"`
	Chaos      *chaos.Config  `json:"chaos,omitempty"`
}

// LoaderConfig contains configuration for the template loader.
type LoaderConfig struct {
	// MaxFileSize is the maximum template file size in bytes.
	MaxFileSize int64

	// Extensions is the list of file extensions treated as templates.
	Extensions []string

	// SkipHidden controls whether dot-files are ignored.
	SkipHidden bool
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		MaxFileSize: 1 << 20, // 1MB
		Extensions:  []string{".yaml", ".yml"},
		SkipHidden:  true,
	}
}
