// Package project holds the immutable catalog of sample programs the
// repository expects every language to implement.
package project

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"polyglot/internal/config"
	"polyglot/internal/logging"
	"polyglot/internal/naming"
)

// ErrUnknownProject is returned when an identifier is not in the catalog.
var ErrUnknownProject = errors.New("unknown project")

// Spec describes one project: the words its filenames are built from and
// how acronyms among them are cased.
type Spec struct {
	Words              []string
	RequiresParameters bool
	Acronyms           naming.Acronyms
	AcronymPolicy      naming.AcronymPolicy
	Tests              []string
}

// Filename returns the filename stem for this project under scheme.
func (s *Spec) Filename(scheme naming.Scheme) (string, error) {
	return naming.Generate(s.Words, s.Acronyms, s.AcronymPolicy, scheme)
}

// DisplayName returns the human readable project name, e.g. "File IO".
func (s *Spec) DisplayName() string {
	return naming.Display(s.Words, s.Acronyms, s.AcronymPolicy)
}

// TestNames returns the test functions registered for the project, falling
// back to test_<id> when none are configured.
func (s *Spec) TestNames(id string) []string {
	if len(s.Tests) > 0 {
		out := make([]string, len(s.Tests))
		copy(out, s.Tests)
		return out
	}
	return []string{"test_" + id}
}

// Catalog maps project identifiers to their specs. It is never mutated
// after New returns.
type Catalog struct {
	projects      map[string]*Spec
	defaultPolicy naming.AcronymPolicy
}

// New builds a catalog from cfg. A configuration without a projects
// section yields an empty catalog.
func New(cfg *config.Config) (*Catalog, error) {
	c := &Catalog{
		projects:      make(map[string]*Spec),
		defaultPolicy: naming.PolicyUpper,
	}
	if cfg == nil {
		logging.CatalogWarn("No configuration supplied; project catalog is empty")
		return c, nil
	}
	if cfg.Settings.AcronymScheme != "" {
		c.defaultPolicy = cfg.Settings.AcronymScheme
	}
	if !cfg.HasProjects() {
		logging.CatalogWarn("Configuration has no projects section; project catalog is empty")
		return c, nil
	}

	for id, pc := range cfg.Projects {
		if len(pc.Words) == 0 {
			return nil, fmt.Errorf("%w: project %q has no words", config.ErrInvalidConfig, id)
		}
		policy := pc.AcronymScheme
		if policy == "" {
			policy = c.defaultPolicy
		}
		words := make([]string, len(pc.Words))
		copy(words, pc.Words)
		c.projects[id] = &Spec{
			Words:              words,
			RequiresParameters: pc.RequiresParameters,
			Acronyms:           naming.NewAcronyms(pc.Acronyms...),
			AcronymPolicy:      policy,
			Tests:              pc.Tests,
		}
		logging.CatalogDebug("Registered project %s (words=%v policy=%s)", id, words, policy)
	}
	logging.Catalog("Loaded %d projects", len(c.projects))
	return c, nil
}

// Lookup returns the spec for id.
func (c *Catalog) Lookup(id string) (*Spec, error) {
	if s, ok := c.projects[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProject, id)
}

// TryLookup returns the spec for id and whether it exists.
func (c *Catalog) TryLookup(id string) (*Spec, bool) {
	s, ok := c.projects[id]
	return s, ok
}

// Contains reports whether id names a project, ignoring case.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.Canonical(id)
	return ok
}

// Canonical maps id to the catalog's spelling of it, ignoring case.
func (c *Catalog) Canonical(id string) (string, bool) {
	if _, ok := c.projects[id]; ok {
		return id, true
	}
	lower := strings.ToLower(id)
	for key := range c.projects {
		if strings.ToLower(key) == lower {
			return key, true
		}
	}
	return "", false
}

// All returns a copy of the identifier to spec mapping.
func (c *Catalog) All() map[string]*Spec {
	out := make(map[string]*Spec, len(c.projects))
	for id, s := range c.projects {
		out[id] = s
	}
	return out
}

// IDs returns the project identifiers in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.projects))
	for id := range c.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of projects.
func (c *Catalog) Len() int { return len(c.projects) }

// DefaultPolicy is the policy applied to projects without their own.
func (c *Catalog) DefaultPolicy() naming.AcronymPolicy { return c.defaultPolicy }

// FilenameFor returns the filename stem of project id under scheme.
func (c *Catalog) FilenameFor(id string, scheme naming.Scheme) (string, error) {
	s, err := c.Lookup(id)
	if err != nil {
		return "", err
	}
	return s.Filename(scheme)
}

// DisplayName returns the display name of project id.
func (c *Catalog) DisplayName(id string) (string, error) {
	s, err := c.Lookup(id)
	if err != nil {
		return "", err
	}
	return s.DisplayName(), nil
}
