package catalog

import (
	"fmt"
	"strings"

	"github.com/jonwraymond/dbinspect/target"
)

// Predicate restricts a check to targets whose attribute equals Value.
type Predicate struct {
	Attribute target.Attribute
	Value     string
}

// Matches reports whether t satisfies the predicate. Matching is exact.
func (p Predicate) Matches(t target.Target) bool {
	v, ok := t.Attribute(p.Attribute)
	return ok && v == p.Value
}

// Definition describes one check.
type Definition struct {
	// ID is unique within the group.
	ID string

	// Group is the code of the owning group. It is filled in by New.
	Group string

	// Name is the display name.
	Name string

	// Remark describes what the check looks at.
	Remark string

	// When restricts applicability. Nil means always applicable.
	When *Predicate

	// Policy decides the status from the probed value.
	Policy Policy

	// Probe is the reference the probe adapter resolves.
	Probe string
}

// AppliesTo reports whether the check should run against t: the target
// selects it and its predicate, if any, matches.
func (d Definition) AppliesTo(t target.Target) bool {
	if !t.Selects(d.Group, d.ID) {
		return false
	}
	return d.When == nil || d.When.Matches(t)
}

// DisplayName returns Name, falling back to ID.
func (d Definition) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Group is an ordered set of checks.
type Group struct {
	Code   string
	Name   string
	Remark string
	Checks []Definition
}

// Catalog is the validated, read-only set of check groups.
type Catalog struct {
	groups     []Group
	index      map[string]int
	evaluators map[Kind]Evaluator
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithEvaluator registers an evaluator for kind on this catalog, replacing
// a built-in of the same kind.
func WithEvaluator(kind Kind, fn Evaluator) Option {
	return func(c *Catalog) {
		c.evaluators[kind] = fn
	}
}

// New validates groups and builds a Catalog.
func New(groups []Group, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		groups:     make([]Group, 0, len(groups)),
		index:      make(map[string]int, len(groups)),
		evaluators: builtinEvaluators(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, g := range groups {
		g.Code = strings.TrimSpace(g.Code)
		if g.Code == "" {
			return nil, ErrMissingGroupCode
		}
		if _, dup := c.index[g.Code]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateGroup, g.Code)
		}

		checks := make([]Definition, len(g.Checks))
		ids := make(map[string]bool, len(g.Checks))
		for i, def := range g.Checks {
			def.Group = g.Code
			if err := c.validate(def); err != nil {
				return nil, err
			}
			if ids[def.ID] {
				return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateCheck, g.Code, def.ID)
			}
			ids[def.ID] = true
			if def.When != nil {
				when := *def.When
				def.When = &when
			}
			checks[i] = def
		}
		g.Checks = checks

		c.index[g.Code] = len(c.groups)
		c.groups = append(c.groups, g)
	}

	return c, nil
}

func (c *Catalog) validate(def Definition) error {
	if strings.TrimSpace(def.ID) == "" {
		return fmt.Errorf("%w in group %q", ErrMissingCheckID, def.Group)
	}
	if strings.TrimSpace(def.Probe) == "" {
		return fmt.Errorf("%w: %s/%s", ErrMissingProbe, def.Group, def.ID)
	}
	if def.When != nil && !def.When.Attribute.Known() {
		return fmt.Errorf("%w: %q on %s/%s", ErrUnknownAttribute, def.When.Attribute, def.Group, def.ID)
	}
	if _, ok := c.evaluators[def.Policy.Kind]; !ok {
		return fmt.Errorf("%w: %q on %s/%s", ErrUnknownKind, def.Policy.Kind, def.Group, def.ID)
	}
	if def.Policy.Kind == KindThreshold && !def.Policy.Comparator.Valid() {
		return fmt.Errorf("%w: %q on %s/%s", ErrUnknownComparator, def.Policy.Comparator, def.Group, def.ID)
	}
	return nil
}

// Len returns the total number of check definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, g := range c.groups {
		n += len(g.Checks)
	}
	return n
}

// Groups returns the groups in catalog order.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		out[i] = cloneGroup(g)
	}
	return out
}

// Group returns the group with the given code.
func (c *Catalog) Group(code string) (Group, bool) {
	idx, ok := c.index[code]
	if !ok {
		return Group{}, false
	}
	return cloneGroup(c.groups[idx]), true
}

// Unselectable returns the selections of t that name a group or check
// missing from the catalog, as "group" or "group/check".
func (c *Catalog) Unselectable(t target.Target) []string {
	var out []string
	for _, sel := range t.Select {
		if _, ok := c.index[sel.Group]; !ok {
			out = append(out, sel.Group)
			continue
		}
		for _, id := range sel.Checks {
			if _, ok := c.Lookup(sel.Group, id); !ok {
				out = append(out, sel.Group+"/"+id)
			}
		}
	}
	return out
}

// Lookup returns the check with the given id in the group with the given code.
func (c *Catalog) Lookup(code, id string) (Definition, bool) {
	idx, ok := c.index[code]
	if !ok {
		return Definition{}, false
	}
	for _, def := range c.groups[idx].Checks {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

func cloneGroup(g Group) Group {
	checks := make([]Definition, len(g.Checks))
	copy(checks, g.Checks)
	g.Checks = checks
	return g
}

// ApplicableChecks returns the checks of one group that apply to t, in
// catalog order. An unknown group yields nil.
func (c *Catalog) ApplicableChecks(code string, t target.Target) []Definition {
	idx, ok := c.index[code]
	if !ok {
		return nil
	}
	var out []Definition
	for _, def := range c.groups[idx].Checks {
		if def.AppliesTo(t) {
			out = append(out, def)
		}
	}
	return out
}

// Applicable returns every check that applies to t across all groups, groups
// in catalog order and checks in group order.
func (c *Catalog) Applicable(t target.Target) []Definition {
	var out []Definition
	for _, g := range c.groups {
		out = append(out, c.ApplicableChecks(g.Code, t)...)
	}
	return out
}
