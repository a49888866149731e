package report

import (
	"context"

	"github.com/jonwraymond/dbinspect/catalog"
	"github.com/jonwraymond/dbinspect/result"
	"github.com/jonwraymond/dbinspect/target"
)

// Report is the root of the summary tree.
type Report struct {
	Counts    result.Counts `json:"counts"`
	Instances []Instance    `json:"instances"`
}

// Instance summarizes every target of one logical instance.
type Instance struct {
	Name   string        `json:"name"`
	Counts result.Counts `json:"counts"`

	// Groups merges the results of all targets of the instance.
	Groups []Group `json:"groups,omitempty"`

	// Targets lists every registered target, including those with no results.
	Targets []Target `json:"targets"`
}

// Target summarizes one target.
type Target struct {
	ID          string          `json:"id"`
	Environment string          `json:"environment,omitempty"`
	NodeGroup   string          `json:"node_group,omitempty"`
	Role        target.RoleMode `json:"role,omitempty"`
	Cloud       bool            `json:"cloud"`
	Counts      result.Counts   `json:"counts"`
	Groups      []Group         `json:"groups,omitempty"`
}

// Group holds the results of one check group. Groups without results are
// omitted from the tree.
type Group struct {
	Code    string               `json:"code"`
	Name    string               `json:"name,omitempty"`
	Counts  result.Counts        `json:"counts"`
	Results []result.CheckResult `json:"results"`
}

// Sink receives a finished report. Rendering and persistence live behind it.
type Sink interface {
	Write(ctx context.Context, r *Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *Report) error

// Write calls f(ctx, r).
func (f SinkFunc) Write(ctx context.Context, r *Report) error { return f(ctx, r) }

type leafKey struct {
	target, group, check string
}

// Build folds results into a report. It is a pure function of its inputs:
// instances, targets and groups follow registry and catalog order, and
// results keep their input order within a group.
func Build(reg *target.Registry, cat *catalog.Catalog, results []result.CheckResult) (*Report, error) {
	if reg == nil {
		reg = &target.Registry{}
	}
	if cat == nil {
		cat = &catalog.Catalog{}
	}

	byTarget := make(map[string][]result.CheckResult)
	seen := make(map[leafKey]bool, len(results))

	for _, r := range results {
		t, ok := reg.Lookup(r.TargetID)
		if !ok {
			return nil, leafError(r.TargetID, "unknown target")
		}
		if r.Instance != t.Instance {
			return nil, leafError(r.TargetID, "instance "+r.Instance+" does not own target")
		}
		if _, ok := cat.Group(r.GroupCode); !ok {
			return nil, leafError(r.TargetID, "unknown group "+r.GroupCode)
		}
		if _, ok := cat.Lookup(r.GroupCode, r.CheckID); !ok {
			return nil, leafError(r.TargetID, "unknown check "+r.GroupCode+"/"+r.CheckID)
		}
		k := leafKey{r.TargetID, r.GroupCode, r.CheckID}
		if seen[k] {
			return nil, leafError(r.TargetID, "duplicate result for "+r.GroupCode+"/"+r.CheckID)
		}
		seen[k] = true
		byTarget[r.TargetID] = append(byTarget[r.TargetID], r)
	}

	groups := cat.Groups()
	rep := &Report{Instances: make([]Instance, 0, len(reg.Instances()))}
	instanceCounts := make([]result.Counts, 0, len(reg.Instances()))

	for _, name := range reg.Instances() {
		inst, err := buildInstance(name, reg.Instance(name), groups, byTarget)
		if err != nil {
			return nil, err
		}
		rep.Instances = append(rep.Instances, inst)
		instanceCounts = append(instanceCounts, inst.Counts)
	}

	rep.Counts = result.Sum(instanceCounts...)
	if err := reconcile(LevelGlobal, "", rep.Counts, results); err != nil {
		return nil, err
	}
	return rep, nil
}

func buildInstance(name string, targets []target.Target, groups []catalog.Group, byTarget map[string][]result.CheckResult) (Instance, error) {
	inst := Instance{Name: name, Targets: make([]Target, 0, len(targets))}

	var leaves []result.CheckResult
	targetCounts := make([]result.Counts, 0, len(targets))
	for _, t := range targets {
		tr, err := buildTarget(t, groups, byTarget[t.ID()])
		if err != nil {
			return Instance{}, err
		}
		inst.Targets = append(inst.Targets, tr)
		targetCounts = append(targetCounts, tr.Counts)
		leaves = append(leaves, byTarget[t.ID()]...)
	}

	// Merged groups: per code, the target groups in target order.
	for _, g := range groups {
		merged := Group{Code: g.Code, Name: g.Name}
		var parts []result.Counts
		for _, tr := range inst.Targets {
			for _, tg := range tr.Groups {
				if tg.Code == g.Code {
					merged.Results = append(merged.Results, tg.Results...)
					parts = append(parts, tg.Counts)
				}
			}
		}
		if len(merged.Results) == 0 {
			continue
		}
		merged.Counts = result.Sum(parts...)
		if err := reconcile(LevelGroup, name+":"+g.Code, merged.Counts, merged.Results); err != nil {
			return Instance{}, err
		}
		inst.Groups = append(inst.Groups, merged)
	}

	inst.Counts = result.Sum(targetCounts...)
	if err := reconcile(LevelInstance, name, inst.Counts, leaves); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func buildTarget(t target.Target, groups []catalog.Group, leaves []result.CheckResult) (Target, error) {
	tr := Target{
		ID:          t.ID(),
		Environment: t.Environment,
		NodeGroup:   t.NodeGroup,
		Role:        t.Role,
		Cloud:       t.Cloud,
	}

	groupCounts := make([]result.Counts, 0, len(groups))
	for _, g := range groups {
		var rs []result.CheckResult
		for _, r := range leaves {
			if r.GroupCode == g.Code {
				rs = append(rs, r)
			}
		}
		if len(rs) == 0 {
			continue
		}
		tg := Group{Code: g.Code, Name: g.Name, Counts: result.Tally(rs), Results: rs}
		if err := reconcile(LevelGroup, tr.ID+":"+g.Code, tg.Counts, rs); err != nil {
			return Target{}, err
		}
		tr.Groups = append(tr.Groups, tg)
		groupCounts = append(groupCounts, tg.Counts)
	}

	tr.Counts = result.Sum(groupCounts...)
	if err := reconcile(LevelTarget, tr.ID, tr.Counts, leaves); err != nil {
		return Target{}, err
	}
	return tr, nil
}

// Results returns every leaf in tree order.
func (r *Report) Results() []result.CheckResult {
	var out []result.CheckResult
	for _, inst := range r.Instances {
		for _, t := range inst.Targets {
			for _, g := range t.Groups {
				out = append(out, g.Results...)
			}
		}
	}
	return out
}

// Verify recomputes every level of the tree from the leaves it holds and
// returns an *AggregationError at the first level that does not reconcile.
func (r *Report) Verify() error {
	instanceCounts := make([]result.Counts, 0, len(r.Instances))
	var all []result.CheckResult

	for _, inst := range r.Instances {
		var leaves []result.CheckResult
		targetCounts := make([]result.Counts, 0, len(inst.Targets))

		for _, t := range inst.Targets {
			var tLeaves []result.CheckResult
			groupCounts := make([]result.Counts, 0, len(t.Groups))
			for _, g := range t.Groups {
				if err := reconcile(LevelGroup, t.ID+":"+g.Code, g.Counts, g.Results); err != nil {
					return err
				}
				groupCounts = append(groupCounts, g.Counts)
				tLeaves = append(tLeaves, g.Results...)
			}
			if err := reconcile(LevelTarget, t.ID, t.Counts, tLeaves); err != nil {
				return err
			}
			if derived := result.Sum(groupCounts...); derived != t.Counts {
				return &AggregationError{Level: LevelTarget, Key: t.ID, Got: t.Counts, Want: derived}
			}
			targetCounts = append(targetCounts, t.Counts)
			leaves = append(leaves, tLeaves...)
		}

		mergedCounts := make([]result.Counts, 0, len(inst.Groups))
		for _, g := range inst.Groups {
			if err := reconcile(LevelGroup, inst.Name+":"+g.Code, g.Counts, g.Results); err != nil {
				return err
			}
			mergedCounts = append(mergedCounts, g.Counts)
		}
		if merged := result.Sum(mergedCounts...); merged != result.Tally(leaves) {
			return &AggregationError{Level: LevelInstance, Key: inst.Name, Reason: "merged groups do not cover the target groups", Got: merged, Want: result.Tally(leaves)}
		}

		if err := reconcile(LevelInstance, inst.Name, inst.Counts, leaves); err != nil {
			return err
		}
		if derived := result.Sum(targetCounts...); derived != inst.Counts {
			return &AggregationError{Level: LevelInstance, Key: inst.Name, Got: inst.Counts, Want: derived}
		}
		instanceCounts = append(instanceCounts, inst.Counts)
		all = append(all, leaves...)
	}

	if err := reconcile(LevelGlobal, "", r.Counts, all); err != nil {
		return err
	}
	if derived := result.Sum(instanceCounts...); derived != r.Counts {
		return &AggregationError{Level: LevelGlobal, Got: r.Counts, Want: derived}
	}
	return nil
}
