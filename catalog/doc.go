// Package catalog is the immutable registry of check definitions.
//
// Checks are organised in groups. Each check carries an optional
// applicability predicate, an evaluation policy and an opaque probe reference
// that the probe adapter resolves.
//
// # Evaluation kinds
//
// Policies are evaluated through a dispatch table keyed by Kind. The built-in
// kinds are:
//
//   - KindContains: success when the expected value is a substring of the
//     stringified probe value. An empty expected value always succeeds.
//   - KindThreshold: success when the numeric probe value compares to the
//     numeric expected value with the policy's comparator.
//
// Additional kinds can be registered per catalog with WithEvaluator. Every
// definition's kind is checked when the catalog is built, so an unknown kind
// fails at load time rather than in the middle of a run.
//
// # Basic Usage
//
//	cat, err := catalog.New([]catalog.Group{{
//	    Code: "performance",
//	    Checks: []catalog.Definition{{
//	        ID:     "connections",
//	        Probe:  "CONNECTIONS_CHECK",
//	        Policy: catalog.Policy{Kind: catalog.KindThreshold, Comparator: catalog.LessThan, Expected: "500"},
//	    }},
//	}})
//
//	for _, def := range cat.Applicable(tgt) {
//	    status, err := cat.Evaluate(def, raw)
//	    ...
//	}
package catalog
