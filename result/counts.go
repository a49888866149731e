package result

// Counts is the {total, success, failure, warning, error} tuple at one level
// of the report tree.
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failure int `json:"failure"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
}

// Tally derives counts from leaf results.
//
// A result with a status outside the closed set is counted in Total only, so
// the returned value does not reconcile and the caller can detect it.
func Tally(results []CheckResult) Counts {
	var c Counts
	for _, r := range results {
		c.Total++
		switch r.Status {
		case StatusSuccess:
			c.Success++
		case StatusFailure:
			c.Failure++
		case StatusWarning:
			c.Warning++
		case StatusError:
			c.Error++
		}
	}
	return c
}

// Sum folds child counts into a parent count.
func Sum(children ...Counts) Counts {
	var c Counts
	for _, child := range children {
		c.Total += child.Total
		c.Success += child.Success
		c.Failure += child.Failure
		c.Warning += child.Warning
		c.Error += child.Error
	}
	return c
}

// Reconciled reports whether Total equals the sum of the per-status counts
// and no count is negative.
func (c Counts) Reconciled() bool {
	if c.Total < 0 || c.Success < 0 || c.Failure < 0 || c.Warning < 0 || c.Error < 0 {
		return false
	}
	return c.Total == c.Success+c.Failure+c.Warning+c.Error
}

// IsZero reports whether no results contributed to c.
func (c Counts) IsZero() bool {
	return c == Counts{}
}
