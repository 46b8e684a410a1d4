package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"wiki-data-pipeline/internal/model"
)

// Predicate selects records by title.
type Predicate interface {
	Match(model.Record) bool
	String() string
}

// Filter expression prefixes.
const (
	prefixContains   = "contains:"
	prefixStartsWith = "startswith:"
	prefixEquals     = "equals:"
)

// DefaultCriteria is the filter applied when none is configured.
const DefaultCriteria = "contains:List of"

// fold returns the caseless form of s. Casers are stateful, so one is made per call.
func fold(s string) string { return cases.Fold().String(s) }

type containsPredicate struct {
	needle string
	folded string
}

// Contains matches titles containing s, ignoring case.
func Contains(s string) Predicate {
	return containsPredicate{needle: s, folded: fold(s)}
}

func (p containsPredicate) Match(rec model.Record) bool {
	return strings.Contains(fold(rec.Title), p.folded)
}

func (p containsPredicate) String() string { return prefixContains + p.needle }

type prefixPredicate string

// StartsWith matches titles beginning with s. Case matters.
func StartsWith(s string) Predicate { return prefixPredicate(s) }

func (p prefixPredicate) Match(rec model.Record) bool {
	return strings.HasPrefix(rec.Title, string(p))
}

func (p prefixPredicate) String() string { return prefixStartsWith + string(p) }

type equalsPredicate string

// Equals matches titles equal to s.
func Equals(s string) Predicate { return equalsPredicate(s) }

func (p equalsPredicate) Match(rec model.Record) bool { return rec.Title == string(p) }

func (p equalsPredicate) String() string { return prefixEquals + string(p) }

// PredicateFunc adapts a plain function. Name is used for reporting.
type PredicateFunc struct {
	Name string
	Fn   func(model.Record) bool
}

func (p PredicateFunc) Match(rec model.Record) bool { return p.Fn(rec) }

func (p PredicateFunc) String() string { return p.Name }

// ParsePredicate understands "contains:", "startswith:" and "equals:"
// expressions. A bare string is an exact match. Blank arguments are
// rejected rather than matching everything.
func ParsePredicate(expr string) (Predicate, error) {
	switch {
	case strings.HasPrefix(expr, prefixContains):
		return nonEmpty(expr, prefixContains, Contains)
	case strings.HasPrefix(expr, prefixStartsWith):
		return nonEmpty(expr, prefixStartsWith, StartsWith)
	case strings.HasPrefix(expr, prefixEquals):
		return nonEmpty(expr, prefixEquals, Equals)
	case strings.TrimSpace(expr) == "":
		return nil, fmt.Errorf("empty filter criteria")
	default:
		return Equals(expr), nil
	}
}

func nonEmpty(expr, prefix string, build func(string) Predicate) (Predicate, error) {
	arg := strings.TrimPrefix(expr, prefix)
	if strings.TrimSpace(arg) == "" {
		return nil, fmt.Errorf("filter %q needs an argument", strings.TrimSuffix(prefix, ":"))
	}
	return build(arg), nil
}

// FilterReport describes one filter application.
type FilterReport struct {
	InputRows   int
	MatchedRows int
	OutputRows  int
	Fallback    bool
	Criteria    string
}

// Metadata renders the report for the step output.
func (r FilterReport) Metadata() model.Metadata {
	return model.Metadata{
		"input_rows":   model.Count(r.InputRows),
		"matched_rows": model.Count(r.MatchedRows),
		"output_rows":  model.Count(r.OutputRows),
		"fallback":     model.Flag(r.Fallback),
		"criteria":     model.Text(r.Criteria),
	}
}

// FilterByCriteria keeps the records matching pred. When a non-empty batch
// has no match at all, the whole input is passed through and the report is
// flagged as a fallback, so the output is empty only if the input was.
func FilterByCriteria(in model.Batch, pred Predicate) (model.Batch, FilterReport) {
	report := FilterReport{
		InputRows: len(in.Records),
		Criteria:  pred.String(),
	}

	matched := make([]model.Record, 0, len(in.Records))
	for _, rec := range in.Records {
		if pred.Match(rec) {
			matched = append(matched, rec)
		}
	}
	report.MatchedRows = len(matched)

	if len(matched) == 0 && len(in.Records) > 0 {
		report.Fallback = true
		report.OutputRows = len(in.Records)
		return in.Clone(), report
	}

	out := model.NewBatch(matched)
	out.Enriched = in.Enriched
	report.OutputRows = len(matched)
	return out, report
}
