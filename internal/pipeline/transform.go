package pipeline

import (
	"strings"
	"time"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"wiki-data-pipeline/internal/model"
)

// DefaultSource is the provenance stamped on enriched records.
const DefaultSource = "wikipedia_api"

// textTransform rewrites one title during cleaning.
type textTransform func(string) string

// cleaningChain runs in order; every transform is idempotent so the chain is too.
var cleaningChain = []struct {
	name string
	fn   textTransform
}{
	{"normalizeUnicode", norm.NFC.String},
	{"trimStrings", strings.TrimSpace},
	{"collapseWhitespace", collapseWhitespace},
}

// CleanTitle applies the cleaning chain to a single title. Casing is kept.
func CleanTitle(title string) string {
	for _, t := range cleaningChain {
		title = t.fn(title)
	}
	return title
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ProcessReport counts what the transform stage did to a batch.
type ProcessReport struct {
	InputRows         int
	OutputRows        int
	DroppedEmpty      int
	DroppedDuplicates int
	ProcessedAt       time.Time
	Source            string
}

// Metadata renders the report for the step output.
func (r ProcessReport) Metadata() model.Metadata {
	return model.Metadata{
		"input_rows":         model.Count(r.InputRows),
		"output_rows":        model.Count(r.OutputRows),
		"dropped_empty":      model.Count(r.DroppedEmpty),
		"dropped_duplicates": model.Count(r.DroppedDuplicates),
		"source":             model.Text(r.Source),
		"cleaning":           model.Text(cleaningSteps()),
	}
}

func cleaningSteps() string {
	names := make([]string, 0, len(cleaningChain))
	for _, t := range cleaningChain {
		names = append(names, t.name)
	}
	return strings.Join(names, ",")
}

// Processor cleans, deduplicates and enriches validated batches.
type Processor struct {
	// Now stamps the batch; nil means time.Now. Inject a fixed clock for
	// reproducible output.
	Now    func() time.Time
	Source string
}

// NewProcessor returns a processor using the wall clock.
func NewProcessor(source string) Processor {
	return Processor{Now: time.Now, Source: source}
}

// CleanAndProcess never fails. Surviving records keep their relative order,
// and every record in the batch shares one processing timestamp.
func (p Processor) CleanAndProcess(in model.Batch) (model.Batch, ProcessReport) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	source := p.Source
	if source == "" {
		source = DefaultSource
	}

	report := ProcessReport{
		InputRows:   len(in.Records),
		ProcessedAt: now().UTC().Truncate(time.Second),
		Source:      source,
	}

	index := newTitleIndex(len(in.Records))
	out := make([]model.Record, 0, len(in.Records))
	for _, rec := range in.Records {
		title := CleanTitle(rec.Title)
		if title == "" {
			report.DroppedEmpty++
			continue
		}
		if !index.add(title) {
			report.DroppedDuplicates++
			continue
		}
		rec.Title = title
		rec.ProcessedAt = report.ProcessedAt
		rec.Sequence = len(out) + 1
		rec.Source = source
		out = append(out, rec)
	}
	report.OutputRows = len(out)

	batch := model.NewBatch(out)
	batch.Enriched = true
	return batch, report
}

// titleIndex detects repeated titles by 64-bit fingerprint. Collisions are
// resolved by comparing the stored strings.
type titleIndex struct {
	buckets map[uint64][]string
}

func newTitleIndex(size int) *titleIndex {
	return &titleIndex{buckets: make(map[uint64][]string, size)}
}

// add records title and reports whether it was new.
func (idx *titleIndex) add(title string) bool {
	sum := xxhash.Sum64String(title)
	for _, existing := range idx.buckets[sum] {
		if existing == title {
			return false
		}
	}
	idx.buckets[sum] = append(idx.buckets[sum], title)
	return true
}
