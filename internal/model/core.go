package model

import (
	"strconv"
	"time"
)

// GenericRecord is a schema-agnostic map for any data source
type GenericRecord map[string]interface{}

// Record represents a single encyclopedia page entry
type Record struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Namespace *int64 `json:"ns,omitempty"`

	// Derived by the transform stage, never supplied by the source.
	ProcessedAt time.Time `json:"processed_at,omitempty"`
	Sequence    int       `json:"sequence,omitempty"`
	Source      string    `json:"source,omitempty"`
}

// Batch is an ordered set of records produced by one step.
type Batch struct {
	Records []Record `json:"records"`
	// Raw is only populated by source steps, before validation.
	Raw      []GenericRecord `json:"raw,omitempty"`
	Enriched bool            `json:"enriched"`
}

// Column names in persisted order.
const (
	ColumnPageID      = "pageid"
	ColumnTitle       = "title"
	ColumnNamespace   = "ns"
	ColumnProcessedAt = "processed_at"
	ColumnSequence    = "sequence"
	ColumnSource      = "source"
)

// NewBatch wraps validated records.
func NewBatch(records []Record) Batch {
	if records == nil {
		records = []Record{}
	}
	return Batch{Records: records}
}

// NewRawBatch wraps raw records fetched from a source.
func NewRawBatch(raw []GenericRecord) Batch {
	if raw == nil {
		raw = []GenericRecord{}
	}
	return Batch{Raw: raw}
}

// RowCount returns the number of rows the batch carries.
func (b Batch) RowCount() int {
	if b.Raw != nil {
		return len(b.Raw)
	}
	return len(b.Records)
}

// IsRaw reports whether the batch has not been validated yet.
func (b Batch) IsRaw() bool {
	return b.Raw != nil
}

// Titles returns the titles in batch order.
func (b Batch) Titles() []string {
	titles := make([]string, 0, len(b.Records))
	for _, rec := range b.Records {
		titles = append(titles, rec.Title)
	}
	return titles
}

// Columns returns the tabular column order used by every sink.
func (b Batch) Columns() []string {
	columns := []string{ColumnPageID, ColumnTitle}
	for _, rec := range b.Records {
		if rec.Namespace != nil {
			columns = append(columns, ColumnNamespace)
			break
		}
	}
	if b.Enriched {
		columns = append(columns, ColumnProcessedAt, ColumnSequence, ColumnSource)
	}
	return columns
}

// Row renders a record as strings in the given column order.
func (r Record) Row(columns []string) []string {
	row := make([]string, 0, len(columns))
	for _, col := range columns {
		row = append(row, r.Value(col))
	}
	return row
}

// Value returns the string form of a single column.
func (r Record) Value(column string) string {
	switch column {
	case ColumnPageID:
		return strconv.FormatInt(r.PageID, 10)
	case ColumnTitle:
		return r.Title
	case ColumnNamespace:
		if r.Namespace == nil {
			return ""
		}
		return strconv.FormatInt(*r.Namespace, 10)
	case ColumnProcessedAt:
		if r.ProcessedAt.IsZero() {
			return ""
		}
		return r.ProcessedAt.UTC().Format(time.RFC3339)
	case ColumnSequence:
		if r.Sequence == 0 {
			return ""
		}
		return strconv.Itoa(r.Sequence)
	case ColumnSource:
		return r.Source
	default:
		return ""
	}
}

// Equal compares two records field by field.
func (r Record) Equal(other Record) bool {
	if r.PageID != other.PageID || r.Title != other.Title {
		return false
	}
	if (r.Namespace == nil) != (other.Namespace == nil) {
		return false
	}
	if r.Namespace != nil && *r.Namespace != *other.Namespace {
		return false
	}
	return r.ProcessedAt.Equal(other.ProcessedAt) &&
		r.Sequence == other.Sequence &&
		r.Source == other.Source
}

// Equal reports whether both batches hold the same records in the same order.
func (b Batch) Equal(other Batch) bool {
	if b.Enriched != other.Enriched || len(b.Records) != len(other.Records) {
		return false
	}
	for i := range b.Records {
		if !b.Records[i].Equal(other.Records[i]) {
			return false
		}
	}
	return true
}

// Clone returns a batch whose record slice can be modified independently.
func (b Batch) Clone() Batch {
	out := Batch{Enriched: b.Enriched}
	if b.Records != nil {
		out.Records = make([]Record, len(b.Records))
		copy(out.Records, b.Records)
	}
	if b.Raw != nil {
		out.Raw = make([]GenericRecord, len(b.Raw))
		copy(out.Raw, b.Raw)
	}
	return out
}

// Map renders a record as a JSON-friendly object with the given columns.
func (r Record) Map(columns []string) map[string]interface{} {
	out := make(map[string]interface{}, len(columns))
	for _, col := range columns {
		switch col {
		case ColumnPageID:
			out[col] = r.PageID
		case ColumnNamespace:
			if r.Namespace != nil {
				out[col] = *r.Namespace
			} else {
				out[col] = nil
			}
		case ColumnSequence:
			out[col] = r.Sequence
		default:
			out[col] = r.Value(col)
		}
	}
	return out
}
