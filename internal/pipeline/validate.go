package pipeline

import (
	"fmt"
	"strings"

	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/pkg/utils"
)

// FieldType is the declared type a raw value must coerce to.
type FieldType int

const (
	FieldInt FieldType = iota
	FieldString
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "integer"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

// Field declares one column of a record schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Min      *int64 // integer fields only
	NonEmpty bool   // string fields only, checked after trimming
}

// Schema is a declarative record-shape contract. Key names the field used
// for duplicate detection.
type Schema struct {
	Fields []Field
	Key    string
}

var minPageID int64 = 1

const previewSize = 5

// PageSchema is the contract for MediaWiki allpages entries.
var PageSchema = Schema{
	Key: model.ColumnPageID,
	Fields: []Field{
		{Name: model.ColumnPageID, Type: FieldInt, Required: true, Min: &minPageID},
		{Name: model.ColumnTitle, Type: FieldString, Required: true, NonEmpty: true},
		{Name: model.ColumnNamespace, Type: FieldInt},
	},
}

// ValidationReport counts what happened to each raw record.
type ValidationReport struct {
	InputRows         int
	ValidRows         int
	DroppedInvalid    int
	DroppedDuplicates int
	Reasons           map[string]int
	Preview           string
}

// Metadata renders the report for the step output.
func (r ValidationReport) Metadata() model.Metadata {
	return model.Metadata{
		"input_rows":         model.Count(r.InputRows),
		"valid_rows":         model.Count(r.ValidRows),
		"dropped_invalid":    model.Count(r.DroppedInvalid),
		"dropped_duplicates": model.Count(r.DroppedDuplicates),
		"preview":            model.Text(r.Preview),
	}
}

// Validate checks and coerces every raw record. Records that fail coercion
// and later duplicates of the key are dropped and counted. It fails with
// ErrSchemaViolation only when nothing survives.
func (s Schema) Validate(raw []model.GenericRecord) (model.Batch, ValidationReport, error) {
	report := ValidationReport{
		InputRows: len(raw),
		Reasons:   make(map[string]int),
	}

	records := make([]model.Record, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, rec := range raw {
		out, err := s.coerce(rec)
		if err != nil {
			report.DroppedInvalid++
			report.Reasons[err.Error()]++
			continue
		}
		if _, dup := seen[out.PageID]; dup {
			report.DroppedDuplicates++
			continue
		}
		seen[out.PageID] = struct{}{}
		records = append(records, out)
	}
	report.ValidRows = len(records)

	if len(records) == 0 {
		return model.Batch{}, report, fmt.Errorf("%w: no records survived validation (%d input, %d invalid)",
			ErrSchemaViolation, report.InputRows, report.DroppedInvalid)
	}
	batch := model.NewBatch(records)
	report.Preview = model.Preview(batch.Titles(), previewSize)
	return batch, report, nil
}

// coerce applies the schema to a single raw record.
func (s Schema) coerce(rec model.GenericRecord) (model.Record, error) {
	var out model.Record
	for _, field := range s.Fields {
		val, ok := rec[field.Name]
		if !ok || val == nil {
			if field.Required {
				return out, fmt.Errorf("missing required field: %s", field.Name)
			}
			continue
		}

		switch field.Type {
		case FieldInt:
			n, ok := utils.ToInt64(val)
			if !ok {
				return out, fmt.Errorf("field %s must be %s", field.Name, field.Type)
			}
			if field.Min != nil && n < *field.Min {
				return out, fmt.Errorf("field %s below minimum", field.Name)
			}
			assignInt(&out, field.Name, n)
		case FieldString:
			str, ok := utils.ToString(val)
			if !ok {
				return out, fmt.Errorf("field %s must be %s", field.Name, field.Type)
			}
			str = strings.TrimSpace(str)
			if field.NonEmpty && str == "" {
				return out, fmt.Errorf("field %s must not be empty", field.Name)
			}
			assignString(&out, field.Name, str)
		}
	}
	return out, nil
}

func assignInt(rec *model.Record, name string, n int64) {
	switch name {
	case model.ColumnPageID:
		rec.PageID = n
	case model.ColumnNamespace:
		ns := n
		rec.Namespace = &ns
	}
}

func assignString(rec *model.Record, name, s string) {
	if name == model.ColumnTitle {
		rec.Title = s
	}
}
