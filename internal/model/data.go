package model

import (
	"fmt"
	"sort"
	"strings"
)

// MetadataKind tells a renderer how to display a metadata value.
type MetadataKind string

const (
	KindCount MetadataKind = "count"
	KindText  MetadataKind = "text"
	KindURL   MetadataKind = "url"
	KindPath  MetadataKind = "path"
	KindFlag  MetadataKind = "flag"
)

// MetadataValue is a typed display value attached to a step output
type MetadataValue struct {
	Kind  MetadataKind `json:"kind"`
	Value interface{}  `json:"value"`
}

// Metadata is observability data for one step output. It never feeds
// downstream logic.
type Metadata map[string]MetadataValue

func Count(n int) MetadataValue { return MetadataValue{Kind: KindCount, Value: n} }
func Text(s string) MetadataValue { return MetadataValue{Kind: KindText, Value: s} }
func URL(s string) MetadataValue { return MetadataValue{Kind: KindURL, Value: s} }
func Path(s string) MetadataValue { return MetadataValue{Kind: KindPath, Value: s} }
func Flag(b bool) MetadataValue { return MetadataValue{Kind: KindFlag, Value: b} }
func (v MetadataValue) String() string { return fmt.Sprint(v.Value) }

// Int returns the value of a count entry, or 0.
func (m Metadata) Int(key string) int {
	if v, ok := m[key]; ok {
		if n, ok := v.Value.(int); ok {
			return n
		}
	}
	return 0
}

// Bool returns the value of a flag entry, or false.
func (m Metadata) Bool(key string) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.Value.(bool); ok {
			return b
		}
	}
	return false
}

// Merge copies entries from other, overwriting existing keys.
func (m Metadata) Merge(other Metadata) Metadata {
	if m == nil {
		m = Metadata{}
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders "k=v" pairs in key order.
func (m Metadata) String() string {
	parts := make([]string, 0, len(m))
	for _, k := range m.Keys() {
		parts = append(parts, k+"="+m[k].String())
	}
	return strings.Join(parts, " ")
}

// Preview joins up to n titles for a short text preview.
func Preview(titles []string, n int) string {
	if len(titles) <= n {
		return strings.Join(titles, ", ")
	}
	return strings.Join(titles[:n], ", ") + fmt.Sprintf(", ... (+%d more)", len(titles)-n)
}
