package audit

import (
	"bytes"
	"reflect"
	"sort"

	"github.com/goccy/go-json"
)

// ChangedFields returns the sorted set of keys in the new row image whose
// value differs structurally from the old image. Keys absent from the old
// image count as changed. Unchanged columns never appear.
func ChangedFields(oldValues, newValues map[string]any) []string {
	var fields []string
	for key, newVal := range newValues {
		oldVal, ok := oldValues[key]
		if !ok || !structurallyEqual(oldVal, newVal) {
			fields = append(fields, key)
		}
	}
	sort.Strings(fields)
	return fields
}

// structurallyEqual compares two values by their canonical JSON
// serialization so that nested and structured column values compare by
// content rather than by reference.
func structurallyEqual(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(aj, bj)
}
