package canon_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/plantops/invaudit/internal/canon"
)

func TestValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

	testCases := []struct {
		name     string
		in       any
		expected any
	}{
		{name: "nil", in: nil, expected: nil},
		{name: "bytes_become_string", in: []byte("10.0.0.5"), expected: "10.0.0.5"},
		{name: "string_passthrough", in: "press", expected: "press"},
		{name: "int64_passthrough", in: int64(3), expected: int64(3)},
		{name: "bool_passthrough", in: true, expected: true},
		{name: "time_rfc3339", in: ts, expected: "2026-03-14T09:26:53.589Z"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, canon.Value(tc.in))
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", canon.String(nil))
	assert.Equal(t, "e1", canon.String("e1"))
	assert.Equal(t, "42", canon.String(int64(42)))
	assert.Equal(t, "1.5", canon.String(1.5))
	assert.Equal(t, "true", canon.String(true))
}
