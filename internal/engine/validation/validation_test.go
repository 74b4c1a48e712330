package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restforge/restforge/internal/storage"
)

func TestValidationErrors(t *testing.T) {
	t.Run("empty collector has no errors", func(t *testing.T) {
		errs := NewValidationErrors()
		assert.False(t, errs.HasErrors())
		assert.Equal(t, 0, errs.Count())
	})

	t.Run("add accumulates per field", func(t *testing.T) {
		errs := NewValidationErrors()
		errs.Add("title", "this field is required")
		errs.Add("title", "must be at least 1 characters")
		errs.Addf("body", "must be at most %d characters", 10)

		assert.True(t, errs.HasErrors())
		assert.Equal(t, 3, errs.Count())
		assert.Len(t, errs.Fields["title"], 2)
	})

	t.Run("merge combines collectors", func(t *testing.T) {
		a := NewValidationErrors()
		a.Add("title", "this field is required")
		b := NewValidationErrors()
		b.Add("body", "this field is required")
		b.Add("title", "too short")

		a.Merge(b)
		assert.Equal(t, 3, a.Count())
		assert.Len(t, a.Fields["title"], 2)
	})

	t.Run("error message lists fields in sorted order", func(t *testing.T) {
		errs := NewValidationErrors()
		errs.Add("zeta", "bad")
		errs.Add("alpha", "bad")

		msg := errs.Error()
		assert.Less(t, strings.Index(msg, "alpha"), strings.Index(msg, "zeta"))
	})
}

func TestCheckValue(t *testing.T) {
	cases := []struct {
		name    string
		ft      storage.FieldType
		value   interface{}
		wantErr bool
	}{
		{"string ok", storage.TypeString, "hello", false},
		{"string wrong type", storage.TypeString, 42, true},
		{"int ok", storage.TypeInt, 42, false},
		{"int from json float", storage.TypeInt, float64(42), false},
		{"int fractional float", storage.TypeInt, 42.5, true},
		{"float ok", storage.TypeFloat, 3.14, false},
		{"bool ok", storage.TypeBool, true, false},
		{"bool wrong type", storage.TypeBool, "true", true},
		{"timestamp rfc3339", storage.TypeTimestamp, "2024-06-01T12:00:00Z", false},
		{"timestamp native", storage.TypeTimestamp, time.Now(), false},
		{"timestamp malformed", storage.TypeTimestamp, "yesterday", true},
		{"uuid ok", storage.TypeUUID, "550e8400-e29b-41d4-a716-446655440000", false},
		{"uuid malformed", storage.TypeUUID, "not-a-uuid", true},
		{"json object", storage.TypeJSON, map[string]interface{}{"a": 1}, false},
		{"nil always passes", storage.TypeString, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckValue(tc.ft, tc.value)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldRules(t *testing.T) {
	t.Run("min length", func(t *testing.T) {
		rule := MinLength(3)
		assert.NoError(t, rule("abc"))
		assert.Error(t, rule("ab"))
		assert.Error(t, rule(42))
	})

	t.Run("max length", func(t *testing.T) {
		rule := MaxLength(3)
		assert.NoError(t, rule("abc"))
		assert.Error(t, rule("abcd"))
	})

	t.Run("pattern", func(t *testing.T) {
		rule := Pattern(`^[a-z]+$`)
		assert.NoError(t, rule("abc"))
		assert.Error(t, rule("ABC"))
	})

	t.Run("one of", func(t *testing.T) {
		rule := OneOf("draft", "published")
		require.NoError(t, rule("draft"))
		assert.Error(t, rule("archived"))
	})
}
