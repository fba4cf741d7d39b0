package ids

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"nil", nil, []string{}},
		{"bare string", "7", []string{"7"}},
		{"comma string", "7, 8,9", []string{"7", "8", "9"}},
		{"comma string with empties", " ,7,, 8 ,", []string{"7", "8"}},
		{"empty string", "", []string{}},
		{"blank string", "   ", []string{}},
		{"int", 7, []string{"7"}},
		{"int64", int64(42), []string{"42"}},
		{"json float", float64(101), []string{"101"}},
		{"json number", json.Number("12"), []string{"12"}},
		{"int slice", []int{7, 8}, []string{"7", "8"}},
		{"any slice", []any{7, " 8 ", nil, "", float64(9)}, []string{"7", "8", "9"}},
		{"string slice", []string{" a", "b ", ""}, []string{"a", "b"}},
		{"duplicates kept", "5,5,6", []string{"5", "5", "6"}},
		{"list", NewString("3", "4"), []string{"3", "4"}},
		{"unsupported", struct{}{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []any{
		nil, "7", "7, 8,9", []int{7, 8}, []any{"a", 2, " c "}, 15, "x,,y", NewArray(1, 2),
	}
	for _, in := range inputs {
		first := Normalize(in)
		again := Normalize(strings.Join(first, ","))
		assert.Equal(t, first, again, "input %#v", in)
		assert.Equal(t, first, Normalize(first), "input %#v", in)
	}
}

func TestUnique(t *testing.T) {
	assert.Equal(t, []string{"3", "1", "2"}, Unique([]string{"3", "1", "3", "2", "1"}))
	assert.Empty(t, Unique(nil))
}

func TestEqualAndContains(t *testing.T) {
	assert.True(t, Equal(7, "7"))
	assert.True(t, Equal(" 7", float64(7)))
	assert.False(t, Equal("7", "8"))
	assert.False(t, Equal(nil, ""))

	assert.True(t, Contains([]string{"1", "2"}, 2))
	assert.False(t, Contains([]string{"1", "2"}, 3))
	assert.False(t, Contains([]string{"1"}, nil))
}

func TestParseInt(t *testing.T) {
	n, err := ParseInt(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	for _, bad := range []any{"", "abc", "-3", nil, "0"} {
		_, err := ParseInt(bad)
		assert.Error(t, err, "input %#v", bad)
	}
}
