package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/apperr"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{name: "two names", content: "hello {{name}} you have {{count}} pts", want: []string{"name", "count"}},
		{name: "no placeholders", content: "just text", want: []string{}},
		{name: "empty", content: "", want: []string{}},
		{name: "duplicates preserved", content: "{{a}} {{b}} {{a}}", want: []string{"a", "b", "a"}},
		{name: "underscore lead", content: "{{_x1}}", want: []string{"_x1"}},
		{name: "max length", content: "{{abcdefghijklmnop}}", want: []string{"abcdefghijklmnop"}},
		{name: "single braces pass through", content: "{name} and {{ok}}", want: []string{"ok"}},
		{name: "adjacent", content: "{{a}}{{b}}", want: []string{"a", "b"}},
		{name: "invalid character", content: "{{bad-name}}", wantErr: true},
		{name: "unmatched opening at end", content: "{{ok}} extra {{", wantErr: true},
		{name: "unmatched opening before pair", content: "{{ {{ok}}", wantErr: true},
		{name: "unmatched closing", content: "oops }} {{ok}}", wantErr: true},
		{name: "trailing closing", content: "{{ok}} }}", wantErr: true},
		{name: "empty name", content: "{{}}", wantErr: true},
		{name: "too long", content: "{{abcdefghijklmnopq}}", wantErr: true},
		{name: "digit lead", content: "{{1abc}}", wantErr: true},
		{name: "spaces inside", content: "{{ name }}", wantErr: true},
		{name: "triple brace", content: "{{{a}}}", wantErr: true},
		{name: "single brace inside name", content: "{{a}b}}", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperr.InvalidTemplate, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	content := "{{x}} then {{y}} then {{x}}"
	first, err := Extract(content)
	require.NoError(t, err)
	second, err := Extract(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFormat(t *testing.T) {
	got, err := Format("score: {{s}}", map[string]int{"s": 42})
	require.NoError(t, err)
	assert.Equal(t, "score: 42", got)

	got, err = Format("{{a}}/{{b}} and {{a}} again", map[string]int{"a": -3, "b": 0})
	require.NoError(t, err)
	assert.Equal(t, "-3/0 and -3 again", got)

	got, err = Format("no vars {here}", nil)
	require.NoError(t, err)
	assert.Equal(t, "no vars {here}", got)
}

func TestFormatMissing(t *testing.T) {
	_, err := Format("score: {{s}}", map[string]int{})
	require.Error(t, err)
	assert.Equal(t, apperr.MissingVariable, apperr.KindOf(err))
}

func TestFormatDoesNotReexpand(t *testing.T) {
	// A value can never contain braces, but the replacement must also not be
	// applied to text produced by an earlier substitution.
	got, err := Format("{{a}}{{b}}", map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "12", got)
}

func TestDiff(t *testing.T) {
	del, add := Diff([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, []string{"a"}, del)
	assert.Equal(t, []string{"c"}, add)

	del, add = Diff(nil, []string{"x", "x", "y"})
	assert.Empty(t, del)
	assert.Equal(t, []string{"x", "y"}, add)

	del, add = Diff([]string{"k"}, []string{"k"})
	assert.Empty(t, del)
	assert.Empty(t, add)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "b", "a", "c", "b"}))
}
