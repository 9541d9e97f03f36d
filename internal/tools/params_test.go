package tools

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStringParam(t *testing.T) {
	tests := []struct {
		name      string
		arguments map[string]interface{}
		key       string
		required  bool
		want      string
		wantErr   bool
	}{
		{
			name:      "valid string parameter",
			arguments: map[string]interface{}{"project": "Fabrikam"},
			key:       "project",
			required:  true,
			want:      "Fabrikam",
		},
		{
			name:      "missing required parameter",
			arguments: map[string]interface{}{},
			key:       "project",
			required:  true,
			wantErr:   true,
		},
		{
			name:      "missing optional parameter",
			arguments: map[string]interface{}{},
			key:       "project",
		},
		{
			name:      "numeric id converted to string",
			arguments: map[string]interface{}{"id": 123},
			key:       "id",
			required:  true,
			want:      "123",
		},
		{
			name:      "float64 id converted to string",
			arguments: map[string]interface{}{"id": float64(456)},
			key:       "id",
			required:  true,
			want:      "456",
		},
		{
			name:      "wrong type",
			arguments: map[string]interface{}{"project": map[string]interface{}{"key": "value"}},
			key:       "project",
			required:  true,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetStringParam(tt.arguments, tt.key, tt.required)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetIntParam(t *testing.T) {
	tests := []struct {
		name      string
		arguments map[string]interface{}
		required  bool
		want      int
		wantErr   bool
	}{
		{"float64 from JSON", map[string]interface{}{"top": float64(100)}, true, 100, false},
		{"int", map[string]interface{}{"top": 100}, true, 100, false},
		{"numeric string", map[string]interface{}{"top": " 42 "}, true, 42, false},
		{"missing required", map[string]interface{}{}, true, 0, true},
		{"missing optional", map[string]interface{}{}, false, 0, false},
		{"not a number", map[string]interface{}{"top": "lots"}, true, 0, true},
		{"wrong type", map[string]interface{}{"top": true}, true, 0, true},
		{"fractional", map[string]interface{}{"top": 2.5}, true, 0, true},
		{"beyond int range", map[string]interface{}{"top": 1e300}, true, 0, true},
		{"negative beyond int range", map[string]interface{}{"top": -1e19}, true, 0, true},
		{"infinity", map[string]interface{}{"top": math.Inf(1)}, true, 0, true},
		{"NaN", map[string]interface{}{"top": math.NaN()}, true, 0, true},
		{"large integral", map[string]interface{}{"top": float64(1 << 52)}, true, 1 << 52, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetIntParam(tt.arguments, "top", tt.required)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetIntArrayParam(t *testing.T) {
	tests := []struct {
		name      string
		arguments map[string]interface{}
		want      []int
		wantErr   bool
	}{
		{"JSON array", map[string]interface{}{"ids": []interface{}{float64(12), float64(15)}}, []int{12, 15}, false},
		{"int slice", map[string]interface{}{"ids": []int{7}}, []int{7}, false},
		{"comma separated", map[string]interface{}{"ids": "12, 15,18"}, []int{12, 15, 18}, false},
		{"trailing comma", map[string]interface{}{"ids": "12,"}, []int{12}, false},
		{"empty array", map[string]interface{}{"ids": []interface{}{}}, []int{}, false},
		{"bad element", map[string]interface{}{"ids": []interface{}{"x"}}, nil, true},
		{"bad string element", map[string]interface{}{"ids": "12,abc"}, nil, true},
		{"wrong type", map[string]interface{}{"ids": 12.5}, nil, true},
		{"missing", map[string]interface{}{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetIntArrayParam(tt.arguments, "ids", true)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStringArrayParam(t *testing.T) {
	got, err := GetStringArrayParam(map[string]interface{}{"fields": []interface{}{"Title", "State"}}, "fields", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "State"}, got)

	got, err = GetStringArrayParam(map[string]interface{}{}, "fields", false)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = GetStringArrayParam(map[string]interface{}{"fields": []interface{}{"Title", 3}}, "fields", true)
	assert.Error(t, err)

	_, err = GetStringArrayParam(map[string]interface{}{"fields": "Title"}, "fields", true)
	assert.Error(t, err)
}

func TestGetObjectParam(t *testing.T) {
	tests := []struct {
		name      string
		arguments map[string]interface{}
		required  bool
		wantNil   bool
		wantErr   bool
	}{
		{
			name:      "valid object",
			arguments: map[string]interface{}{"fields": map[string]interface{}{"Priority": float64(1)}},
			required:  true,
		},
		{
			name:      "missing required object",
			arguments: map[string]interface{}{},
			required:  true,
			wantNil:   true,
			wantErr:   true,
		},
		{
			name:      "missing optional object",
			arguments: map[string]interface{}{},
			wantNil:   true,
		},
		{
			name:      "wrong type",
			arguments: map[string]interface{}{"fields": "Priority=1"},
			required:  true,
			wantNil:   true,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetObjectParam(tt.arguments, "fields", tt.required)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantNil, got == nil)
		})
	}
}

func TestGetBoolParam(t *testing.T) {
	tests := []struct {
		name      string
		arguments map[string]interface{}
		want      bool
		wantErr   bool
	}{
		{"true", map[string]interface{}{"compact": true}, true, false},
		{"false", map[string]interface{}{"compact": false}, false, false},
		{"missing", map[string]interface{}{}, false, false},
		{"string true", map[string]interface{}{"compact": "true"}, true, false},
		{"unparseable string", map[string]interface{}{"compact": "maybe"}, false, true},
		{"wrong type", map[string]interface{}{"compact": 123}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetBoolParam(tt.arguments, "compact", false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
