package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolChoicePolicy_ZeroValueIsAuto(t *testing.T) {
	var p ToolChoicePolicy
	assert.Equal(t, PolicyAuto, p.Kind())
	assert.Equal(t, "auto", p.String())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ToolChoicePolicy
		wantErr bool
	}{
		{"", Auto(), false},
		{"auto", Auto(), false},
		{"NONE", None(), false},
		{"required:WookiepediaTool", Required("WookiepediaTool"), false},
		{"required: StarWarsPurchaseTool ", Required("StarWarsPurchaseTool"), false},
		{"required:", ToolChoicePolicy{}, true},
		{"sometimes", ToolChoicePolicy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToolChoicePolicy_StringRoundTrip(t *testing.T) {
	for _, p := range []ToolChoicePolicy{None(), Auto(), Required("GenerateStarWarsImageTool")} {
		parsed, err := ParsePolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}
