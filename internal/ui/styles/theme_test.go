// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTheme_ForcedModes(t *testing.T) {
	dark := NewTheme("dark")
	require.True(t, dark.IsDark)
	require.Equal(t, "dark", dark.GlamourStyle())

	light := NewTheme("LIGHT")
	require.False(t, light.IsDark)
	require.Equal(t, "light", light.GlamourStyle())
}

func TestTheme_StylesKeepText(t *testing.T) {
	theme := NewTheme("dark")
	require.Contains(t, theme.ErrorText.Render("Error: boom"), "Error: boom")
	require.Contains(t, theme.UserLabel.Render("You"), "You")
}

func TestRenderHelpers_IncludeIndicators(t *testing.T) {
	tests := []struct {
		name   string
		render func(string) string
		marker string
	}{
		{"success", RenderSuccess, StatusIndicators.Success},
		{"error", RenderError, StatusIndicators.Error},
		{"warning", RenderWarning, StatusIndicators.Warning},
		{"info", RenderInfo, StatusIndicators.Info},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.render("model loaded")
			require.True(t, strings.Contains(out, tt.marker))
			require.Contains(t, out, "model loaded")
		})
	}
}
