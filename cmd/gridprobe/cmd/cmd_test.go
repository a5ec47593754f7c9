package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "analyze", "batch", "init", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestAnalyzeRequiresFlags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"analyze"})
	require.NoError(t, err)

	puzzle := cmd.Flags().Lookup("puzzle")
	require.NotNil(t, puzzle)
	assert.Contains(t, puzzle.Annotations, "cobra_annotation_bash_completion_one_required_flag")

	provider := cmd.Flags().Lookup("provider")
	require.NotNil(t, provider)
	assert.Contains(t, provider.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

func TestVersionDefaults(t *testing.T) {
	SetVersion("1.2.3", "abc", "today")
	assert.Equal(t, "1.2.3", appVersion)
	assert.Equal(t, "abc", appCommit)
	assert.Equal(t, "today", appDate)
}
