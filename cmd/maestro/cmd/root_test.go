package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	root := RootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "ping", "watch", "version"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("brokerUrl"))
}

func TestRunCmd_RequiresProfile(t *testing.T) {
	root := RootCmd()
	root.SetArgs([]string{"run", "--dry-run"})
	root.SilenceErrors = true
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profile")
}
