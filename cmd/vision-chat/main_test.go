package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.Equal(t, 0, execute(cmd))
	require.Contains(t, out.String(), "vision-chat dev")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	require.Subset(t, names, []string{"bot", "console", "version"})
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestEnvOr(t *testing.T) {
	t.Setenv("VISION_CHAT_TEST_VALUE", "x")
	require.Equal(t, "x", envOr("VISION_CHAT_TEST_VALUE", "y"))
	require.Equal(t, "y", envOr("VISION_CHAT_TEST_MISSING", "y"))
}
