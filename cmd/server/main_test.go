package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasServe(t *testing.T) {
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())

	for _, name := range []string{"config", "port", "http-port", "headpose-model", "face-model", "max-batch", "redis", "log-level", "mock"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestServe_InvalidConfig(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"serve", "--mock", "--port", "9000", "--http-port", "9000"})

	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}
