package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	oldVersion, oldCommit := version, commitHash
	t.Cleanup(func() { version, commitHash = oldVersion, oldCommit })

	version, commitHash = "1.2.0", ""
	assert.Equal(t, "1.2.0", versionString())

	commitHash = "abc123"
	assert.Equal(t, "1.2.0 (commit abc123)", versionString())
}

func TestCreateUserRejectsMemberRole(t *testing.T) {
	cmd := createUserCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--email", "a@b.test", "--password", "secret-pass", "--role", "member"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role must be")
}

func TestCreateUserRequiresEmail(t *testing.T) {
	cmd := createUserCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--password", "secret-pass"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}
