package sitecli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "sitectl", root.Name)
	for _, name := range []string{
		"create", "get", "list", "delete", "purge",
		"members", "set-member", "remove-member",
	} {
		cmd, ok := root.Subcommands[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, cmd.Description, name)
		assert.NotNil(t, cmd.Run, name)
		assert.NotNil(t, cmd.Flags, name)
	}
}

func TestCommandFlags(t *testing.T) {
	root := NewRootCommand()

	create := root.Subcommands["create"]
	for _, f := range []string{"as", "name", "title", "description", "preset", "visibility"} {
		assert.NotNil(t, create.Flags.Lookup(f), f)
	}

	members := root.Subcommands["members"]
	for _, f := range []string{"as", "site", "filter", "role", "expand", "max"} {
		assert.NotNil(t, members.Flags.Lookup(f), f)
	}
}

func TestCallerContextRequiresUser(t *testing.T) {
	_, err := callerContext("")
	assert.Error(t, err)

	ctx, err := callerContext("alice")
	require.NoError(t, err)
	assert.NotNil(t, ctx)
}
