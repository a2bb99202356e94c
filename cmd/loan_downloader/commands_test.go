package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestStoreCredentials(t *testing.T) {
	keyring.MockInit()

	var out bytes.Buffer

	cmd := newRootCommand()
	cmd.SetArgs([]string{"store-credentials", "--email", "reader@example.com", "--service", "test_service"})
	cmd.SetIn(strings.NewReader("hunter2\n"))
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())

	got, err := keyring.Get("test_service", "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)
	assert.Contains(t, out.String(), "reader@example.com")
}

func TestStoreCredentials_RequiresEmail(t *testing.T) {
	t.Setenv("ACCOUNT_EMAIL", "")

	cmd := newRootCommand()
	cmd.SetArgs([]string{"store-credentials", "--email", ""})
	cmd.SetIn(strings.NewReader("hunter2\n"))

	require.Error(t, cmd.Execute())
}

func TestReadSecret(t *testing.T) {
	got, err := readSecret(strings.NewReader("s3cret\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = readSecret(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readSecret(strings.NewReader(""))
	require.Error(t, err)

	_, err = readSecret(strings.NewReader("\n"))
	require.Error(t, err)
}

func TestRootCommand_OnceFlag(t *testing.T) {
	cmd := newRootCommand()

	flag := cmd.Flags().Lookup("once")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
