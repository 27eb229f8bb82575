package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/secure"
)

func TestRedactPassphrase(t *testing.T) {
	t.Parallel()

	pass, err := secure.NewSecureBuffer([]byte("hunter2-passphrase"))
	require.NoError(t, err)
	defer pass.Destroy()

	genErr := &pserrors.GenerationError{
		Op:     "export-secret",
		Stderr: "gpg: bad passphrase hunter2-passphrase for key\n",
		Err:    errors.New("exit status 2"),
	}
	err = redactPassphrase(genErr, pass)

	require.ErrorAs(t, err, &genErr)
	assert.NotContains(t, genErr.Stderr, "hunter2-passphrase")
	assert.NotContains(t, err.Error(), "hunter2-passphrase")
	assert.Contains(t, genErr.Stderr, "bad passphrase")
}

func TestRedactPassphrase_PassesOtherErrors(t *testing.T) {
	t.Parallel()

	pass, err := secure.NewSecureBuffer([]byte("secret"))
	require.NoError(t, err)
	defer pass.Destroy()

	plain := errors.New("disk full")
	assert.Same(t, plain, redactPassphrase(plain, pass))
}
