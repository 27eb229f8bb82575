package keytool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectiveRender(t *testing.T) {
	t.Parallel()

	out, err := Directive{
		KeyLength:  4096,
		NameReal:   "Test Bot",
		NameEmail:  "bot@example.com",
		ExpireDate: "1y",
	}.Render([]byte("s3cr3t"))
	require.NoError(t, err)

	assert.Equal(t, "Key-Type: RSA\n"+
		"Key-Length: 4096\n"+
		"Name-Real: Test Bot\n"+
		"Name-Email: bot@example.com\n"+
		"Expire-Date: 1y\n"+
		"Passphrase: s3cr3t\n"+
		"%commit\n"+
		"%echo done\n", string(out))
}

func TestDirectiveRender_RejectsLineBreaks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		directive  Directive
		passphrase string
	}{
		{
			name:       "name injects commit",
			directive:  Directive{KeyLength: 2048, NameReal: "Bot\n%commit", NameEmail: "a@b", ExpireDate: "0"},
			passphrase: "p",
		},
		{
			name:       "carriage return in expiry",
			directive:  Directive{KeyLength: 2048, NameReal: "Bot", NameEmail: "a@b", ExpireDate: "1y\r"},
			passphrase: "p",
		},
		{
			name:       "passphrase newline",
			directive:  Directive{KeyLength: 2048, NameReal: "Bot", NameEmail: "a@b", ExpireDate: "0"},
			passphrase: "p\nKey-Length: 512",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.directive.Render([]byte(tt.passphrase))
			assert.ErrorIs(t, err, ErrInvalidDirectiveValue)
		})
	}
}

func TestDirectiveRender_InvalidLength(t *testing.T) {
	t.Parallel()

	_, err := Directive{NameReal: "Bot", NameEmail: "a@b", ExpireDate: "0"}.Render([]byte("p"))
	assert.Error(t, err)
}

func TestInspectPublicKey_Rejects(t *testing.T) {
	t.Parallel()

	_, err := InspectPublicKey("not a key")
	assert.Error(t, err)
}
