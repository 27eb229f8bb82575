package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/workspace"
)

// PublicKey re-derives the armored public key from the private key stored
// at location. The stored passphrase is never read into the keyring.
func (c *Controller) PublicKey(ctx context.Context, location string) (string, error) {
	raw, err := c.store.Get(ctx, location)
	if err != nil {
		return "", &pserrors.StoreError{Op: "get", Location: location, Err: err}
	}
	defer clear(raw)

	var record storedSecret
	if err := json.Unmarshal(raw, &record); err != nil {
		return "", &pserrors.StoreError{Op: "get", Location: location, Err: errors.New("stored value is not a key record")}
	}
	record.Passphrase = ""
	if record.PrivateKey == "" {
		return "", &pserrors.StoreError{Op: "get", Location: location, Err: errors.New("stored key record has no PrivateKey")}
	}

	var publicKey string
	err = workspace.With(c.tempRoot, c.prefix, c.logger, func(ws *workspace.Workspace) error {
		keyring, err := c.openKeyring(ctx, ws)
		if err != nil {
			return err
		}
		file, err := ws.WriteFile(privateKeyFile, []byte(record.PrivateKey))
		if err != nil {
			return err
		}
		if err := keyring.ImportSecretKey(ctx, file); err != nil {
			return err
		}
		publicKey, err = keyring.ExportPublicKey(ctx)
		return err
	})
	if err != nil {
		var genErr *pserrors.GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		return "", &pserrors.GenerationError{Op: "import", Err: fmt.Errorf("failed to prepare keyring: %w", err)}
	}
	return publicKey, nil
}
