package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/keytool"
	"github.com/systmms/pgpsecret/internal/logging"
	"github.com/systmms/pgpsecret/internal/secretstores"
	"github.com/systmms/pgpsecret/internal/secure"
	"github.com/systmms/pgpsecret/internal/workspace"
)

const (
	keyringDir     = "gnupg"
	directiveFile  = "key.config"
	passphraseFile = "passphrase"
	privateKeyFile = "private.key"

	agentStopTimeout = 10 * time.Second
)

// storedSecret is the payload kept in the secret store.
type storedSecret struct {
	PrivateKey string `json:"PrivateKey"`
	Passphrase string `json:"Passphrase"`
}

type keyMaterial struct {
	privateKey string
	publicKey  string
	info       keytool.KeyInfo
}

// generateNew creates a keypair under a fresh passphrase and writes it to a
// new secret (Create) or as a new version of the existing one (Update).
func (c *Controller) generateNew(ctx context.Context, event Event) (Result, error) {
	props := event.ResourceProperties

	pass, err := secure.NewPassphrase()
	if err != nil {
		return Result{}, &pserrors.GenerationError{Op: "passphrase", Err: err}
	}
	defer pass.Destroy()

	material, err := c.generateKey(ctx, props, pass)
	if err != nil {
		return Result{}, err
	}

	var payload []byte
	err = pass.With(func(p []byte) error {
		var err error
		payload, err = json.Marshal(storedSecret{PrivateKey: material.privateKey, Passphrase: string(p)})
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode key record: %w", err)
	}
	defer clear(payload)

	opts := secretstores.WriteOptions{
		Description:  props.Description,
		KeyRef:       props.KeyArn,
		RequestToken: c.token(event),
	}

	var loc secretstores.Location
	if event.RequestType == RequestCreate {
		loc, err = c.store.Create(ctx, props.SecretName, payload, opts)
		if err != nil {
			return Result{}, &pserrors.StoreError{Op: "create", Location: props.SecretName, Err: err}
		}
	} else {
		location := LocationFromID(event.PhysicalResourceID)
		loc, err = c.store.Update(ctx, location, payload, opts)
		if err != nil {
			return Result{}, &pserrors.StoreError{Op: "update", Location: location, Err: err}
		}
		if loc.ID == "" {
			loc.ID = location
		}
	}

	version := loc.VersionID
	if version == "" {
		version = opts.RequestToken
	}

	publicKey := material.publicKey
	if loc.Replayed {
		// The store kept the payload of the earlier request with this
		// token, so the fresh key was never stored.
		c.logger.Info("Request %s was already applied to %s; returning the stored key", opts.RequestToken, loc.ID)
		if publicKey, err = c.PublicKey(ctx, loc.ID); err != nil {
			return Result{}, err
		}
	} else {
		bits := strconv.Itoa(material.info.BitLength)
		recordKeyGenerated(bits)
		c.logger.Info("Stored new %s-bit key %s at %s", bits, material.info.Fingerprint, loc.ID)
	}

	return Result{
		ID:             FormatID(loc.ID, version),
		SecretLocation: loc.ID,
		PublicKey:      publicKey,
	}, nil
}

// generateKey runs key generation and export in a private keyring. The
// workspace, passphrase file included, is gone when it returns.
func (c *Controller) generateKey(ctx context.Context, props KeyConfig, pass *secure.SecureBuffer) (keyMaterial, error) {
	ws, err := c.newWorkspace()
	if err != nil {
		return keyMaterial{}, &pserrors.GenerationError{Op: "workspace", Err: err}
	}
	defer ws.Remove()

	keyring, err := c.openKeyring(ctx, ws)
	if err != nil {
		return keyMaterial{}, &pserrors.GenerationError{Op: "workspace", Err: err}
	}

	directive := keytool.Directive{
		KeyLength:  int(props.KeySizeBits),
		NameReal:   props.Identity,
		NameEmail:  props.Email,
		ExpireDate: string(props.Expiry),
	}

	var paramsPath, passPath string
	err = pass.With(func(p []byte) error {
		content, err := directive.Render(p)
		if err != nil {
			return err
		}
		defer clear(content)

		if paramsPath, err = ws.WriteFile(directiveFile, content); err != nil {
			return err
		}
		passPath, err = ws.WriteFile(passphraseFile, p)
		return err
	})
	if err != nil {
		if errors.Is(err, keytool.ErrInvalidDirectiveValue) {
			return keyMaterial{}, &pserrors.ValidationError{Message: err.Error()}
		}
		return keyMaterial{}, &pserrors.GenerationError{Op: "generate", Err: err}
	}

	if err := keyring.Generate(ctx, paramsPath); err != nil {
		return keyMaterial{}, redactPassphrase(err, pass)
	}
	privateKey, err := keyring.ExportSecretKey(ctx, passPath)
	if err != nil {
		return keyMaterial{}, redactPassphrase(err, pass)
	}
	publicKey, err := keyring.ExportPublicKey(ctx)
	if err != nil {
		return keyMaterial{}, redactPassphrase(err, pass)
	}

	info, err := keytool.InspectPublicKey(publicKey)
	if err != nil {
		return keyMaterial{}, &pserrors.GenerationError{Op: "export-public", Err: err}
	}
	c.logger.Debug("Generated key %s (%d bits) for %v", info.Fingerprint, info.BitLength, info.UserIDs)

	return keyMaterial{privateKey: privateKey, publicKey: publicKey, info: info}, nil
}

// openKeyring creates the keyring home inside ws and arranges for its agent
// to be stopped before ws is removed.
func (c *Controller) openKeyring(ctx context.Context, ws *workspace.Workspace) (*keytool.Keyring, error) {
	home, err := ws.Mkdir(keyringDir)
	if err != nil {
		return nil, err
	}
	keyring := c.tool.Keyring(home)
	ws.OnRemove(func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), agentStopTimeout)
		defer cancel()
		keyring.StopAgent(stopCtx)
	})
	return keyring, nil
}

// redactPassphrase scrubs the passphrase from key tool diagnostics.
func redactPassphrase(err error, pass *secure.SecureBuffer) error {
	var genErr *pserrors.GenerationError
	if !errors.As(err, &genErr) || genErr.Stderr == "" {
		return err
	}
	_ = pass.With(func(p []byte) error {
		genErr.Stderr = logging.Redact(genErr.Stderr, []string{string(p)})
		return nil
	})
	return err
}
