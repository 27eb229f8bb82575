package lifecycle

import (
	"context"
	"errors"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/paramstore"
	"github.com/systmms/pgpsecret/internal/secretstores"
)

// rotateMetadata keeps the key, refreshes its public half from the store
// and applies Description and KeyArn. A legacy parameter named by the prior
// configuration is deleted afterwards.
func (c *Controller) rotateMetadata(ctx context.Context, event Event) (Result, error) {
	location := LocationFromID(event.PhysicalResourceID)

	publicKey, err := c.PublicKey(ctx, location)
	if err != nil {
		return Result{}, err
	}

	props := event.ResourceProperties
	_, err = c.store.Update(ctx, location, nil, secretstores.WriteOptions{
		Description: props.Description,
		KeyRef:      props.KeyArn,
	})
	if err != nil {
		return Result{}, &pserrors.StoreError{Op: "update", Location: location, Err: err}
	}

	result := Result{
		ID:             event.PhysicalResourceID,
		SecretLocation: location,
		PublicKey:      publicKey,
	}

	if name := event.OldResourceProperties.ParameterName; name != "" {
		if err := c.params.Delete(ctx, name); err != nil {
			if !errors.Is(err, paramstore.ErrParameterNotFound) {
				recordCleanupFailure()
				warning := pserrors.NewCleanupWarning(name, err)
				c.logger.Warn("%v", warning)
				return result, warning
			}
			c.logger.Debug("Legacy parameter %s already gone", name)
		} else {
			c.logger.Info("Deleted legacy parameter %s", name)
		}
	}

	return result, nil
}
