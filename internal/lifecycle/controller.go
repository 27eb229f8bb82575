package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
	"github.com/systmms/pgpsecret/internal/keytool"
	"github.com/systmms/pgpsecret/internal/logging"
	"github.com/systmms/pgpsecret/internal/paramstore"
	"github.com/systmms/pgpsecret/internal/secretstores"
	"github.com/systmms/pgpsecret/internal/workspace"
)

// Controller handles lifecycle events. It keeps no per-event state, so one
// Controller may serve concurrent Handle calls.
type Controller struct {
	store    secretstores.SecretStore
	params   paramstore.Store
	tool     *keytool.Tool
	logger   *logging.Logger
	tempRoot string
	prefix   string
	newToken func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithParameterStore sets the store holding legacy parameters.
func WithParameterStore(params paramstore.Store) Option {
	return func(c *Controller) {
		c.params = params
	}
}

// WithKeyTool sets the key tool.
func WithKeyTool(tool *keytool.Tool) Option {
	return func(c *Controller) {
		c.tool = tool
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTempDir sets the directory workspaces are created in. Empty means
// os.TempDir().
func WithTempDir(root string) Option {
	return func(c *Controller) {
		c.tempRoot = root
	}
}

// WithWorkspacePrefix sets the workspace name prefix.
func WithWorkspacePrefix(prefix string) Option {
	return func(c *Controller) {
		c.prefix = prefix
	}
}

// WithTokenSource replaces the generator of idempotency tokens used for
// events without a RequestId.
func WithTokenSource(fn func() string) Option {
	return func(c *Controller) {
		c.newToken = fn
	}
}

// New creates a Controller storing keys in store.
func New(store secretstores.SecretStore, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		params:   paramstore.Noop{},
		logger:   logging.Discard(),
		prefix:   workspace.DefaultPrefix,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tool == nil {
		c.tool = keytool.New(keytool.WithLogger(c.logger))
	}
	return c
}

// Handle validates event, decides what it requires and carries it out.
// Validation failures return before any side effect.
func (c *Controller) Handle(ctx context.Context, event Event) (Result, error) {
	start := time.Now()

	if err := Validate(event); err != nil {
		recordEvent(event.RequestType, NoOp, "invalid", time.Since(start).Seconds())
		return Result{}, err
	}

	decision := Decide(event)
	for _, change := range decision.Changes {
		c.logger.Info("New key required: %s changed from %q to %q", change.Field, change.Old, change.New)
	}
	c.logger.Debug("%s event %s: %s", event.RequestType, event.RequestID, decision.Action)

	var (
		result Result
		err    error
	)
	switch decision.Action {
	case GenerateNew:
		result, err = c.generateNew(ctx, event)
	case RotateMetadata:
		result, err = c.rotateMetadata(ctx, event)
	default:
		result = Result{
			ID:             event.PhysicalResourceID,
			SecretLocation: LocationFromID(event.PhysicalResourceID),
		}
	}

	recordEvent(event.RequestType, decision.Action, outcome(err), time.Since(start).Seconds())
	return result, err
}

// token returns the idempotency token for an event.
func (c *Controller) token(event Event) string {
	if event.RequestID != "" {
		return event.RequestID
	}
	return c.newToken()
}

func (c *Controller) newWorkspace() (*workspace.Workspace, error) {
	return workspace.New(c.tempRoot, c.prefix, c.logger)
}

func outcome(err error) string {
	var warning *pserrors.CleanupWarning
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &warning):
		return "cleanup_warning"
	}
	return "error"
}
