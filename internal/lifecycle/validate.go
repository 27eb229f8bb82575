package lifecycle

import (
	"fmt"
	"strings"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
)

// MinKeySizeBits is the smallest RSA key the controller will generate.
const MinKeySizeBits = 1024

// Validate checks an event before any side effect. Delete events are never
// rejected.
func Validate(event Event) error {
	switch event.RequestType {
	case RequestDelete:
		return nil
	case RequestCreate:
	case RequestUpdate:
		if event.PhysicalResourceID == "" {
			return &pserrors.ValidationError{Field: "PhysicalResourceId", Message: "is required for Update"}
		}
	default:
		return &pserrors.ValidationError{
			Field:   "RequestType",
			Message: fmt.Sprintf("unknown request type %q", event.RequestType),
		}
	}
	return event.ResourceProperties.Validate()
}

// Validate checks that every required field is present and that no value
// could inject extra lines into a key generation directive.
func (k KeyConfig) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"Identity", k.Identity},
		{"Email", k.Email},
		{"Expiry", string(k.Expiry)},
		{"SecretName", k.SecretName},
		{"Version", string(k.Version)},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &pserrors.ValidationError{Field: r.field, Message: "is required"}
		}
		if strings.ContainsAny(r.value, "\r\n") {
			return &pserrors.ValidationError{Field: r.field, Message: "must be a single line"}
		}
	}

	if k.KeySizeBits == 0 {
		return &pserrors.ValidationError{Field: "KeySizeBits", Message: "is required"}
	}
	if k.KeySizeBits < MinKeySizeBits {
		return &pserrors.ValidationError{
			Field:   "KeySizeBits",
			Message: fmt.Sprintf("must be at least %d, got %d", MinKeySizeBits, k.KeySizeBits),
		}
	}
	return nil
}
