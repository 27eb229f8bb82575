// Package lifecycle manages a PGP keypair held in a secret store in
// response to CREATE, UPDATE and DELETE events from a provisioning system.
package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RequestType is the kind of lifecycle event.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Event is one lifecycle request. For Update, OldResourceProperties holds
// the configuration the current key was generated from.
type Event struct {
	RequestType           RequestType `json:"RequestType"`
	RequestID             string      `json:"RequestId,omitempty"`
	PhysicalResourceID    string      `json:"PhysicalResourceId,omitempty"`
	ResourceProperties    KeyConfig   `json:"ResourceProperties"`
	OldResourceProperties KeyConfig   `json:"OldResourceProperties"`
}

// KeyConfig is the declared state of the key.
type KeyConfig struct {
	Identity    string    `json:"Identity"`
	Email       string    `json:"Email"`
	Expiry      Scalar    `json:"Expiry"`
	KeySizeBits BitLength `json:"KeySizeBits"`
	SecretName  string    `json:"SecretName"`
	Version     Scalar    `json:"Version"`

	Description *string `json:"Description,omitempty"`
	// KeyArn references the key that encrypts the secret at rest.
	KeyArn *string `json:"KeyArn,omitempty"`

	// ParameterName is only present in prior configurations created
	// before the key moved to the secret store.
	ParameterName string `json:"ParameterName,omitempty"`
}

// Result binds the controller's id to the stored secret and its public key.
type Result struct {
	ID             string `json:"id"`
	SecretLocation string `json:"secretLocation"`
	PublicKey      string `json:"publicKey"`
}

// BitLength is a key size that provisioning systems send either as a JSON
// number or as a decimal string.
type BitLength int

// UnmarshalJSON accepts 2048 and "2048".
func (b *BitLength) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = 0
		return nil
	}
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("key size %s is not an integer", data)
	}
	*b = BitLength(n)
	return nil
}

// Scalar is a string field that may arrive as a JSON number.
type Scalar string

// UnmarshalJSON accepts strings and numbers.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*s = Scalar(num.String())
	}
	return nil
}

// FormatID builds a result id from the store location and the version the
// latest payload write produced. '#' never occurs in a store location.
func FormatID(location, version string) string {
	if version == "" {
		return location
	}
	return location + "#" + version
}

// LocationFromID recovers the store location from a result id. Ids without
// a version suffix are bare locations.
func LocationFromID(id string) string {
	if i := strings.LastIndexByte(id, '#'); i >= 0 {
		return id[:i]
	}
	return id
}
