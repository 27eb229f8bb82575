package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	pserrors "github.com/systmms/pgpsecret/internal/errors"
)

// eventSchema checks the envelope of every event and the key properties of
// Create and Update. Delete properties are deliberately unchecked so that
// a broken prior configuration can always be deleted.
const eventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["RequestType"],
  "properties": {
    "RequestType": {"enum": ["Create", "Update", "Delete"]},
    "RequestId": {"type": "string"},
    "PhysicalResourceId": {"type": "string"}
  },
  "if": {"properties": {"RequestType": {"const": "Delete"}}},
  "then": {},
  "else": {
    "required": ["ResourceProperties"],
    "properties": {
      "ResourceProperties": {"$ref": "#/definitions/keyConfig"},
      "OldResourceProperties": {"type": "object"}
    }
  },
  "definitions": {
    "scalar": {"type": ["string", "number"]},
    "keyConfig": {
      "type": "object",
      "required": ["Identity", "Email", "Expiry", "KeySizeBits", "SecretName", "Version"],
      "properties": {
        "Identity": {"type": "string", "minLength": 1},
        "Email": {"type": "string", "minLength": 1},
        "Expiry": {"$ref": "#/definitions/scalar"},
        "KeySizeBits": {
          "oneOf": [
            {"type": "integer"},
            {"type": "string", "pattern": "^[0-9]+$"}
          ]
        },
        "SecretName": {"type": "string", "minLength": 1},
        "Version": {"$ref": "#/definitions/scalar"},
        "Description": {"type": "string"},
        "KeyArn": {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	})
	return compiledSchema, schemaErr
}

// ParseEvent validates a raw event against the event schema and decodes it.
// Delete events only need a valid envelope.
func ParseEvent(data []byte) (Event, error) {
	schema, err := loadSchema()
	if err != nil {
		return Event{}, fmt.Errorf("failed to compile event schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Event{}, &pserrors.ValidationError{Message: fmt.Sprintf("malformed event: %v", err)}
	}
	if !result.Valid() {
		return Event{}, schemaError(result.Errors())
	}

	var envelope struct {
		RequestType        RequestType     `json:"RequestType"`
		RequestID          string          `json:"RequestId"`
		PhysicalResourceID string          `json:"PhysicalResourceId"`
		Properties         json.RawMessage `json:"ResourceProperties"`
		OldProperties      json.RawMessage `json:"OldResourceProperties"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Event{}, &pserrors.ValidationError{Message: fmt.Sprintf("malformed event: %v", err)}
	}

	event := Event{
		RequestType:        envelope.RequestType,
		RequestID:          envelope.RequestID,
		PhysicalResourceID: envelope.PhysicalResourceID,
	}
	if event.RequestType == RequestDelete {
		return event, nil
	}

	if err := decodeProperties(envelope.Properties, &event.ResourceProperties); err != nil {
		return Event{}, &pserrors.ValidationError{Field: "ResourceProperties", Message: err.Error()}
	}
	if event.RequestType == RequestUpdate {
		if err := decodeProperties(envelope.OldProperties, &event.OldResourceProperties); err != nil {
			return Event{}, &pserrors.ValidationError{Field: "OldResourceProperties", Message: err.Error()}
		}
	}
	return event, nil
}

func decodeProperties(raw json.RawMessage, into *KeyConfig) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func schemaError(errs []gojsonschema.ResultError) error {
	var messages []string
	field := ""
	for _, desc := range errs {
		// Branch failures of if/then/else and oneOf repeat a more specific
		// error reported alongside them.
		switch desc.Type() {
		case "condition_then", "condition_else", "number_one_of":
			continue
		}
		if field == "" {
			field = strings.TrimPrefix(desc.Field(), "ResourceProperties.")
		}
		messages = append(messages, desc.String())
	}
	if len(messages) == 0 {
		for _, desc := range errs {
			messages = append(messages, desc.String())
		}
	}
	if field == "(root)" {
		field = ""
	}
	return &pserrors.ValidationError{Field: field, Message: strings.Join(messages, "; ")}
}
