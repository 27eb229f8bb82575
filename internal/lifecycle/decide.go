package lifecycle

import "strconv"

// Action is what the controller does for an event.
type Action int

const (
	// NoOp leaves the key and the store untouched.
	NoOp Action = iota
	// GenerateNew creates fresh key material and a new id.
	GenerateNew
	// RotateMetadata updates mutable metadata and keeps the id.
	RotateMetadata
)

func (a Action) String() string {
	switch a {
	case GenerateNew:
		return "generate-new"
	case RotateMetadata:
		return "rotate-metadata"
	}
	return "no-op"
}

// FieldChange is an immutable field whose value differs between the prior
// and the requested configuration.
type FieldChange struct {
	Field string
	Old   string
	New   string
}

// Decision is the outcome of Decide.
type Decision struct {
	Action  Action
	Changes []FieldChange
}

// Decide chooses the action for a validated event. Any change to Email,
// Expiry, Identity, KeySizeBits, SecretName or Version requires new key
// material.
func Decide(event Event) Decision {
	switch event.RequestType {
	case RequestCreate:
		return Decision{Action: GenerateNew}
	case RequestUpdate:
		changes := ImmutableChanges(event.OldResourceProperties, event.ResourceProperties)
		if len(changes) > 0 {
			return Decision{Action: GenerateNew, Changes: changes}
		}
		return Decision{Action: RotateMetadata}
	}
	return Decision{Action: NoOp}
}

// ImmutableChanges lists the immutable fields that differ, in a fixed order.
func ImmutableChanges(prior, requested KeyConfig) []FieldChange {
	pairs := []FieldChange{
		{"Email", prior.Email, requested.Email},
		{"Expiry", string(prior.Expiry), string(requested.Expiry)},
		{"Identity", prior.Identity, requested.Identity},
		{"KeySizeBits", strconv.Itoa(int(prior.KeySizeBits)), strconv.Itoa(int(requested.KeySizeBits))},
		{"SecretName", prior.SecretName, requested.SecretName},
		{"Version", string(prior.Version), string(requested.Version)},
	}
	var changes []FieldChange
	for _, p := range pairs {
		if p.Old != p.New {
			changes = append(changes, p)
		}
	}
	return changes
}
