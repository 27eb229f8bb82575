package keytool

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/openpgp"
)

// KeyInfo summarises an armored public key.
type KeyInfo struct {
	Fingerprint string
	KeyID       string
	BitLength   int
	UserIDs     []string
}

// InspectPublicKey parses an armored public key block that must hold
// exactly one key.
func InspectPublicKey(armored string) (KeyInfo, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
	if err != nil {
		return KeyInfo{}, fmt.Errorf("failed to parse public key: %w", err)
	}
	if len(entities) != 1 {
		return KeyInfo{}, fmt.Errorf("expected exactly one key, found %d", len(entities))
	}

	entity := entities[0]
	bits, err := entity.PrimaryKey.BitLength()
	if err != nil {
		return KeyInfo{}, fmt.Errorf("failed to read key length: %w", err)
	}

	info := KeyInfo{
		Fingerprint: strings.ToUpper(hex.EncodeToString(entity.PrimaryKey.Fingerprint[:])),
		KeyID:       entity.PrimaryKey.KeyIdString(),
		BitLength:   int(bits),
	}
	for name := range entity.Identities {
		info.UserIDs = append(info.UserIDs, name)
	}
	sort.Strings(info.UserIDs)
	return info, nil
}
