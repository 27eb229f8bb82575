package keytool

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirectiveValue is returned when a directive value would break
// out of its line in the batch parameter file.
var ErrInvalidDirectiveValue = errors.New("directive values must not contain line breaks")

// Directive holds the parameters of an unattended key generation run.
type Directive struct {
	KeyLength  int
	NameReal   string
	NameEmail  string
	ExpireDate string
}

// Render produces the batch parameter file. The passphrase is copied into
// the returned buffer; callers should wipe it after writing it out.
func (d Directive) Render(passphrase []byte) ([]byte, error) {
	for field, value := range map[string]string{
		"Name-Real":   d.NameReal,
		"Name-Email":  d.NameEmail,
		"Expire-Date": d.ExpireDate,
	} {
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("%s: %w", field, ErrInvalidDirectiveValue)
		}
	}
	if bytes.ContainsAny(passphrase, "\r\n") {
		return nil, fmt.Errorf("Passphrase: %w", ErrInvalidDirectiveValue)
	}
	if d.KeyLength <= 0 {
		return nil, fmt.Errorf("invalid key length %d", d.KeyLength)
	}

	var buf bytes.Buffer
	buf.WriteString("Key-Type: RSA\n")
	fmt.Fprintf(&buf, "Key-Length: %d\n", d.KeyLength)
	fmt.Fprintf(&buf, "Name-Real: %s\n", d.NameReal)
	fmt.Fprintf(&buf, "Name-Email: %s\n", d.NameEmail)
	fmt.Fprintf(&buf, "Expire-Date: %s\n", d.ExpireDate)
	buf.WriteString("Passphrase: ")
	buf.Write(passphrase)
	buf.WriteString("\n%commit\n%echo done\n")
	return buf.Bytes(), nil
}
