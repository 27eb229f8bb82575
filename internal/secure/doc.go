// Package secure keeps key passphrases out of ordinary Go memory.
//
// A passphrase is generated once per keypair, sealed in a memguard enclave
// (XSalsa20Poly1305, mlocked where the platform allows) and only decrypted
// into a locked buffer for the short moment it has to be written to the
// key tool or into the stored payload:
//
//	pass, err := secure.NewPassphrase()
//	if err != nil {
//	    return err
//	}
//	defer pass.Destroy()
//
//	err = pass.With(func(p []byte) error {
//	    return writeDirective(p)
//	})
//
// The byte slice handed to With is wiped when the callback returns and must
// not be retained.
//
// It does NOT protect against:
//
//   - Attackers with root access to the running process
//   - Copies made by the callback (strings, JSON encoders, child processes)
package secure
