// Package keytooltest provides an in-process stand-in for gpg that produces
// real OpenPGP keys, so key lifecycle code can be tested without GnuPG.
package keytooltest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	"golang.org/x/crypto/openpgp/packet"
)

const (
	secringFile    = "fake-secring.asc"
	pubringFile    = "fake-pubring.asc"
	passphraseFile = "fake-passphrase"
)

// Call records one invocation.
type Call struct {
	Name string
	Args []string
	Home string
}

// Failure makes every invocation carrying Flag fail.
type Failure struct {
	Stderr string
	Err    error
}

// FakeGPG implements exec.CommandExecutor. Keyring state lives in files
// under the --homedir of each call, so independent homes never share keys.
type FakeGPG struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]Failure
}

// New returns a FakeGPG with no injected failures.
func New() *FakeGPG {
	return &FakeGPG{failures: make(map[string]Failure)}
}

// FailOn makes calls containing flag (e.g. "--gen-key", "--import") fail.
func (f *FakeGPG) FailOn(flag, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[flag] = Failure{Stderr: stderr, Err: fmt.Errorf("fake gpg: %s failed", flag)}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeGPG) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Homes returns every distinct --homedir seen, in first-use order.
func (f *FakeGPG) Homes() []string {
	seen := map[string]bool{}
	var homes []string
	for _, c := range f.Calls() {
		if c.Home != "" && !seen[c.Home] {
			seen[c.Home] = true
			homes = append(homes, c.Home)
		}
	}
	return homes
}

// Execute dispatches on the gpg operation flag.
func (f *FakeGPG) Execute(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	home := flagValue(args, "--homedir")

	f.mu.Lock()
	f.calls = append(f.calls, Call{Name: name, Args: append([]string(nil), args...), Home: home})
	for flag, failure := range f.failures {
		if contains(args, flag) {
			f.mu.Unlock()
			return nil, []byte(failure.Stderr), failure.Err
		}
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	switch {
	case contains(args, "--version"):
		return []byte("gpg (GnuPG) 2.4.4-fake\nlibgcrypt 1.10.3\n"), nil, nil
	case contains(args, "--kill"):
		return nil, nil, nil
	case contains(args, "--gen-key"):
		return nil, nil, f.generate(home, args[len(args)-1])
	case contains(args, "--export-secret-keys"):
		return exportSecret(home, flagValue(args, "--passphrase-file"))
	case contains(args, "--export"):
		return readRing(home, pubringFile)
	case contains(args, "--import"):
		return nil, nil, f.importKey(home, args[len(args)-1])
	}
	return nil, []byte("gpg: unsupported invocation"), fmt.Errorf("fake gpg: unsupported args %v", args)
}

func (f *FakeGPG) generate(home, directiveFile string) error {
	params, err := parseDirective(directiveFile)
	if err != nil {
		return err
	}
	if params["%commit"] == "" {
		return errors.New("fake gpg: directive missing %commit")
	}
	bits, err := strconv.Atoi(params["Key-Length"])
	if err != nil {
		return fmt.Errorf("fake gpg: bad Key-Length: %w", err)
	}
	if params["Key-Type"] != "RSA" {
		return fmt.Errorf("fake gpg: unsupported Key-Type %q", params["Key-Type"])
	}

	entity, err := openpgp.NewEntity(params["Name-Real"], "", params["Name-Email"], &packet.Config{RSABits: bits})
	if err != nil {
		return fmt.Errorf("fake gpg: %w", err)
	}
	passphrase := params["Passphrase"]
	private, err := ArmorPrivate(entity, []byte(passphrase))
	if err != nil {
		return err
	}
	if err := storeRings(home, []byte(private)); err != nil {
		return err
	}
	if passphrase == "" {
		return nil
	}
	return os.WriteFile(filepath.Join(home, passphraseFile), []byte(passphrase), 0600)
}

func (f *FakeGPG) importKey(home, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("fake gpg: %w", err)
	}
	return storeRings(home, raw)
}

// ArmorPublic serializes the public half of entity.
func ArmorPublic(entity *openpgp.Entity) (string, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := entity.Serialize(w); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// ArmorPrivate serializes entity including its secret key material. A
// non-empty passphrase encrypts the secret keys.
func ArmorPrivate(entity *openpgp.Entity, passphrase []byte) (string, error) {
	var raw bytes.Buffer
	if err := entity.SerializePrivate(&raw, nil); err != nil {
		return "", err
	}
	data := raw.Bytes()
	if len(passphrase) > 0 {
		var err error
		if data, err = protect(data, passphrase); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// storeRings keeps the armored secret key as is and derives the public ring
// from its parsed form, the same way for generated and imported keys.
func storeRings(home string, private []byte) error {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(private))
	if err != nil {
		return fmt.Errorf("fake gpg: no valid OpenPGP data found: %w", err)
	}
	if len(entities) != 1 || entities[0].PrivateKey == nil {
		return errors.New("fake gpg: expected exactly one secret key")
	}
	public, err := ArmorPublic(entities[0])
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(home, secringFile), private, 0600); err != nil {
		return fmt.Errorf("fake gpg: %w", err)
	}
	return os.WriteFile(filepath.Join(home, pubringFile), []byte(public), 0600)
}

// exportSecret requires the passphrase a key was generated with, as gpg
// does in loopback pinentry mode. Imported keys export without one.
func exportSecret(home, passFile string) ([]byte, []byte, error) {
	want, err := os.ReadFile(filepath.Join(home, passphraseFile))
	if errors.Is(err, os.ErrNotExist) {
		return readRing(home, secringFile)
	}
	if err != nil {
		return nil, nil, err
	}
	var got []byte
	if passFile != "" {
		if got, err = os.ReadFile(passFile); err != nil {
			return nil, []byte("gpg: error reading passphrase file\n"), fmt.Errorf("fake gpg: %w", err)
		}
	}
	if !bytes.Equal(got, want) {
		return nil, []byte("gpg: key export failed: Bad passphrase\n"), errors.New("fake gpg: bad passphrase")
	}
	return readRing(home, secringFile)
}

func readRing(home, name string) ([]byte, []byte, error) {
	data, err := os.ReadFile(filepath.Join(home, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, []byte("gpg: WARNING: nothing exported\n"), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return data, nil, nil
}

func parseDirective(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fake gpg: can't open '%s': %w", path, err)
	}
	defer file.Close()

	params := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "%") {
			params[line] = line
			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		params[key] = value
	}
	return params, scanner.Err()
}

func flagValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func contains(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
