package keytooltest

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"
	_ "crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/openpgp/packet"
	"golang.org/x/crypto/openpgp/s2k"
)

const (
	tagSecretKey    = 5
	tagSecretSubkey = 7

	// s2kUsageSHA1 marks secret key material followed by a SHA-1 hash.
	s2kUsageSHA1 = 254
)

var errTruncated = errors.New("fake gpg: truncated packet")

// protect encrypts the secret key packets of an unprotected transferable
// secret key under passphrase, as gpg does for a key generated with a
// Passphrase directive. Other packets are copied unchanged.
func protect(serialized, passphrase []byte) ([]byte, error) {
	var out bytes.Buffer
	for rest := serialized; len(rest) > 0; {
		tag, body, next, err := splitPacket(rest)
		if err != nil {
			return nil, err
		}
		rest = next
		if tag == tagSecretKey || tag == tagSecretSubkey {
			if body, err = encryptSecret(body, passphrase); err != nil {
				return nil, err
			}
		}
		writePacket(&out, tag, body)
	}
	return out.Bytes(), nil
}

// encryptSecret rewrites an RSA secret key packet body with AES-128 CFB
// under an iterated and salted SHA-256 S2K.
func encryptSecret(body, passphrase []byte) ([]byte, error) {
	// version, creation time, algorithm, then the public MPIs n and e
	off := 6
	for i := 0; i < 2; i++ {
		if len(body) < off+2 {
			return nil, errTruncated
		}
		bits := int(binary.BigEndian.Uint16(body[off:]))
		off += 2 + (bits+7)/8
	}
	if len(body) < off+3 || body[off] != 0 {
		return nil, errors.New("fake gpg: expected an unprotected RSA secret key")
	}
	secret := body[off+1 : len(body)-2]

	var out bytes.Buffer
	out.Write(body[:off])
	out.WriteByte(s2kUsageSHA1)
	out.WriteByte(byte(packet.CipherAES128))
	key := make([]byte, packet.CipherAES128.KeySize())
	if err := s2k.Serialize(&out, key, rand.Reader, passphrase, &s2k.Config{Hash: crypto.SHA256}); err != nil {
		return nil, fmt.Errorf("fake gpg: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fake gpg: %w", err)
	}
	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("fake gpg: %w", err)
	}
	out.Write(iv)

	sum := sha1.Sum(secret)
	data := append(append([]byte(nil), secret...), sum[:]...)
	cipher.NewCFBEncrypter(block, iv).XORKeyStream(data, data)
	out.Write(data)
	return out.Bytes(), nil
}

// splitPacket reads one new-format packet with a definite length.
func splitPacket(data []byte) (tag byte, body, rest []byte, err error) {
	if len(data) < 2 || data[0]&0xc0 != 0xc0 {
		return 0, nil, nil, errors.New("fake gpg: expected a new-format packet")
	}
	tag = data[0] & 0x3f

	var length, n int
	switch l := int(data[1]); {
	case l < 192:
		length, n = l, 2
	case l < 224:
		if len(data) < 3 {
			return 0, nil, nil, errTruncated
		}
		length, n = (l-192)<<8+int(data[2])+192, 3
	case l == 255:
		if len(data) < 6 {
			return 0, nil, nil, errTruncated
		}
		length, n = int(binary.BigEndian.Uint32(data[2:6])), 6
	default:
		return 0, nil, nil, errors.New("fake gpg: partial packet lengths are not supported")
	}
	if len(data) < n+length {
		return 0, nil, nil, errTruncated
	}
	return tag, data[n : n+length], data[n+length:], nil
}

func writePacket(w *bytes.Buffer, tag byte, body []byte) {
	w.WriteByte(0xc0 | tag)
	switch length := len(body); {
	case length < 192:
		w.WriteByte(byte(length))
	case length < 8384:
		length -= 192
		w.WriteByte(192 + byte(length>>8))
		w.WriteByte(byte(length))
	default:
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(length))
		w.WriteByte(255)
		w.Write(buf[:])
	}
	w.Write(body)
}
