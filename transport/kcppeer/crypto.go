package kcppeer

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/pbkdf2"
)

const nonceSize = chacha20.NonceSize

// DeriveKey stretches an operator-supplied passphrase into a
// chacha20.KeySize key via PBKDF2 (SHA-256, 100,000 iterations), so
// Config.Key always gets a full 32 bytes of key material regardless of
// passphrase length.
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte("s2p"), 100_000, chacha20.KeySize, sha256.New)
}

// chachaBlockCrypt implements kcp.BlockCrypt (same-length in-place
// transform) on top of chacha20. Every packet carries its own random
// nonce in its first nonceSize bytes, sent in the clear ahead of the
// keystream-masked payload -- the same prepend-a-fresh-nonce
// convention chacha20poly1305 itself uses for AEAD sealed boxes,
// without the authentication tag this transport's FEC layer already
// covers for corruption.
type chachaBlockCrypt struct {
	key [chacha20.KeySize]byte
}

func newBlockCrypt(key []byte) (*chachaBlockCrypt, error) {
	// validate the key length eagerly so Dial/Listen fail fast rather
	// than on the first packet.
	if len(key) != chacha20.KeySize {
		return nil, errors.Errorf("kcppeer: key must be %d bytes, got %d", chacha20.KeySize, len(key))
	}
	c := &chachaBlockCrypt{}
	copy(c.key[:], key)
	if _, err := chacha20.NewUnauthenticatedCipher(c.key[:], make([]byte, nonceSize)); err != nil {
		return nil, errors.Wrap(err, "kcppeer: chacha20 key setup failed")
	}
	return c, nil
}

// Encrypt implements kcp.BlockCrypt.
func (c *chachaBlockCrypt) Encrypt(dst, src []byte) {
	if len(src) < nonceSize {
		return
	}
	if _, err := io.ReadFull(rand.Reader, dst[:nonceSize]); err != nil {
		return
	}
	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], dst[:nonceSize])
	if err != nil {
		return
	}
	stream.XORKeyStream(dst[nonceSize:], src[nonceSize:])
}

// Decrypt implements kcp.BlockCrypt.
func (c *chachaBlockCrypt) Decrypt(dst, src []byte) {
	if len(src) < nonceSize {
		return
	}
	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], src[:nonceSize])
	if err != nil {
		return
	}
	copy(dst[:nonceSize], src[:nonceSize])
	stream.XORKeyStream(dst[nonceSize:], src[nonceSize:])
}
