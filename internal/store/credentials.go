package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

type (
	// SecretSource returns sealed credential blobs by reference
	SecretSource interface {
		GetSecret(ctx context.Context, ref string) ([]byte, error)
	}

	// SealedCredentials decrypts credentials fetched from a SecretSource.
	// Blobs are XChaCha20-Poly1305 sealed with the reference as associated
	// data, so a blob cannot be replayed under another reference
	SealedCredentials struct {
		source SecretSource
		aead   cipher.AEAD
	}
)

var (
	ErrSealedTooShort = errors.New("sealed credentials too short")
	ErrUnseal         = errors.New("unable to unseal credentials")
)

var _ CredentialStore = (*SealedCredentials)(nil)

// NewSealedCredentials creates a credential store that opens blobs from
// source with a 32-byte key
func NewSealedCredentials(
	source SecretSource, key []byte,
) (*SealedCredentials, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &SealedCredentials{source: source, aead: aead}, nil
}

// GetCredentials fetches and decrypts the credentials stored under ref
func (s *SealedCredentials) GetCredentials(
	ctx context.Context, ref string,
) (*Credentials, error) {
	sealed, err := s.source.GetSecret(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.open(ref, sealed)
}

// Seal encrypts credentials for storage under ref
func (s *SealedCredentials) Seal(ref string, c *Credentials) ([]byte, error) {
	plain, err := encode(c)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+
		len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(ref)), nil
}

func (s *SealedCredentials) open(ref string, sealed []byte) (*Credentials, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: %s", ErrSealedTooShort, ref)
	}

	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnseal, ref)
	}
	return decode[Credentials](plain)
}
