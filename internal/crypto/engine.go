package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spounge-ai/auditvault/internal/audit"
	apperrors "github.com/spounge-ai/auditvault/internal/errors"
)

const (
	// EnvelopeVersion is the wire schema version of the stored envelope.
	EnvelopeVersion = 1
	// Alg is the single supported authenticated-encryption scheme.
	Alg = "A256GCM"

	nonceSize = 12
)

// Envelope is the at-rest representation of an encrypted payload. It is the
// only persisted form of the plaintext and must round-trip exactly.
type Envelope struct {
	V          int    `json:"v"`
	Alg        string `json:"alg"`
	Kid        string `json:"kid"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Engine encrypts and decrypts audit payloads under keys from the ring.
// Associated data binds each ciphertext to its record's immutable identity,
// so an envelope copied onto another record fails to decrypt.
type Engine struct {
	ring *Keyring
}

// NewEngine creates an engine over the given ring.
func NewEngine(ring *Keyring) *Engine {
	return &Engine{ring: ring}
}

// Ring exposes the engine's keyring.
func (e *Engine) Ring() *Keyring {
	return e.ring
}

// Encrypt seals plaintext under the currently active kid.
func (e *Engine) Encrypt(ctx context.Context, plaintext string, recordID uuid.UUID, createdAt time.Time, eventType string) ([]byte, error) {
	kid, err := e.ring.ActiveKid(ctx)
	if err != nil {
		return nil, err
	}
	return e.EncryptWithKid(kid, plaintext, recordID, createdAt, eventType)
}

// EncryptWithKid seals plaintext under an explicit kid. Rotation uses this
// to re-encrypt historical records under the target key.
func (e *Engine) EncryptWithKid(kid, plaintext string, recordID uuid.UUID, createdAt time.Time, eventType string) ([]byte, error) {
	key, ok := e.ring.material(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownKid, kid)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aad := associatedData(recordID, createdAt, eventType)
	ct := gcm.Seal(nil, nonce, []byte(plaintext), aad)

	env := Envelope{
		V:          EnvelopeVersion,
		Alg:        Alg,
		Kid:        kid,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return out, nil
}

// Decrypt opens a stored envelope. Failures are distinct and non-retriable:
// unknown key, unsupported algorithm, or authentication failure. The last
// covers both corruption and ciphertext moved between records.
func (e *Engine) Decrypt(envelopeBytes []byte, recordID uuid.UUID, createdAt time.Time, eventType string) (string, error) {
	var env Envelope
	if err := json.Unmarshal(envelopeBytes, &env); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidEnvelope, err)
	}
	if env.Kid == "" {
		return "", fmt.Errorf("%w: missing kid", apperrors.ErrInvalidEnvelope)
	}
	if env.Alg != Alg {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedAlgorithm, env.Alg)
	}

	key, ok := e.ring.material(env.Kid)
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnknownKey, env.Kid)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce encoding", apperrors.ErrInvalidEnvelope)
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", apperrors.ErrInvalidEnvelope)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	aad := associatedData(recordID, createdAt, eventType)
	pt, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return "", fmt.Errorf("%w: kid %s record %s", apperrors.ErrAuthenticationFailed, env.Kid, recordID)
	}
	return string(pt), nil
}

// EnvelopeKid peeks at the kid of a stored envelope without decrypting.
func EnvelopeKid(envelopeBytes []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(envelopeBytes, &env); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidEnvelope, err)
	}
	return env.Kid, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// associatedData binds a ciphertext to the record identity it was written
// for: id, creation time and event type, all immutable after creation.
func associatedData(recordID uuid.UUID, createdAt time.Time, eventType string) []byte {
	return []byte(recordID.String() + "|" + audit.CanonicalTime(createdAt) + "|" + eventType)
}
