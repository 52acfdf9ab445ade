// Package security protects RTPS submessages.
//
// A protected submessage is written as three submessages:
// SEC_PREFIX (transformation kind, key id, session id, IV suffix),
// SEC_BODY (the ciphertext) and SEC_POSTFIX (the authentication tag).
// The bytes of the SEC_PREFIX are authenticated as additional data.
// The cipher is ChaCha20-Poly1305 with per-session keys derived
// from a master key with HKDF-SHA256.
package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrInvalidKey is returned when the master key has not the expected size.
	ErrInvalidKey = errors.New("security: invalid master key")
	// ErrClosed is returned when the transform is used after being closed.
	ErrClosed = errors.New("security: transform is closed")
	// ErrCounterExhausted is returned when no more IVs can be generated.
	ErrCounterExhausted = errors.New("security: iv counter exhausted")
	// ErrAuthentication is returned when a protected submessage fails the authentication.
	ErrAuthentication = errors.New("security: authentication failed")
	// ErrMalformed is returned when a protected submessage cannot be decoded.
	ErrMalformed = errors.New("security: malformed protected submessage")
)

// MasterKeySize is the size of the master key.
const MasterKeySize = chacha20poly1305.KeySize

// TransformationKind identifies the cipher in the SEC_PREFIX.
var TransformationKind = [4]byte{0, 0, 0x01, 0x10}

const (
	prefixContentSize  = 4 + 4 + 4 + 8
	postfixContentSize = chacha20poly1305.Overhead + 4
	bodyLenSize        = 4

	sessionInfo = "rtps session key"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the transform configuration.
const (
	DefaultMaxBlocksPerSession uint32 = 1 << 20
)

// Config is the configuration of a [Transform].
type Config struct {
	// MaxBlocksPerSession is the number of submessages protected
	// with the same session key before deriving a new one.
	//
	// Default: 1 << 20
	MaxBlocksPerSession uint32
}

// NewConfig returns the default configuration of a transform.
func NewConfig() *Config {
	return &Config{
		MaxBlocksPerSession: DefaultMaxBlocksPerSession,
	}
}

// Validate checks the configuration.
func (c *Config) Validate(ac *config.AnomalyCollector) {
	config.CheckNotZero(ac, "MaxBlocksPerSession", &c.MaxBlocksPerSession, DefaultMaxBlocksPerSession)
}

/////////////////
//  TRANSFORM  //
/////////////////

// Transform protects submessages with a shared master key.
// It is safe for concurrent use.
type Transform struct {
	tel *telemetry.Telemetry

	mux sync.Mutex

	masterKey []byte
	keyID     uint32

	maxBlocks uint32

	sessionID uint32
	blocks    uint32
	aead      cipher.AEAD
	ivCounter uint64

	sealBuf []byte

	closed bool
}

// NewTransform returns a new transform using the given master key.
// The key id is written in every SEC_PREFIX so that the receiver
// can select the right master key.
func NewTransform(masterKey []byte, keyID uint32, cfg *Config) (*Transform, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, MasterKeySize, len(masterKey))
	}

	if cfg == nil {
		cfg = NewConfig()
	}

	tel := telemetry.New("security", "chacha20poly1305")
	config.NewValidator(tel).Validate(cfg)

	t := &Transform{
		tel: tel,

		masterKey: append([]byte(nil), masterKey...),
		keyID:     keyID,

		maxBlocks: cfg.MaxBlocksPerSession,
	}

	// Transforms sharing the master key must never reuse a key and nonce pair,
	// so each one starts from a random session and IV.
	var seed [12]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("security: session seed: %w", err)
	}
	t.sessionID = binary.BigEndian.Uint32(seed[0:4])
	t.ivCounter = binary.BigEndian.Uint64(seed[4:12]) >> 1

	aead, err := t.sessionAEAD(t.sessionID)
	if err != nil {
		return nil, err
	}
	t.aead = aead

	return t, nil
}

func (t *Transform) sessionAEAD(sessionID uint32) (cipher.AEAD, error) {
	var salt [4]byte
	binary.BigEndian.PutUint32(salt[:], t.keyID)

	info := binary.BigEndian.AppendUint32([]byte(sessionInfo), sessionID)

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, t.masterKey, salt[:], info), key); err != nil {
		return nil, err
	}

	return chacha20poly1305.New(key)
}

func (t *Transform) rotateSession() error {
	aead, err := t.sessionAEAD(t.sessionID + 1)
	if err != nil {
		return err
	}

	t.sessionID++
	t.blocks = 0
	t.aead = aead

	t.tel.LogDebug("session key rotated", "session_id", t.sessionID)

	return nil
}

// ProtectedSize returns the bytes written by [Transform.EncodeSubmessage]
// for a submessage of the given size.
func ProtectedSize(submsgLen int) int {
	return wire.SubmessageSize(prefixContentSize) +
		wire.SubmessageSize(bodyLenSize+submsgLen) +
		wire.SubmessageSize(postfixContentSize)
}

// EncodeSubmessage protects the submessage and appends the resulting
// SEC_PREFIX, SEC_BODY and SEC_POSTFIX to dst.
// If dst has not enough room, it returns [wire.ErrBufferFull]
// and dst is left unchanged.
func (t *Transform) EncodeSubmessage(dst *wire.Buffer, submsg []byte) error {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.closed {
		return ErrClosed
	}

	if dst.Free() < ProtectedSize(len(submsg)) {
		return wire.ErrBufferFull
	}

	if t.ivCounter == math.MaxUint64 {
		return ErrCounterExhausted
	}

	if t.blocks >= t.maxBlocks {
		if err := t.rotateSession(); err != nil {
			return err
		}
	}

	ivSuffix := t.ivCounter
	t.ivCounter++
	t.blocks++

	// Prefix
	prefixStart := dst.Len()
	prefix, err := dst.AllocSubmessage(wire.SubmessageSecPrefix, 0, prefixContentSize)
	if err != nil {
		return err
	}

	copy(prefix[0:4], TransformationKind[:])
	binary.BigEndian.PutUint32(prefix[4:8], t.keyID)
	binary.BigEndian.PutUint32(prefix[8:12], t.sessionID)
	binary.BigEndian.PutUint64(prefix[12:20], ivSuffix)

	aad := dst.Bytes()[prefixStart:dst.Len()]
	nonce := makeNonce(t.sessionID, ivSuffix)

	t.sealBuf = t.aead.Seal(t.sealBuf[:0], nonce[:], submsg, aad)
	ciphertext := t.sealBuf[:len(submsg)]
	tag := t.sealBuf[len(submsg):]

	// Body
	body, err := dst.AllocSubmessage(wire.SubmessageSecBody, 0, bodyLenSize+len(ciphertext))
	if err != nil {
		dst.Truncate(prefixStart)
		return err
	}

	binary.LittleEndian.PutUint32(body[0:4], uint32(len(ciphertext)))
	copy(body[4:], ciphertext)

	// Postfix, no receiver specific MACs
	postfix, err := dst.AllocSubmessage(wire.SubmessageSecPostfix, 0, postfixContentSize)
	if err != nil {
		dst.Truncate(prefixStart)
		return err
	}

	copy(postfix, tag)

	return nil
}

// Close wipes the keys. Every later call fails with [ErrClosed].
func (t *Transform) Close() {
	t.mux.Lock()
	defer t.mux.Unlock()

	if t.closed {
		return
	}

	clear(t.masterKey)
	clear(t.sealBuf)
	t.aead = nil
	t.closed = true
}

func makeNonce(sessionID uint32, ivSuffix uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.BigEndian.PutUint32(nonce[0:4], sessionID)
	binary.BigEndian.PutUint64(nonce[4:12], ivSuffix)
	return nonce
}
