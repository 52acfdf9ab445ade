package security

import (
	"encoding/binary"
	"fmt"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// Decode authenticates and decrypts a protected submessage
// and returns the plain submessage bytes.
func (t *Transform) Decode(prefix, body, postfix wire.Submessage) ([]byte, error) {
	if prefix.ID != wire.SubmessageSecPrefix || body.ID != wire.SubmessageSecBody || postfix.ID != wire.SubmessageSecPostfix {
		return nil, fmt.Errorf("%w: unexpected submessages %s, %s, %s", ErrMalformed, prefix.ID, body.ID, postfix.ID)
	}

	if len(prefix.Body) < prefixContentSize || len(body.Body) < bodyLenSize || len(postfix.Body) < postfixContentSize {
		return nil, fmt.Errorf("%w: truncated submessage", ErrMalformed)
	}

	if [4]byte(prefix.Body[0:4]) != TransformationKind {
		return nil, fmt.Errorf("%w: unsupported transformation kind %x", ErrMalformed, prefix.Body[0:4])
	}

	keyID := binary.BigEndian.Uint32(prefix.Body[4:8])
	sessionID := binary.BigEndian.Uint32(prefix.Body[8:12])
	ivSuffix := binary.BigEndian.Uint64(prefix.Body[12:20])

	if keyID != t.keyID {
		return nil, fmt.Errorf("%w: unknown key id %d", ErrAuthentication, keyID)
	}

	ctLen := int(body.ByteOrder().Uint32(body.Body[0:4]))
	if bodyLenSize+ctLen > len(body.Body) {
		return nil, fmt.Errorf("%w: ciphertext overflows SEC_BODY", ErrMalformed)
	}

	t.mux.Lock()
	defer t.mux.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	aead := t.aead
	if sessionID != t.sessionID {
		var err error
		aead, err = t.sessionAEAD(sessionID)
		if err != nil {
			return nil, err
		}
	}

	sealed := make([]byte, 0, ctLen+aead.Overhead())
	sealed = append(sealed, body.Body[bodyLenSize:bodyLenSize+ctLen]...)
	sealed = append(sealed, postfix.Body[:aead.Overhead()]...)

	nonce := makeNonce(sessionID, ivSuffix)
	aad := prefix.AppendTo(nil)

	plain, err := aead.Open(sealed[:0], nonce[:], sealed, aad)
	if err != nil {
		return nil, ErrAuthentication
	}

	return plain, nil
}
