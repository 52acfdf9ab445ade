package group

import (
	"errors"
	"fmt"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// submessageEncoder turns the content of the scratch buffer
// into the bytes appended to the message.
// The first tsLen bytes of the scratch hold the INFO_TS, if any.
type submessageEncoder interface {
	encode(scratch *wire.Buffer, tsLen int) ([]byte, error)
}

type plainEncoder struct{}

func (plainEncoder) encode(scratch *wire.Buffer, _ int) ([]byte, error) {
	return scratch.Bytes(), nil
}

type cryptoEncoder struct {
	crypto   CryptoTransform
	envelope *wire.Buffer
}

func newCryptoEncoder(crypto CryptoTransform, envelope *wire.Buffer) *cryptoEncoder {
	return &cryptoEncoder{
		crypto:   crypto,
		envelope: envelope,
	}
}

// encode copies the INFO_TS as is and protects the submessage that follows.
func (ce *cryptoEncoder) encode(scratch *wire.Buffer, tsLen int) ([]byte, error) {
	ce.envelope.Reset()

	raw := scratch.Bytes()
	if err := ce.envelope.Append(raw[:tsLen]); err != nil {
		return nil, ErrTooLargeForMessage
	}

	if err := ce.crypto.EncodeSubmessage(ce.envelope, raw[tsLen:]); err != nil {
		if errors.Is(err, wire.ErrBufferFull) {
			return nil, ErrTooLargeForMessage
		}
		return nil, fmt.Errorf("%w: %w", ErrEncryption, err)
	}

	return ce.envelope.Bytes(), nil
}
