// Package bridge carries bound-report batches from the UI layer to the
// daemon as a CBOR stream over a unix socket.
package bridge

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so identical batches produce
// identical bytes on the wire.
var encMode cbor.EncMode

// decMode ignores unknown fields so older daemons accept newer reporters.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bridge: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic("bridge: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewEncoder returns a stream encoder writing consecutive batches to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading consecutive batches from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
