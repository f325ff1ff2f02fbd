package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coffersTech/logbuf/internal/model"
)

// encMode uses Core Deterministic Encoding so identical content always
// produces identical blobs.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeContent(c model.Content) ([]byte, error) {
	data, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding content: %w", err)
	}
	return data, nil
}

func decodeContent(data []byte) (model.Content, error) {
	var c model.Content
	if err := decMode.Unmarshal(data, &c); err != nil {
		return model.Content{}, fmt.Errorf("decoding content: %w", err)
	}
	return c, nil
}
