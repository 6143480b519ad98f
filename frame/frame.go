// Package frame classifies and decompresses raw inbound Gateway frames.
//
// The Gateway delivers each WebSocket frame as either plain UTF-8 JSON or a
// zlib-deflated JSON document. Deflated frames are recognized by the zlib
// stream header: a 0x78 CMF byte followed by one of the four standard FLG
// bytes. A frame that fails to inflate is a decode error for that frame
// only; the caller drops it and keeps the connection.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// zlib CMF byte for the deflate method with a 32K window.
const zlibCMF = 0x78

// Valid FLG bytes for a 0x78 CMF: the only combinations whose checksum
// satisfies (CMF<<8|FLG) % 31 == 0.
var zlibFLG = [...]byte{0x01, 0x5e, 0x9c, 0xda}

// ErrEmpty is returned for a zero-length frame.
var ErrEmpty = errors.New("frame: empty frame")

// IsCompressed reports whether data begins with a zlib stream header.
func IsCompressed(data []byte) bool {
	if len(data) < 2 || data[0] != zlibCMF {
		return false
	}
	for _, flg := range zlibFLG {
		if data[1] == flg {
			return true
		}
	}
	return false
}

// Decode returns the JSON document carried by a raw frame, inflating it
// first when the frame is zlib-deflated.
func Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if !IsCompressed(data) {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("frame: open zlib stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("frame: inflate: %w", err)
	}
	return out, nil
}
