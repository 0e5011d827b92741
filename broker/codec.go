package broker

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Frame is a single decoded device message: an id correlating it to the
// request that produced it, and an opaque payload. The codec never
// interprets payloads.
type Frame struct {
	ID      uint64
	Payload []byte
	Binary  bool
}

// DecodeFrame splits a raw inbound message into a Frame. Text frames carry
// "<digits>;<payload>", binary frames a 4-byte big-endian id followed by the
// payload bytes.
func DecodeFrame(isBinary bool, data []byte) (Frame, error) {
	if isBinary {
		if len(data) < 4 {
			return Frame{}, fmt.Errorf("%w: binary frame of %d bytes", ErrMalformedFrame, len(data))
		}
		id := binary.BigEndian.Uint32(data[:4])
		return Frame{ID: uint64(id), Payload: data[4:], Binary: true}, nil
	}

	text := string(data)
	idPart, payload, found := strings.Cut(text, ";")
	if !found {
		return Frame{}, fmt.Errorf("%w: text frame missing separator", ErrMalformedFrame)
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad message id %q", ErrMalformedFrame, idPart)
	}
	return Frame{ID: id, Payload: []byte(payload)}, nil
}

// EncodeFrame renders a Frame into its wire form, the inverse of DecodeFrame.
func EncodeFrame(f Frame) []byte {
	if f.Binary {
		buf := make([]byte, 4+len(f.Payload))
		binary.BigEndian.PutUint32(buf[:4], uint32(f.ID))
		copy(buf[4:], f.Payload)
		return buf
	}
	return []byte(strconv.FormatUint(f.ID, 10) + ";" + string(f.Payload))
}
