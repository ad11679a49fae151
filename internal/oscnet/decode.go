package oscnet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

var bundleTag = []byte("#bundle\x00")

// maxBundleDepth bounds bundle nesting in one datagram.
const maxBundleDepth = 8

// ErrMalformedBundle is returned when a bundle envelope is truncated or its
// element sizes do not fit the datagram.
var ErrMalformedBundle = errors.New("malformed OSC bundle")

// Decode parses one datagram into its messages in wire order, descending
// into nested bundles. Bundle elements are split on their size prefixes and
// only single messages are handed to osc.ParsePacket, so bundles of any size
// decode completely. Any malformed element fails the whole datagram.
func Decode(data []byte) ([]*osc.Message, error) {
	return decode(data, nil, 0)
}

func decode(data []byte, out []*osc.Message, depth int) ([]*osc.Message, error) {
	if !bytes.HasPrefix(data, bundleTag) {
		packet, err := osc.ParsePacket(string(data))
		if err != nil {
			return out, err
		}
		msg, ok := packet.(*osc.Message)
		if !ok || msg == nil {
			return out, fmt.Errorf("unexpected OSC packet %T", packet)
		}
		return append(out, msg), nil
	}

	if depth >= maxBundleDepth {
		return out, fmt.Errorf("%w: nested deeper than %d", ErrMalformedBundle, maxBundleDepth)
	}
	// Tag, then the 8-byte timetag. Timetags are not honoured.
	rest := data[len(bundleTag):]
	if len(rest) < 8 {
		return out, fmt.Errorf("%w: missing timetag", ErrMalformedBundle)
	}
	rest = rest[8:]

	for len(rest) > 0 {
		if len(rest) < 4 {
			return out, fmt.Errorf("%w: truncated element size", ErrMalformedBundle)
		}
		size := int(int32(binary.BigEndian.Uint32(rest)))
		rest = rest[4:]
		if size <= 0 || size > len(rest) {
			return out, fmt.Errorf("%w: element size %d with %d bytes left", ErrMalformedBundle, size, len(rest))
		}
		var err error
		out, err = decode(rest[:size], out, depth+1)
		if err != nil {
			return out, err
		}
		rest = rest[size:]
	}
	return out, nil
}
