package wasmbin

import "bytes"

// Format classifies a candidate binary before a full decode is
// attempted, per spec.md §4.4's "format ambiguity" edge case: a
// Component-Model binary shares the same 4-byte magic and version layout
// as a core module, distinguished only by the layer-kind bit set in the
// 4-byte version/layer word that follows the magic.
type Format int

const (
	FormatInvalid Format = iota
	FormatCore
	FormatComponent
	FormatAmbiguous
)

// componentLayerBit is the layer byte (byte 6 of the header, the third
// byte of the little-endian version/layer word) set to 1 for a
// component, per the Component Model binary format's 0x0a 0x00 0x01
// 0x00 header convention (a 2-byte version followed by a 2-byte layer,
// where a core module's layer is 0).
const componentLayerBit = 0x00010000

// DetectFormat inspects just the 8-byte header — magic plus version/layer
// word — without allocating or decoding the rest of the binary, so a
// caller can route to the correct DecodeMode (or reject early) before
// paying for a full parse.
func DetectFormat(data []byte) Format {
	if len(data) < 8 || !bytes.Equal(data[0:4], magic[:]) {
		return FormatInvalid
	}
	layer := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	switch {
	case layer == version1:
		return FormatCore
	case layer&componentLayerBit != 0:
		return FormatComponent
	default:
		return FormatAmbiguous
	}
}
