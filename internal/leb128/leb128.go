// Package leb128 implements canonical unsigned and signed LEB128 encode/decode
// per the WebAssembly binary format. Decoding rejects non-canonical
// encodings and sequences longer than the value's maximum byte width, as
// required by the validator (spec.md L2 "reject LEB128 sequences longer
// than their type's maximum bytes and any non-canonical encoding").
package leb128

import (
	"fmt"
	"io"
	"math/bits"
)

const (
	maxVarintBytes32 = 5  // ceil(32/7)
	maxVarintBytes64 = 10 // ceil(64/7)
)

// EncodeInt32 encodes v as a signed LEB128 byte sequence.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as a signed LEB128 byte sequence.
func EncodeInt64(v int64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// EncodeUint32 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as an unsigned LEB128 byte sequence.
func EncodeUint64(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			out = append(out, b)
			return out
		}
		out = append(out, b|0x80)
	}
}

// LoadUint32 decodes an unsigned LEB128 value from buf, returning the value,
// the number of bytes consumed, and an error if the sequence is malformed,
// non-canonical, or exceeds the 32-bit width.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := loadUint(buf, 32, maxVarintBytes32)
	return uint32(v), n, err
}

// LoadUint64 decodes an unsigned LEB128 value from buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return loadUint(buf, 64, maxVarintBytes64)
}

func loadUint(buf []byte, width int, maxBytes int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("leb128: integer representation too long")
		}
		b := buf[i]
		lo := uint64(b & 0x7f)
		if shift >= 64 {
			return 0, 0, fmt.Errorf("leb128: integer overflow")
		}
		contributed := lo << shift
		if shift < 64 && (contributed>>shift) != lo {
			return 0, 0, fmt.Errorf("leb128: integer overflow")
		}
		result |= contributed
		if b&0x80 == 0 {
			// Canonical check: remaining high bits beyond width must be zero.
			if width < 64 {
				usedBits := shift + 7
				if usedBits > uint(width) {
					extra := result >> uint(width)
					if extra != 0 {
						return 0, 0, fmt.Errorf("leb128: non-canonical encoding, unused bits set")
					}
				}
			}
			return result, uint64(i + 1), nil
		}
		shift += 7
	}
}

// LoadInt32 decodes a signed LEB128 value from buf as a 32-bit integer.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := loadInt(buf, 32, maxVarintBytes32)
	if err != nil {
		return 0, 0, err
	}
	return int32(v), n, nil
}

// LoadInt64 decodes a signed LEB128 value from buf as a 64-bit integer.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return loadInt(buf, 64, maxVarintBytes64)
}

func loadInt(buf []byte, width int, maxBytes int) (int64, uint64, error) {
	var result int64
	var shift uint
	var b byte
	i := 0
	for {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("leb128: integer representation too long")
		}
		b = buf[i]
		result |= int64(b&0x7f) << shift
		shift += 7
		i++
		if b&0x80 == 0 {
			break
		}
	}
	// Sign extend if necessary and the shift didn't already cover the width.
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width < 64 {
		// Verify the value fits back into `width` bits once sign-extended to int64.
		s := int64(64 - width)
		if (result<<s)>>s != result {
			return 0, 0, fmt.Errorf("leb128: integer overflow for width %d", width)
		}
	}
	return result, uint64(i), nil
}

// DecodeInt33AsInt64 decodes a 33-bit signed LEB128 value (used for
// block-type immediates, which distinguish a type index from a value type by
// the sign of a 33-bit field) from r into an int64.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeIntReader(r, 33)
}

// DecodeInt32 decodes a signed LEB128 value directly from an io.ByteReader,
// used by the streaming section decoder.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeIntReader(r, 32)
	return int32(v), n, err
}

// DecodeInt64 decodes a signed LEB128 value directly from an io.ByteReader.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeIntReader(r, 64)
}

func decodeIntReader(r io.ByteReader, width int) (int64, uint64, error) {
	var result int64
	var shift uint
	var b byte
	var n uint64
	maxBytes := (width + 6) / 7
	for {
		nb, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		b = nb
		n++
		if int(n) > maxBytes {
			return 0, 0, fmt.Errorf("leb128: integer representation too long")
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	if width < 64 {
		s := uint(64 - width)
		if (result<<s)>>s != result {
			return 0, 0, fmt.Errorf("leb128: integer overflow for width %d", width)
		}
	}
	return result, n, nil
}

// DecodeUint32 decodes an unsigned LEB128 value directly from an
// io.ByteReader.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUintReader(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 decodes an unsigned LEB128 value directly from an
// io.ByteReader.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUintReader(r, 64)
}

func decodeUintReader(r io.ByteReader, width int) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var n uint64
	maxBytes := (width + 6) / 7
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		n++
		if int(n) > maxBytes {
			return 0, 0, fmt.Errorf("leb128: integer representation too long")
		}
		lo := uint64(b & 0x7f)
		if bits.LeadingZeros64(lo) < int(shift) {
			return 0, 0, fmt.Errorf("leb128: integer overflow")
		}
		result |= lo << shift
		if b&0x80 == 0 {
			if width < 64 && result>>uint(width) != 0 {
				return 0, 0, fmt.Errorf("leb128: non-canonical encoding, unused bits set")
			}
			return result, n, nil
		}
		shift += 7
	}
}
