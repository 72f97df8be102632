package exec

import (
	"fmt"

	"github.com/pulseengine/wrt-go/internal/leb128"
	"github.com/pulseengine/wrt-go/internal/wasmbin"
)

func decodeU32(data []byte) (uint32, uint64, error) {
	return leb128.LoadUint32(data)
}

// decodeConstImmediate decodes a const expression's Data payload (as
// written by wasmbin's decodeConstExpr) into this package's uint64 value
// encoding, matching api.EncodeF32/EncodeF64's bit-pattern convention.
func decodeConstImmediate(ce *wasmbin.ConstantExpression) (uint64, error) {
	switch ce.Opcode {
	case wasmbin.OpcodeI32Const:
		v, _, err := leb128.LoadInt64(ce.Data)
		if err != nil {
			return 0, err
		}
		return uint64(uint32(int32(v))), nil
	case wasmbin.OpcodeI64Const:
		v, _, err := leb128.LoadInt64(ce.Data)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	case wasmbin.OpcodeF32Const:
		if len(ce.Data) != 4 {
			return 0, fmt.Errorf("exec: malformed f32 const immediate")
		}
		bits := uint32(ce.Data[0]) | uint32(ce.Data[1])<<8 | uint32(ce.Data[2])<<16 | uint32(ce.Data[3])<<24
		return uint64(bits), nil
	case wasmbin.OpcodeF64Const:
		if len(ce.Data) != 8 {
			return 0, fmt.Errorf("exec: malformed f64 const immediate")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(ce.Data[i]) << (8 * i)
		}
		return bits, nil
	default:
		return 0, fmt.Errorf("exec: not a value-producing const expression opcode %#x", ce.Opcode)
	}
}
