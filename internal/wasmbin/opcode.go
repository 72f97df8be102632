package wasmbin

// Opcode is a single WebAssembly instruction byte. Values match the
// WebAssembly Core binary format (https://webassembly.github.io/spec/core/binary/instructions.html).
type Opcode = byte

const (
	OpcodeUnreachable Opcode = 0x00
	OpcodeNop         Opcode = 0x01
	OpcodeBlock       Opcode = 0x02
	OpcodeLoop        Opcode = 0x03
	OpcodeIf          Opcode = 0x04
	OpcodeElse        Opcode = 0x05
	OpcodeEnd         Opcode = 0x0b
	OpcodeBr          Opcode = 0x0c
	OpcodeBrIf        Opcode = 0x0d
	OpcodeBrTable     Opcode = 0x0e
	OpcodeReturn      Opcode = 0x0f
	OpcodeCall        Opcode = 0x10
	OpcodeCallIndirect Opcode = 0x11
	OpcodeReturnCall        Opcode = 0x12 // tail-call proposal
	OpcodeReturnCallIndirect Opcode = 0x13

	OpcodeDrop   Opcode = 0x1a
	OpcodeSelect Opcode = 0x1b

	OpcodeLocalGet  Opcode = 0x20
	OpcodeLocalSet  Opcode = 0x21
	OpcodeLocalTee  Opcode = 0x22
	OpcodeGlobalGet Opcode = 0x23
	OpcodeGlobalSet Opcode = 0x24

	OpcodeTableGet Opcode = 0x25
	OpcodeTableSet Opcode = 0x26

	OpcodeI32Load Opcode = 0x28
	OpcodeI64Load Opcode = 0x29
	OpcodeF32Load Opcode = 0x2a
	OpcodeF64Load Opcode = 0x2b

	OpcodeI32Store Opcode = 0x36
	OpcodeI64Store Opcode = 0x37
	OpcodeF32Store Opcode = 0x38
	OpcodeF64Store Opcode = 0x39

	OpcodeMemorySize Opcode = 0x3f
	OpcodeMemoryGrow Opcode = 0x40

	OpcodeI32Const Opcode = 0x41
	OpcodeI64Const Opcode = 0x42
	OpcodeF32Const Opcode = 0x43
	OpcodeF64Const Opcode = 0x44

	OpcodeI32Eqz Opcode = 0x45
	OpcodeI32Eq  Opcode = 0x46
	OpcodeI32Ne  Opcode = 0x47
	OpcodeI32LtS Opcode = 0x48
	OpcodeI32GtS Opcode = 0x4a

	OpcodeI32Add  Opcode = 0x6a
	OpcodeI32Sub  Opcode = 0x6b
	OpcodeI32Mul  Opcode = 0x6c
	OpcodeI32DivS Opcode = 0x6d
	OpcodeI32DivU Opcode = 0x6e
	OpcodeI32RemS Opcode = 0x6f
	OpcodeI32RemU Opcode = 0x70
	OpcodeI32And  Opcode = 0x71
	OpcodeI32Or   Opcode = 0x72
	OpcodeI32Xor  Opcode = 0x73
	OpcodeI32Shl  Opcode = 0x74
	OpcodeI32ShrS Opcode = 0x75
	OpcodeI32ShrU Opcode = 0x76

	OpcodeI64Add  Opcode = 0x7c
	OpcodeI64Sub  Opcode = 0x7d
	OpcodeI64Mul  Opcode = 0x7e
	OpcodeI64DivS Opcode = 0x7f
	OpcodeI64DivU Opcode = 0x80

	OpcodeF32Nearest Opcode = 0x90

	OpcodeF32Add Opcode = 0x92
	OpcodeF32Sub Opcode = 0x93
	OpcodeF32Mul Opcode = 0x94
	OpcodeF32Min Opcode = 0x96
	OpcodeF32Max Opcode = 0x97

	OpcodeF64Nearest Opcode = 0x9e

	OpcodeF64Add Opcode = 0xa0
	OpcodeF64Sub Opcode = 0xa1
	OpcodeF64Mul Opcode = 0xa2
	OpcodeF64Min Opcode = 0xa4
	OpcodeF64Max Opcode = 0xa5

	OpcodeRefNull   Opcode = 0xd0
	OpcodeRefIsNull Opcode = 0xd1
	OpcodeRefFunc   Opcode = 0xd2

	// OpcodeMiscPrefix prefixes multi-byte opcodes (bulk memory, saturating
	// truncation) whose second byte selects the actual operation.
	OpcodeMiscPrefix Opcode = 0xfc
	// OpcodeVecPrefix prefixes SIMD opcodes.
	OpcodeVecPrefix Opcode = 0xfd
	// OpcodeAtomicPrefix prefixes threads-proposal atomic opcodes.
	OpcodeAtomicPrefix Opcode = 0xfe

	// component-model async builtins, a wrt-go extension placed in the
	// unused 0xe0-0xe2 range of the single-byte opcode space and used
	// only inside canonical-function bodies (spec.md §4.4); the validator
	// accepts these only when CoreFeatureComponentModel is enabled.
	OpcodeTaskWait  Opcode = 0xe0
	OpcodeTaskYield Opcode = 0xe1
	OpcodeTaskPoll  Opcode = 0xe2
)

// MiscOpcode is the second byte of a 0xfc-prefixed instruction.
type MiscOpcode = byte

const (
	MiscOpcodeI32TruncSatF32S MiscOpcode = 0x00
	MiscOpcodeMemoryInit      MiscOpcode = 0x08
	MiscOpcodeDataDrop        MiscOpcode = 0x09
	MiscOpcodeMemoryCopy      MiscOpcode = 0x0a
	MiscOpcodeMemoryFill      MiscOpcode = 0x0b
	MiscOpcodeTableInit       MiscOpcode = 0x0c
	MiscOpcodeElemDrop        MiscOpcode = 0x0d
	MiscOpcodeTableCopy       MiscOpcode = 0x0e
	MiscOpcodeTableGrow       MiscOpcode = 0x0f
	MiscOpcodeTableSize       MiscOpcode = 0x10
	MiscOpcodeTableFill       MiscOpcode = 0x11
)
