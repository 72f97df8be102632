package wasmbin

import (
	"testing"

	"github.com/pulseengine/wrt-go/api"
	"github.com/pulseengine/wrt-go/internal/foundation"
	"github.com/stretchr/testify/require"
)

func newDecodeTestSystem(t *testing.T) *foundation.System {
	t.Helper()
	sys, err := foundation.InitMemorySystem(foundation.Config{Profile: foundation.ProfileEmbedded})
	require.NoError(t, err)
	return sys
}

func TestDetectFormat(t *testing.T) {
	require.Equal(t, FormatCore, DetectFormat(append(magic[:], 0x01, 0x00, 0x00, 0x00)))
	require.Equal(t, FormatInvalid, DetectFormat([]byte{0x00, 0x61, 0x73}))
	require.Equal(t, FormatInvalid, DetectFormat([]byte("not wasm at all!")))
}

func TestDecode_EmptyModule(t *testing.T) {
	sys := newDecodeTestSystem(t)
	m, err := Decode(sys, append(magic[:], 0x01, 0x00, 0x00, 0x00), CoreOnly, api.CoreFeaturesV2)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 0, len(m.TypeSection))
	require.Equal(t, 0, m.AllFunctionsCount())
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	sys := newDecodeTestSystem(t)
	_, err := Decode(sys, []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}, CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestDecode_RejectsUnsupportedVersion(t *testing.T) {
	sys := newDecodeTestSystem(t)
	_, err := Decode(sys, append(magic[:], 0x02, 0x00, 0x00, 0x00), CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

// addOneModule builds the module graph for a single exported function
// `add` taking two i32 and returning their sum, used as the minimal
// round-trip and end-to-end fixture across the binary and execution
// layers alike.
func addOneModule() *Module {
	i32 := api.ValueTypeI32
	ft := &FuncType{Params: []ValueType{i32, i32}, Results: []ValueType{i32}}
	body := []byte{
		OpcodeLocalGet, 0x00,
		OpcodeLocalGet, 0x01,
		OpcodeI32Add,
		OpcodeEnd,
	}
	return &Module{
		TypeSection:     []*FuncType{ft},
		FunctionSection: []Index{0},
		ExportSection:   []*Export{{Type: api.ExternTypeFunc, Name: "add", Index: 0}},
		CodeSection:     []*FunctionBody{{Body: body}},
	}
}

func TestDecode_EncodeRoundTrip(t *testing.T) {
	sys := newDecodeTestSystem(t)
	original := addOneModule()

	encoded := Encode(original)
	require.Equal(t, magic[:], encoded[0:4])

	decoded, err := Decode(sys, encoded, CoreOnly, api.CoreFeaturesV2)
	require.NoError(t, err)
	defer decoded.Close()

	require.Equal(t, 1, len(decoded.TypeSection))
	require.Equal(t, original.TypeSection[0].Params, decoded.TypeSection[0].Params)
	require.Equal(t, original.TypeSection[0].Results, decoded.TypeSection[0].Results)
	require.Equal(t, 1, len(decoded.ExportSection))
	require.Equal(t, "add", decoded.ExportSection[0].Name)
	require.Equal(t, original.CodeSection[0].Body, decoded.CodeSection[0].Body)
}

func TestDecode_NameSectionRoundTrip(t *testing.T) {
	sys := newDecodeTestSystem(t)
	original := addOneModule()
	original.NameSection = &NameSection{
		ModuleName:    "arith",
		FunctionNames: NameMap{{Index: 0, Name: "add"}},
	}

	decoded, err := Decode(sys, Encode(original), CoreOnly, api.CoreFeaturesV2)
	require.NoError(t, err)
	defer decoded.Close()

	require.NotNil(t, decoded.NameSection)
	require.Equal(t, "arith", decoded.NameSection.ModuleName)
	require.Equal(t, NameMap{{Index: 0, Name: "add"}}, decoded.NameSection.FunctionNames)
}

func TestDecode_ChargesAndReleasesFormatBudget(t *testing.T) {
	sys := newDecodeTestSystem(t)
	before, _ := sys.CrateStats(foundation.CrateFormat)

	m, err := Decode(sys, Encode(addOneModule()), CoreOnly, api.CoreFeaturesV2)
	require.NoError(t, err)
	during, _ := sys.CrateStats(foundation.CrateFormat)
	require.Greater(t, during.Current, before.Current)

	m.Close()
	after, _ := sys.CrateStats(foundation.CrateFormat)
	require.Equal(t, before.Current, after.Current)
}

func TestDecode_TruncatedSectionSizeFails(t *testing.T) {
	sys := newDecodeTestSystem(t)
	bad := append(magic[:], 0x01, 0x00, 0x00, 0x00)
	bad = append(bad, SectionIDType, 0x7f) // claims 127 bytes, none present
	_, err := Decode(sys, bad, CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

func TestDecode_OutOfOrderSectionFails(t *testing.T) {
	sys := newDecodeTestSystem(t)
	bad := append(magic[:], 0x01, 0x00, 0x00, 0x00)
	bad = append(bad, SectionIDExport, 0x01, 0x00) // export (id 7) before any type section
	bad = append(bad, SectionIDType, 0x01, 0x00)
	_, err := Decode(sys, bad, CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}

func TestDecode_InvalidStartSignatureFails(t *testing.T) {
	sys := newDecodeTestSystem(t)
	i32 := api.ValueTypeI32
	m := &Module{
		TypeSection:     []*FuncType{{Params: []ValueType{i32}}},
		FunctionSection: []Index{0},
		CodeSection:     []*FunctionBody{{Body: []byte{OpcodeEnd}}},
	}
	start := Index(0)
	m.StartSection = &start

	_, err := Decode(sys, Encode(m), CoreOnly, api.CoreFeaturesV2)
	require.Error(t, err)
}
