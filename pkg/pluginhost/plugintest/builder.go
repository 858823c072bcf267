// Package plugintest assembles small WebAssembly plugins for tests.
//
// Modules are emitted directly in the binary format. Every module exports
// one page of memory, a bump allocator as cabi_realloc and the functions
// passed to Build.
package plugintest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Ludea/Sparus/pkg/valuebridge"
)

// Function type indices available to Func.Type.
const (
	TypeAlloc   byte = iota // (i32, i32, i32, i32) -> i32
	TypeUnary               // (i32, i32) -> i64
	TypeNullary             // () -> i64
	TypeInt                 // () -> i32
)

// DataOffset is where Build places the data segment.
const DataOffset = 16

const heapBase = 1024

// Func is one exported function.
type Func struct {
	Name string
	Type byte
	// Code is the instruction sequence without locals or the final end.
	Code []byte
}

// Instruction sequences.
var (
	// Echo returns its single argument unchanged.
	Echo = []byte{
		0x20, 0x00, // local.get 0
		0xad,       // i64.extend_i32_u
		0x42, 0x20, // i64.const 32
		0x86,       // i64.shl
		0x20, 0x01, // local.get 1
		0xad, // i64.extend_i32_u
		0x84, // i64.or
	}
	// Unreachable traps.
	Unreachable = []byte{0x00}
	// ZeroI32 returns i32 0.
	ZeroI32 = []byte{0x41, 0x00}
)

// ReturnData returns the packed pointer to n bytes of the data segment.
func ReturnData(n int) []byte {
	return append([]byte{0x42}, sleb(int64(DataOffset)<<32|int64(n))...)
}

// ReturnPacked returns an arbitrary packed pointer.
func ReturnPacked(ptr, size uint32) []byte {
	return append([]byte{0x42}, sleb(int64(uint64(ptr)<<32|uint64(size)))...)
}

// Build assembles a module exporting funcs, with data placed at DataOffset.
func Build(data []byte, funcs ...Func) []byte {
	types := vec(4,
		[]byte{0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f},
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7e},
		[]byte{0x60, 0x00, 0x01, 0x7e},
		[]byte{0x60, 0x00, 0x01, 0x7f},
	)

	funcTypes := []byte{TypeAlloc}
	for _, f := range funcs {
		funcTypes = append(funcTypes, f.Type)
	}

	memory := []byte{0x01, 0x00, 0x01}

	global := []byte{0x01, 0x7f, 0x01, 0x41}
	global = append(global, sleb(heapBase)...)
	global = append(global, 0x0b)

	exports := [][]byte{
		export("memory", 0x02, 0),
		export("cabi_realloc", 0x00, 0),
	}
	for i, f := range funcs {
		exports = append(exports, export(f.Name, 0x00, uint32(i+1)))
	}

	alloc := []byte{
		0x23, 0x00, // global.get 0
		0x23, 0x00, // global.get 0
		0x20, 0x03, // local.get 3
		0x6a,       // i32.add
		0x24, 0x00, // global.set 0
	}
	bodies := [][]byte{body(alloc)}
	for _, f := range funcs {
		bodies = append(bodies, body(f.Code))
	}

	out := header()
	out = append(out, section(1, types)...)
	out = append(out, section(3, append(uleb(uint64(len(funcTypes))), funcTypes...))...)
	out = append(out, section(5, memory)...)
	out = append(out, section(6, global)...)
	out = append(out, section(7, vec(len(exports), exports...))...)
	out = append(out, section(10, vec(len(bodies), bodies...))...)
	if len(data) > 0 {
		seg := []byte{0x00, 0x41}
		seg = append(seg, sleb(DataOffset)...)
		seg = append(seg, 0x0b)
		seg = append(seg, uleb(uint64(len(data)))...)
		seg = append(seg, data...)
		out = append(out, section(11, vec(1, seg))...)
	}
	return out
}

// UnresolvedImport assembles a module exporting get-version that imports
// env.missing, which no host provides.
func UnresolvedImport() []byte {
	types := vec(1, []byte{0x60, 0x00, 0x01, 0x7e})
	imp := append(name("env"), name("missing")...)
	imp = append(imp, 0x00, 0x00)

	out := header()
	out = append(out, section(1, types)...)
	out = append(out, section(2, vec(1, imp))...)
	out = append(out, section(3, []byte{0x01, 0x00})...)
	out = append(out, section(7, vec(1, export("get-version", 0x00, 1)))...)
	out = append(out, section(10, vec(1, body([]byte{0x42, 0x00})))...)
	return out
}

// VersionPlugin returns a plugin whose get-version returns version.
func VersionPlugin(version string) []byte {
	data, err := valuebridge.Encode(valuebridge.String(version))
	if err != nil {
		panic(err)
	}
	return Build(data, Func{Name: "get-version", Type: TypeNullary, Code: ReturnData(len(data))})
}

// EchoPlugin returns a plugin with get-version and a one-argument echo.
func EchoPlugin(version string) []byte {
	data, err := valuebridge.Encode(valuebridge.String(version))
	if err != nil {
		panic(err)
	}
	return Build(data,
		Func{Name: "get-version", Type: TypeNullary, Code: ReturnData(len(data))},
		Func{Name: "echo", Type: TypeUnary, Code: Echo},
		Func{Name: "boom", Type: TypeNullary, Code: Unreachable},
		Func{Name: "bad", Type: TypeInt, Code: ZeroI32},
		Func{Name: "garbage", Type: TypeNullary, Code: ReturnPacked(0, 3)},
		Func{Name: "overflow", Type: TypeNullary, Code: ReturnPacked(0xfffffff0, 64)},
	)
}

// Install writes wasm as <dir>/<plugin>/<plugin>.wasm and returns the
// plugin directory.
func Install(t testing.TB, dir, plugin string, wasm []byte) string {
	t.Helper()
	pluginDir := filepath.Join(dir, plugin)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatalf("create plugin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, plugin+".wasm"), wasm, 0o644); err != nil {
		t.Fatalf("write plugin: %v", err)
	}
	return pluginDir
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func section(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(content)))...)
	return append(out, content...)
}

func vec(n int, items ...[]byte) []byte {
	out := uleb(uint64(n))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func export(n string, kind byte, idx uint32) []byte {
	out := append(name(n), kind)
	return append(out, uleb(uint64(idx))...)
}

func body(code []byte) []byte {
	b := append([]byte{0x00}, code...)
	b = append(b, 0x0b)
	return append(uleb(uint64(len(b))), b...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		out = append(out, c)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(out, c)
		}
		out = append(out, c|0x80)
	}
}
