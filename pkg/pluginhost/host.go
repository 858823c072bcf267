// Package pluginhost runs sandboxed WebAssembly plugins.
//
// A plugin exports its linear memory as "memory", an allocator
// cabi_realloc(old, old_size, align, new_size) -> ptr, and one function per
// operation. Each argument is passed as a (ptr, len) pair pointing at its
// valuebridge wire encoding; the result is an i64 packing ptr<<32 | len of
// the encoded return value.
package pluginhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sparuserrors "github.com/Ludea/Sparus/errors"
	"github.com/Ludea/Sparus/logging"
	"github.com/Ludea/Sparus/pkg/valuebridge"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	// ArtifactExt is the file extension of plugin artifacts.
	ArtifactExt = ".wasm"

	// VersionExport is the zero-argument export every plugin provides.
	VersionExport = "get-version"

	allocExport = "cabi_realloc"
)

// Host owns the WebAssembly engine. Instances are never reused: every call
// compiles (through a shared cache) and instantiates the plugin afresh, so a
// trap in one call cannot affect the next.
type Host struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *logrus.Entry
}

// New creates a host with the WASI preview1 surface available to plugins.
// Plugins get no filesystem, network, or environment access.
func New(ctx context.Context) (*Host, error) {
	cache := wazero.NewCompilationCache()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCompilationCache(cache))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		cache.Close(ctx)
		return nil, sparuserrors.Wasm("link", wasi_snapshot_preview1.ModuleName, err)
	}

	return &Host{
		runtime: rt,
		cache:   cache,
		logger:  logging.NewLogger("pluginhost"),
	}, nil
}

// Close releases the engine.
func (h *Host) Close(ctx context.Context) error {
	err := h.runtime.Close(ctx)
	if cerr := h.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// ArtifactPath returns where the artifact of a plugin lives inside dir.
func ArtifactPath(dir, plugin string) string {
	return filepath.Join(dir, plugin+ArtifactExt)
}

// ValidName reports whether plugin is a single path segment.
func ValidName(plugin string) error {
	if plugin == "" || plugin == "." || plugin == ".." || strings.ContainsAny(plugin, `/\`) {
		return sparuserrors.PluginNotFound(plugin, "").WithDetail("reason", "invalid plugin name")
	}
	return nil
}

// Call invokes function on the plugin stored in dir.
func (h *Host) Call(ctx context.Context, dir, plugin, function string, args []valuebridge.Val) (valuebridge.Val, error) {
	if err := ValidName(plugin); err != nil {
		return nil, err
	}
	path := ArtifactPath(dir, plugin)
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, sparuserrors.IO("read plugin", path, err)
	}

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, sparuserrors.Wasm("compile", plugin, err)
	}
	defer compiled.Close(ctx)

	def, ok := compiled.ExportedFunctions()[function]
	if !ok {
		return nil, sparuserrors.PluginNotFound(plugin, function)
	}
	if err := checkSignature(def, len(args)); err != nil {
		return nil, sparuserrors.Wasm("type", plugin, err).WithDetail("function", function)
	}

	mod, err := h.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize"))
	if err != nil {
		return nil, sparuserrors.Wasm("link", plugin, err)
	}
	defer mod.Close(ctx)

	memory := mod.Memory()
	if memory == nil {
		return nil, sparuserrors.Wasm("link", plugin, fmt.Errorf("module does not export memory"))
	}

	params := make([]uint64, 0, 2*len(args))
	for i, arg := range args {
		ptr, size, err := h.writeArg(ctx, mod, memory, arg)
		if err != nil {
			return nil, sparuserrors.Wasm("trap", plugin, fmt.Errorf("argument %d: %w", i, err))
		}
		params = append(params, api.EncodeU32(ptr), api.EncodeU32(size))
	}

	h.logger.WithFields(logrus.Fields{
		"plugin":   plugin,
		"function": function,
		"args":     len(args),
	}).Debug("Calling plugin export")

	results, err := mod.ExportedFunction(function).Call(ctx, params...)
	if err != nil {
		return nil, sparuserrors.Wasm("trap", plugin, err).WithDetail("function", function)
	}

	packed := results[0]
	ptr, size := uint32(packed>>32), uint32(packed)
	data, ok := memory.Read(ptr, size)
	if !ok {
		return nil, sparuserrors.Wasm("type", plugin,
			fmt.Errorf("result [%d, %d) is outside memory of %d bytes", ptr, uint64(ptr)+uint64(size), memory.Size()))
	}
	val, err := valuebridge.Decode(data)
	if err != nil {
		return nil, sparuserrors.Wasm("type", plugin, err).WithDetail("function", function)
	}
	return val, nil
}

func (h *Host) writeArg(ctx context.Context, mod api.Module, memory api.Memory, arg valuebridge.Val) (uint32, uint32, error) {
	data, err := valuebridge.Encode(arg)
	if err != nil {
		return 0, 0, err
	}
	alloc := mod.ExportedFunction(allocExport)
	if alloc == nil {
		return 0, 0, fmt.Errorf("module does not export %s", allocExport)
	}
	res, err := alloc.Call(ctx, 0, 0, 1, uint64(len(data)))
	if err != nil {
		return 0, 0, err
	}
	ptr := api.DecodeU32(res[0])
	if !memory.Write(ptr, data) {
		return 0, 0, fmt.Errorf("allocation at %d for %d bytes is outside memory", ptr, len(data))
	}
	return ptr, uint32(len(data)), nil
}

func checkSignature(def api.FunctionDefinition, argc int) error {
	params := def.ParamTypes()
	if len(params) != 2*argc {
		return fmt.Errorf("export %s takes %d parameters, called with %d arguments", def.ExportNames(), len(params), argc)
	}
	for _, p := range params {
		if p != api.ValueTypeI32 {
			return fmt.Errorf("export %s has a non-i32 parameter", def.ExportNames())
		}
	}
	results := def.ResultTypes()
	if len(results) != 1 || results[0] != api.ValueTypeI64 {
		return fmt.Errorf("export %s must return a single i64", def.ExportNames())
	}
	return nil
}

// Version calls the plugin's get-version export.
func (h *Host) Version(ctx context.Context, dir, plugin string) (string, error) {
	val, err := h.Call(ctx, dir, plugin, VersionExport, nil)
	if err != nil {
		return "", err
	}
	s, ok := val.(valuebridge.String)
	if !ok {
		return "", sparuserrors.Wasm("type", plugin, fmt.Errorf("%s returned %s, want a string", VersionExport, valuebridge.Debug(val)))
	}
	return string(s), nil
}

// CallJSON invokes function with arguments given as a JSON array and
// returns the JSON encoding of the result.
func (h *Host) CallJSON(ctx context.Context, dir, plugin, function string, args []byte) ([]byte, error) {
	var vals []valuebridge.Val
	if len(args) > 0 {
		var err error
		if vals, err = valuebridge.FromJSONArray(args); err != nil {
			return nil, sparuserrors.Wasm("type", plugin, err).WithDetail("function", function)
		}
	}
	val, err := h.Call(ctx, dir, plugin, function, vals)
	if err != nil {
		return nil, err
	}
	out, err := valuebridge.ToJSON(val)
	if err != nil {
		return nil, sparuserrors.JSON("plugin result", err)
	}
	return out, nil
}
