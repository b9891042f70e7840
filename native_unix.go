//go:build darwin || linux || freebsd

package fbxio

import (
	"runtime"

	"github.com/ebitengine/purego"
)

func DefaultLibraryName() string {
	if runtime.GOOS == "darwin" {
		return "libfbxio.dylib"
	}
	return "libfbxio.so"
}

func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func closeLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}
