//go:build !(darwin || linux || freebsd || windows)

package fbxio

import (
	"fmt"
	"runtime"
)

func DefaultLibraryName() string {
	return "libfbxio.so"
}

func openLibrary(path string) (uintptr, error) {
	return 0, fmt.Errorf("native libraries are not supported on %s", runtime.GOOS)
}

func lookupSymbol(handle uintptr, name string) (uintptr, error) {
	return 0, fmt.Errorf("native libraries are not supported on %s", runtime.GOOS)
}

func closeLibrary(handle uintptr) error {
	return nil
}
