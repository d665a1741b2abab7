package runtime

import (
	"path/filepath"
	goruntime "runtime"
)

// Platform layout of an SDK distribution:
//
//	<sdk>/for_linux/open_source_sdk/libopen_source_sdk.so
//	<sdk>/for_linux/onnxruntime-linux-x86-64-shared-install-dir/
//	<sdk>/for_windows/open_source_sdk/open_source_sdk.dll
//	<sdk>/for_windows/onnxruntime-windows-x86-64-shared-install-dir/
const (
	libraryDir   = "open_source_sdk"
	sharedObject = "libopen_source_sdk.so"
	dll          = "open_source_sdk.dll"
)

func binariesDirFor(goos, sdk string) string {
	if goos == "windows" {
		return filepath.Join(sdk, "for_windows")
	}
	return filepath.Join(sdk, "for_linux")
}

func libraryFileFor(goos, bin string) string {
	if goos == "windows" {
		return filepath.Join(bin, libraryDir, dll)
	}
	return filepath.Join(bin, libraryDir, sharedObject)
}

func onnxRuntimeDirFor(goos, bin string) string {
	if goos == "windows" {
		return filepath.Join(bin, "onnxruntime-windows-x86-64-shared-install-dir")
	}
	return filepath.Join(bin, "onnxruntime-linux-x86-64-shared-install-dir")
}

func binariesDir(sdk string) string    { return binariesDirFor(goruntime.GOOS, sdk) }
func libraryFile(bin string) string    { return libraryFileFor(goruntime.GOOS, bin) }
func onnxRuntimeDir(bin string) string { return onnxRuntimeDirFor(goruntime.GOOS, bin) }
