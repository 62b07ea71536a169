// Package inference - Model sessions over ONNX Runtime execution providers.
package inference

import (
	"os"
	"runtime"
)

// Provider identifies an ONNX Runtime execution provider.
type Provider string

const (
	// CPUProvider uses the default CPU execution provider.
	CPUProvider Provider = "cpu"
	// CUDAProvider uses NVIDIA CUDA for GPU acceleration.
	CUDAProvider Provider = "cuda"
	// CoreMLProvider uses Apple CoreML on macOS.
	CoreMLProvider Provider = "coreml"
	// OpenVINOProvider uses Intel OpenVINO.
	OpenVINOProvider Provider = "openvino"
)

// DetectProviders returns the provider preference list for the current
// platform, most capable first. CPU is always present as the final
// fallback. This is pure configuration: session construction walks the
// list and settles on the first provider that builds.
func DetectProviders() []Provider {
	switch runtime.GOOS {
	case "darwin":
		return []Provider{CoreMLProvider, CPUProvider}
	case "linux":
		return []Provider{CUDAProvider, CPUProvider}
	default:
		return []Provider{CPUProvider}
	}
}

// SharedLibPath returns the path of the native ONNX Runtime library.
//
// The ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable wins when set;
// otherwise a conventional per-platform location under third_party/ is
// used.
func SharedLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "third_party/onnxruntime.dll"
	case "darwin":
		return "third_party/libonnxruntime.dylib"
	default:
		if runtime.GOARCH == "arm64" {
			return "third_party/onnxruntime_arm64.so"
		}
		return "third_party/onnxruntime.so"
	}
}
