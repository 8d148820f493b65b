//go:build windows

package main

import "log/slog"

func initOnnxRuntime(dylib string) func() {
	slog.Warn("onnx models are not supported on windows, only other registered model types can be served")
	return func() {}
}
