package onnx

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name     string
	Shape    string
	DataType string
}

// Describe lists the inputs and outputs declared by the model at path
// without creating a session.
func Describe(path, sharedLibraryPath string) (inputs, outputs []TensorInfo, err error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("onnx: %w", err)
	}
	if sharedLibraryPath == "" {
		sharedLibraryPath = os.Getenv(SharedLibraryEnv)
	}
	if err := acquireEnvironment(sharedLibraryPath); err != nil {
		return nil, nil, err
	}
	defer func() {
		if rerr := releaseEnvironment(); err == nil {
			err = rerr
		}
	}()

	in, out, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("onnx: read %s: %w", path, err)
	}
	return tensorInfos(in), tensorInfos(out), nil
}

func tensorInfos(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(infos))
	for i, info := range infos {
		out[i] = TensorInfo{
			Name:     info.Name,
			Shape:    fmt.Sprintf("%v", info.Dimensions),
			DataType: fmt.Sprintf("%v", info.DataType),
		}
	}
	return out
}
