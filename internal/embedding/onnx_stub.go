//go:build !onnx || !cgo

package embedding

import (
	"context"
	"errors"
)

// ErrONNXUnavailable is returned when the binary was built without ONNX support.
var ErrONNXUnavailable = errors.New("ONNX embedder requires building with -tags onnx and CGO_ENABLED=1")

// ONNXEmbedder is a placeholder when built without the onnx tag.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails without the onnx build tag.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, ErrONNXUnavailable
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrONNXUnavailable
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
