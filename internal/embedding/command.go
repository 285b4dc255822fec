package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/process"
)

var floatSeparators = regexp.MustCompile(`[,\s]+`)

// CommandEmbedder pipes text into an external command (by default
// `ollama embed <model>`) and parses the vector it prints.
type CommandEmbedder struct {
	runner     process.Runner
	command    string
	args       []string
	dimensions atomic.Int64
	logger     *zap.Logger
}

// NewCommandEmbedder returns an embedder running command with args.
func NewCommandEmbedder(runner process.Runner, command string, args []string, logger *zap.Logger) *CommandEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandEmbedder{
		runner:  runner,
		command: command,
		args:    args,
		logger:  logger,
	}
}

// Embed runs the command with text on stdin.
func (e *CommandEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.runner.Run(ctx, text, e.command, e.args...)
	if err != nil {
		if res != nil && res.Stderr != "" {
			e.logger.Debug("Embedding command stderr", zap.String("stderr", strings.TrimSpace(res.Stderr)))
		}
		return nil, fmt.Errorf("embedding command: %w", err)
	}
	vec, err := ParseVector(res.Stdout)
	if err != nil {
		return nil, err
	}
	e.dimensions.CompareAndSwap(0, int64(len(vec)))
	return vec, nil
}

// Dimensions returns the length of the first vector produced, or 0.
func (e *CommandEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// Close is a no-op.
func (e *CommandEmbedder) Close() error {
	return nil
}

// ParseVector reads a JSON array of numbers, or failing that a list of
// numbers separated by commas or whitespace.
func ParseVector(out string) ([]float32, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, fmt.Errorf("empty embedding output")
	}
	var arr []float32
	if err := json.Unmarshal([]byte(out), &arr); err == nil {
		if len(arr) == 0 {
			return nil, fmt.Errorf("empty embedding array")
		}
		return arr, nil
	}
	parts := floatSeparators.Split(strings.Trim(out, "[]"), -1)
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("parse embedding value %q: %w", p, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("no embedding values in output")
	}
	return vec, nil
}
