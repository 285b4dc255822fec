package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/process"
)

// Ollama defaults.
const (
	DefaultOllamaCommand = "ollama"
	DefaultOllamaModel   = "codellama:13b-instruct"
	DefaultOllamaTimeout = 180 * time.Second
)

// OllamaClient runs "<command> run <model>" with the prompt on stdin.
type OllamaClient struct {
	runner  process.Runner
	command string
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOllamaClient creates a client. Empty values fall back to the defaults.
func NewOllamaClient(runner process.Runner, command, model string, timeout time.Duration, logger *zap.Logger) *OllamaClient {
	if command == "" {
		command = DefaultOllamaCommand
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = DefaultOllamaTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaClient{runner: runner, command: command, model: model, timeout: timeout, logger: logger}
}

// Complete returns the trimmed stdout of the model run.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info("Running model",
		zap.String("command", c.command),
		zap.String("model", c.model),
		zap.Int("prompt_len", len(prompt)))
	res, err := c.runner.Run(ctx, prompt, c.command, "run", c.model)
	if res != nil && strings.TrimSpace(res.Stderr) != "" {
		c.logger.Warn("Model wrote to stderr", zap.String("stderr", strings.TrimSpace(res.Stderr)))
	}
	if err != nil {
		return "", fmt.Errorf("%s run %s: %w", c.command, c.model, err)
	}
	out := strings.TrimSpace(res.Stdout)
	if out == "" {
		c.logger.Warn("No response from model; check that it is installed and running",
			zap.String("model", c.model))
	}
	return out, nil
}
