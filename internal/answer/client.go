package answer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/codeindex/internal/models"
	"github.com/hyperjump/codeindex/pkg/utils"
)

// ErrNoModel is returned when no language model is configured.
var ErrNoModel = errors.New("no language model configured")

// Client sends a prompt to a language model and returns its reply.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service builds prompts and asks the configured model.
type Service struct {
	client Client
	logger *zap.Logger
}

// NewService creates a service. client may be nil, in which case every call fails with ErrNoModel.
func NewService(client Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, logger: logger}
}

// Enabled reports whether a model is configured.
func (s *Service) Enabled() bool { return s.client != nil }

// Answer asks the model question with snippets as context.
func (s *Service) Answer(ctx context.Context, question string, snippets []*models.CodeSnippet) (string, error) {
	if s.client == nil {
		return "", ErrNoModel
	}
	prompt := BuildPrompt(question, snippets)
	s.logger.Debug("Prompt built",
		zap.Int("snippets", len(snippets)),
		zap.Int("prompt_len", len(prompt)),
		zap.String("prompt", utils.Truncate(prompt, 1000)))
	reply, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("answer: %w", err)
	}
	return reply, nil
}

// Classify asks the model whether question needs source code to answer.
func (s *Service) Classify(ctx context.Context, question string) (bool, error) {
	if s.client == nil {
		return false, ErrNoModel
	}
	reply, err := s.client.Complete(ctx, ClassifierPrompt(question))
	if err != nil {
		return false, fmt.Errorf("classify: %w", err)
	}
	needsCode := ParseClassification(reply, question)
	s.logger.Info("Question classified", zap.Bool("code", needsCode), zap.String("reply", utils.Truncate(reply, 80)))
	return needsCode, nil
}
