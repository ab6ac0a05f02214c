// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"

	"github.com/jllopis/coral-aci-agent/pkg/config"
	"github.com/jllopis/coral-aci-agent/pkg/errors"
	"github.com/jllopis/coral-aci-agent/pkg/llm"
	"github.com/jllopis/coral-aci-agent/pkg/llm/anthropic"
	"github.com/jllopis/coral-aci-agent/pkg/llm/gemini"
	"github.com/jllopis/coral-aci-agent/pkg/llm/openai"
)

// NewProvider builds the chat model named by cfg.
func NewProvider(ctx context.Context, cfg config.ModelConfig) (llm.Provider, llm.ModelRef, error) {
	ref, err := llm.ParseModelRef(cfg.Provider + ":" + cfg.Name)
	if err != nil {
		return nil, llm.ModelRef{}, errors.New(errors.CodeConfig, "invalid model", err)
	}

	switch ref.Provider {
	case "openai":
		return openai.New(
			openai.WithModel(ref.Name),
			openai.WithAPIKey(cfg.APIKey),
			openai.WithBaseURL(cfg.BaseURL),
		), ref, nil
	case "anthropic":
		return anthropic.New(
			anthropic.WithModel(ref.Name),
			anthropic.WithMaxTokens(int64(cfg.MaxTokens)),
			anthropic.WithAPIKey(cfg.APIKey),
			anthropic.WithBaseURL(cfg.BaseURL),
		), ref, nil
	case "gemini":
		p, err := gemini.New(ctx,
			gemini.WithModel(ref.Name),
			gemini.WithAPIKey(cfg.APIKey),
			gemini.WithBaseURL(cfg.BaseURL),
		)
		if err != nil {
			return nil, ref, errors.New(errors.CodeConfig, "gemini provider setup failed", err)
		}
		return p, ref, nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL,
			llm.WithOllamaModel(ref.Name),
			llm.WithOllamaAPIKey(cfg.APIKey),
		), ref, nil
	case "mock":
		return &llm.MockProvider{}, ref, nil
	default:
		return nil, ref, errors.New(errors.CodeConfig, "unsupported model provider "+ref.Provider, nil).
			WithAttribute("provider", ref.Provider)
	}
}
