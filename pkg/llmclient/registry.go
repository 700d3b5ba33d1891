// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llmclient

import (
	"fmt"

	"github.com/llamafarm/llamafarm-core/pkg/config"
)

// NewClient resolves the model's provider to the matching Client
// implementation. openai, lemonade, and universal all speak the classic
// /v1/chat/completions wire shape; ollama speaks JSON-in-text tool calling.
func NewClient(model config.ModelConfig) (Client, error) {
	switch model.Provider {
	case config.ProviderOpenAI, config.ProviderLemonade, config.ProviderUniversal:
		return NewOpenAIClient(model), nil
	case config.ProviderOllama:
		return NewOllamaClient(model), nil
	default:
		return nil, fmt.Errorf("llmclient: unsupported provider %q (supported: %s, %s, %s, %s)",
			model.Provider, config.ProviderOpenAI, config.ProviderOllama, config.ProviderLemonade, config.ProviderUniversal)
	}
}
