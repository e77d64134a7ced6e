// Copyright 2025 AxonFlow
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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// BedrockDefaultRegion is used when a bedrock backend leaves Region unset.
const BedrockDefaultRegion = "us-east-1"

// BedrockInvoker is the subset of *bedrockruntime.Client used by BedrockProvider.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider serves models through AWS Bedrock InvokeModel, signed with
// the default AWS credential chain.
type BedrockProvider struct {
	name   string
	region string
	client BedrockInvoker
}

// NewBedrockProvider loads the AWS configuration for cfg.Region and builds a
// Bedrock runtime client.
func NewBedrockProvider(ctx context.Context, cfg BackendConfig) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = BedrockDefaultRegion
	}

	awsCfg, err := LoadAWSConfig(ctx, AWSOptions{
		Region:          region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for Bedrock (region: %s): %w", region, err)
	}

	return NewBedrockProviderWithClient(cfg.Name, region, bedrockruntime.NewFromConfig(awsCfg)), nil
}

// NewBedrockProviderWithClient wraps an existing invoker.
func NewBedrockProviderWithClient(name, region string, client BedrockInvoker) *BedrockProvider {
	if name == "" {
		name = string(ProviderTypeBedrock)
	}
	return &BedrockProvider{name: name, region: region, client: client}
}

// Name returns the backend instance name.
func (p *BedrockProvider) Name() string {
	return p.name
}

// Type returns the backend type.
func (p *BedrockProvider) Type() ProviderType {
	return ProviderTypeBedrock
}

// Chat invokes the Bedrock model named by req.Model.
func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	family := detectBedrockModelFamily(req.Model)
	body, err := buildBedrockBody(family, req)
	if err != nil {
		return nil, err
	}

	requestJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	resp, err := parseBedrockBody(family, output.Body)
	if err != nil {
		return nil, err
	}
	resp.Model = req.Model
	resp.Latency = time.Since(start)
	return resp, nil
}

func buildBedrockBody(family string, req ChatRequest) (map[string]interface{}, error) {
	switch family {
	case "anthropic":
		system, turns := splitSystem(req.Messages)
		messages := make([]map[string]string, 0, len(turns))
		for _, m := range turns {
			messages = append(messages, map[string]string{"role": string(m.Role), "content": m.Content})
		}
		body := map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        req.MaxTokens,
			"temperature":       req.Temperature,
			"messages":          messages,
		}
		if system != "" {
			body["system"] = system
		}
		return body, nil
	case "meta":
		return map[string]interface{}{
			"prompt":      flattenPrompt(req.Messages),
			"max_gen_len": req.MaxTokens,
			"temperature": req.Temperature,
		}, nil
	case "mistral":
		return map[string]interface{}{
			"prompt":      "<s>[INST] " + flattenPrompt(req.Messages) + " [/INST]",
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported bedrock model family for %q", req.Model)
	}
}

func parseBedrockBody(family string, body []byte) (*ChatResponse, error) {
	switch family {
	case "anthropic":
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			StopReason string `json:"stop_reason"`
			Usage      struct {
				InputTokens  int `json:"input_tokens"`
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		var sb strings.Builder
		for _, block := range resp.Content {
			if block.Type == "" || block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		return &ChatResponse{
			Content:      sb.String(),
			FinishReason: resp.StopReason,
			Usage: UsageStats{
				PromptTokens:     resp.Usage.InputTokens,
				CompletionTokens: resp.Usage.OutputTokens,
				TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
		}, nil
	case "meta":
		var resp struct {
			Generation       string `json:"generation"`
			PromptTokenCount int    `json:"prompt_token_count"`
			GenTokenCount    int    `json:"generation_token_count"`
			StopReason       string `json:"stop_reason"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return &ChatResponse{
			Content:      resp.Generation,
			FinishReason: resp.StopReason,
			Usage: UsageStats{
				PromptTokens:     resp.PromptTokenCount,
				CompletionTokens: resp.GenTokenCount,
				TotalTokens:      resp.PromptTokenCount + resp.GenTokenCount,
			},
		}, nil
	case "mistral":
		var resp struct {
			Outputs []struct {
				Text       string `json:"text"`
				StopReason string `json:"stop_reason"`
			} `json:"outputs"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(resp.Outputs) == 0 {
			return &ChatResponse{}, nil
		}
		return &ChatResponse{Content: resp.Outputs[0].Text, FinishReason: resp.Outputs[0].StopReason}, nil
	default:
		return nil, fmt.Errorf("unsupported bedrock model family %q", family)
	}
}

// splitSystem lifts system turns out of the conversation, joined in order.
func splitSystem(messages []ChatMessage) (string, []ChatMessage) {
	var system []string
	turns := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n\n"), turns
}

// flattenPrompt renders a conversation for text-completion model families.
func flattenPrompt(messages []ChatMessage) string {
	if len(messages) == 1 && messages[0].Role == RoleUser {
		return messages[0].Content
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		default:
			parts = append(parts, "User: "+m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// inferenceProfilePrefixes are the known Bedrock inference profile prefixes.
var inferenceProfilePrefixes = map[string]bool{"eu": true, "us": true, "apac": true, "global": true}

var supportedBedrockFamilies = map[string]bool{"anthropic": true, "meta": true, "mistral": true}

// detectBedrockModelFamily returns the model family from a model ID such as
// "anthropic.claude-3-5-sonnet-20240620-v1:0" or the inference profile form
// "us.anthropic.claude-...". Unsupported families return "".
func detectBedrockModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}
	family := segments[0]
	if inferenceProfilePrefixes[family] {
		family = segments[1]
	}
	if supportedBedrockFamilies[family] {
		return family
	}
	return ""
}

var _ Provider = (*BedrockProvider)(nil)
