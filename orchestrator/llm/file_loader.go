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
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gopkg.in/yaml.v3"
)

// RegistryFile is the root of a model registry YAML document.
type RegistryFile struct {
	Version  string                     `yaml:"version"`
	Backends map[string]BackendConfig   `yaml:"backends,omitempty"`
	Models   map[string]ModelFileConfig `yaml:"models,omitempty"`
}

// ModelFileConfig is one model entry in a registry file.
type ModelFileConfig struct {
	Backend        string    `yaml:"backend"`
	Model          string    `yaml:"model"`
	CostClass      CostClass `yaml:"cost_class,omitempty"`
	MaxTokens      int       `yaml:"max_tokens,omitempty"`
	Temperature    float64   `yaml:"temperature,omitempty"`
	TimeoutSeconds int       `yaml:"timeout_seconds,omitempty"`
}

// S3GetObjectAPI is the subset of *s3.Client used to fetch registry files.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ParseRegistryFile expands environment references and decodes data.
func ParseRegistryFile(data []byte) (*RegistryFile, error) {
	expanded := expandEnvVars(string(data))

	var file RegistryFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// LoadRegistryFile reads a registry file from disk.
func LoadRegistryFile(path string) (*RegistryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file %s: %w", path, err)
	}
	return ParseRegistryFile(data)
}

// LoadRegistryFromS3 fetches and parses a registry file from an s3:// URI.
func LoadRegistryFromS3(ctx context.Context, client S3GetObjectAPI, uri string) (*RegistryFile, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	output, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get registry object %s: %w", uri, err)
	}
	defer func() {
		_ = output.Body.Close()
	}()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry object %s: %w", uri, err)
	}
	return ParseRegistryFile(data)
}

// LoadRegistrySource loads from S3 when location starts with s3:// and from
// disk otherwise. newS3 is only called for S3 locations.
func LoadRegistrySource(ctx context.Context, location string, newS3 func(context.Context) (S3GetObjectAPI, error)) (*RegistryFile, error) {
	if !strings.HasPrefix(location, "s3://") {
		return LoadRegistryFile(location)
	}
	client, err := newS3(ctx)
	if err != nil {
		return nil, err
	}
	return LoadRegistryFromS3(ctx, client, location)
}

// NewS3Client builds an S3 client from the default AWS configuration.
func NewS3Client(ctx context.Context, opts AWSOptions) (*s3.Client, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid S3 URI %q: missing s3:// prefix", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI %q: expected s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// Validate checks the structure of the file.
func (f *RegistryFile) Validate() error {
	if f.Version == "" {
		return fmt.Errorf("registry file must specify a version")
	}
	for name, b := range f.Backends {
		if !b.Type.IsValid() {
			return fmt.Errorf("backend '%s' has invalid type '%s'", name, b.Type)
		}
	}
	for key, m := range f.Models {
		if m.Backend == "" {
			return fmt.Errorf("model '%s' must specify a backend", key)
		}
		if m.Model == "" {
			return fmt.Errorf("model '%s' must specify a model id", key)
		}
		if m.CostClass != "" && !m.CostClass.IsValid() {
			return fmt.Errorf("model '%s' has invalid cost class '%s'", key, m.CostClass)
		}
	}
	return nil
}

// BackendList returns the backends with Name populated, ordered by name.
func (f *RegistryFile) BackendList() []BackendConfig {
	out := make([]BackendConfig, 0, len(f.Backends))
	for name, b := range f.Backends {
		b.Name = name
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Specs returns the models as ModelSpecs, ordered by key.
func (f *RegistryFile) Specs() []ModelSpec {
	out := make([]ModelSpec, 0, len(f.Models))
	for key, m := range f.Models {
		out = append(out, ModelSpec{
			Key:         key,
			Backend:     m.Backend,
			ModelID:     m.Model,
			CostClass:   m.CostClass,
			MaxTokens:   m.MaxTokens,
			Temperature: m.Temperature,
			Timeout:     time.Duration(m.TimeoutSeconds) * time.Second,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands ${VAR}, ${VAR:-default} and $VAR references.
// Undefined variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
