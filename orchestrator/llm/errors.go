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
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Gateway error codes.
const (
	// ErrCodeUnknownModel indicates the model key is not registered.
	ErrCodeUnknownModel = "unknown_model"

	// ErrCodeTransportFailure indicates a network or backend failure.
	ErrCodeTransportFailure = "transport_failure"

	// ErrCodeTimeout indicates the backend exceeded the allotted duration.
	ErrCodeTimeout = "timeout"

	// ErrCodeInvalidRequest indicates a malformed call (empty or bad messages).
	ErrCodeInvalidRequest = "invalid_request"

	// ErrCodeRateLimited indicates the call was refused by a rate limiter
	// or by the backend with HTTP 429.
	ErrCodeRateLimited = "rate_limited"
)

// Sentinels for errors.Is matching against *GatewayError.
var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrTransportFailure = errors.New("transport failure")
	ErrTimeout          = errors.New("model call timed out")
	ErrInvalidRequest   = errors.New("invalid model request")
)

// GatewayError is the only error type returned by Gateway.Invoke.
type GatewayError struct {
	// Model is the logical model key of the failed call.
	Model string `json:"model"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// StatusCode is the backend HTTP status code (if applicable).
	StatusCode int `json:"status_code,omitempty"`

	// Retryable indicates if the call can be retried.
	Retryable bool `json:"retryable"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model %s: %s (status %d): %s", e.Model, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("model %s: %s: %s", e.Model, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Is matches the package sentinels by code. Rate limiting counts as a
// transport failure for callers that only distinguish the three kinds.
func (e *GatewayError) Is(target error) bool {
	switch target {
	case ErrUnknownModel:
		return e.Code == ErrCodeUnknownModel
	case ErrTransportFailure:
		return e.Code == ErrCodeTransportFailure || e.Code == ErrCodeRateLimited
	case ErrTimeout:
		return e.Code == ErrCodeTimeout
	case ErrInvalidRequest:
		return e.Code == ErrCodeInvalidRequest
	}
	return false
}

// NewGatewayError creates a GatewayError with the default retry policy for code.
func NewGatewayError(model, code, message string) *GatewayError {
	return &GatewayError{
		Model:     model,
		Code:      code,
		Message:   message,
		Retryable: isRetryableCode(code),
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeTransportFailure, ErrCodeTimeout, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a retryable gateway failure.
func IsRetryable(err error) bool {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return false
}

// StatusError is returned by HTTP backends for non-200 responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// classifyError converts a backend failure into a *GatewayError. ctx is the
// caller's context, used to tell a per-attempt timeout apart from the caller
// giving up.
func classifyError(ctx context.Context, model string, err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		// Copy so a shared error value is never rewritten for another model.
		out := *gwErr
		if out.Model == "" {
			out.Model = model
		}
		return &out
	}

	if parentErr := ctx.Err(); parentErr != nil {
		code := ErrCodeTransportFailure
		if errors.Is(parentErr, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		return &GatewayError{
			Model:   model,
			Code:    code,
			Message: parentErr.Error(),
			Cause:   parentErr,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{
			Model:     model,
			Code:      ErrCodeTimeout,
			Message:   "backend did not respond within the call timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		out := &GatewayError{
			Model:      model,
			Code:       ErrCodeTransportFailure,
			Message:    statusErr.Body,
			StatusCode: statusErr.StatusCode,
			Cause:      err,
		}
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			out.Code = ErrCodeRateLimited
			out.Retryable = true
		case statusErr.StatusCode == http.StatusRequestTimeout || statusErr.StatusCode == http.StatusGatewayTimeout:
			out.Code = ErrCodeTimeout
			out.Retryable = true
		case statusErr.StatusCode >= 500:
			out.Retryable = true
		}
		return out
	}

	// AWS SDK response errors expose the status without a concrete type we
	// want to depend on.
	var awsErr interface{ HTTPStatusCode() int }
	if errors.As(err, &awsErr) && awsErr.HTTPStatusCode() > 0 {
		return classifyError(ctx, model, &StatusError{
			Provider:   "bedrock",
			StatusCode: awsErr.HTTPStatusCode(),
			Body:       err.Error(),
		})
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &GatewayError{Model: model, Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Cause: err}
		}
		return &GatewayError{Model: model, Code: ErrCodeTransportFailure, Message: err.Error(), Retryable: true, Cause: err}
	}

	return &GatewayError{Model: model, Code: ErrCodeTransportFailure, Message: err.Error(), Cause: err}
}
