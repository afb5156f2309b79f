/*
Copyright 2025 Vidigest Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package errkind

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Transient covers rate limits, timeouts and transient network failures.
	// Retried at the call site; exhausting retries escalates to stage-level
	// fallback or message-level dead-lettering.
	Transient Kind = "TRANSIENT"
	// PermanentContent marks content the source reports as permanently
	// inaccessible. Never retried.
	PermanentContent Kind = "PERMANENT_CONTENT"
	// TemporaryContent marks content the source reports as temporarily
	// gated. The item stays eligible for a future run.
	TemporaryContent Kind = "TEMPORARY_CONTENT"
	// Config marks a misconfigured channel. Fatal for that channel only.
	Config Kind = "CONFIG"
	// InvalidRequest marks a request the gateway rejected as malformed.
	// Retrying cannot help.
	InvalidRequest Kind = "INVALID_REQUEST"
	// Delivery marks a failed delivery attempt, retried by the queue.
	Delivery Kind = "DELIVERY"
)

// PipelineError is a classified pipeline failure. The kind decides the
// recovery action at the narrowest scope able to make that decision.
type PipelineError struct {
	Kind    Kind        `json:"kind"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func New(kind Kind, message string, details interface{}) PipelineError {
	return PipelineError{
		Kind:    kind,
		Message: message,
		Details: details,
	}
}

func Newf(kind Kind, format string, args ...interface{}) PipelineError {
	return PipelineError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Classify returns the kind of err, or Transient when err carries no
// classification. Unknown failures are treated as retryable so nothing is
// dropped on the floor by default.
func Classify(err error) Kind {
	var perr PipelineError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return Transient
}

// Is reports whether err is a PipelineError of the given kind.
func Is(err error, kind Kind) bool {
	var perr PipelineError
	return errors.As(err, &perr) && perr.Kind == kind
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}
