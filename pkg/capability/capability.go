// Package capability defines the external processing service that registers
// audio chunks and runs prompt-driven isolation on them.
package capability

import (
	"context"
	"fmt"

	"audio-isolator/constant"
)

type Capability interface {
	// Register uploads a chunk file and returns the remote reference id.
	Register(ctx context.Context, chunkPath string) (string, error)
	// Transform runs the prompt on a registered chunk and writes the resulting
	// files into outDir, returning one path per output kind.
	Transform(ctx context.Context, externalID, prompt, outDir string) (map[constant.OutputKind]string, error)
}

type RegistrationError struct {
	Path string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s: %v", e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

type TransformError struct {
	ExternalID string
	Err        error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.ExternalID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// CheckOutputs verifies every expected output kind is present.
func CheckOutputs(externalID string, outputs map[constant.OutputKind]string) error {
	for _, kind := range constant.OutputKinds {
		if outputs[kind] == "" {
			return &TransformError{ExternalID: externalID, Err: fmt.Errorf("missing %s output", kind)}
		}
	}
	return nil
}
