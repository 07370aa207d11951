package capability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"audio-isolator/constant"
)

// Fake is an in-process Capability. Register remembers the chunk file and
// Transform copies it to every output kind. Hooks inject failures.
type Fake struct {
	mu     sync.Mutex
	media  map[string]string
	prompt map[string]string

	OnRegister  func(chunkPath string) error
	OnTransform func(externalID, prompt string) error
}

func NewFake() *Fake {
	return &Fake{
		media:  map[string]string{},
		prompt: map[string]string{},
	}
}

func (f *Fake) Register(ctx context.Context, chunkPath string) (string, error) {
	if f.OnRegister != nil {
		if err := f.OnRegister(chunkPath); err != nil {
			return "", &RegistrationError{Path: chunkPath, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	if _, err := os.Stat(chunkPath); err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}

	id := uuid.NewString()
	f.mu.Lock()
	f.media[id] = chunkPath
	f.mu.Unlock()
	return id, nil
}

func (f *Fake) Transform(ctx context.Context, externalID, prompt, outDir string) (map[constant.OutputKind]string, error) {
	if f.OnTransform != nil {
		if err := f.OnTransform(externalID, prompt); err != nil {
			return nil, &TransformError{ExternalID: externalID, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}

	f.mu.Lock()
	src, ok := f.media[externalID]
	f.prompt[externalID] = prompt
	f.mu.Unlock()
	if !ok {
		return nil, &TransformError{ExternalID: externalID, Err: fmt.Errorf("unknown media")}
	}

	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}
	outputs := make(map[constant.OutputKind]string, len(constant.OutputKinds))
	for _, kind := range constant.OutputKinds {
		dst := filepath.Join(outDir, string(kind)+filepath.Ext(src))
		if err := copyFile(src, dst); err != nil {
			return nil, &TransformError{ExternalID: externalID, Err: err}
		}
		outputs[kind] = dst
	}
	return outputs, nil
}

// Source returns the chunk path registered under externalID.
func (f *Fake) Source(externalID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.media[externalID]
	return p, ok
}

// Prompt returns the last prompt sent for externalID.
func (f *Fake) Prompt(externalID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompt[externalID]
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
