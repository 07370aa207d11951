package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"audio-isolator/constant"
)

type registerResponse struct {
	MediaID string `json:"media_id"`
}

type isolateRequest struct {
	Prompt string `json:"prompt"`
}

type isolateResponse struct {
	Outputs map[constant.OutputKind]string `json:"outputs"`
}

// httpCapability talks to a remote isolation service over a small JSON API.
type httpCapability struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) Capability {
	return &httpCapability{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpCapability) Register(ctx context.Context, chunkPath string) (string, error) {
	f, err := os.Open(chunkPath)
	if err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media", &body)
	if err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out registerResponse
	if err := c.do(req, &out); err != nil {
		return "", &RegistrationError{Path: chunkPath, Err: err}
	}
	if out.MediaID == "" {
		return "", &RegistrationError{Path: chunkPath, Err: fmt.Errorf("empty media id")}
	}
	return out.MediaID, nil
}

func (c *httpCapability) Transform(ctx context.Context, externalID, prompt, outDir string) (map[constant.OutputKind]string, error) {
	payload, err := json.Marshal(isolateRequest{Prompt: prompt})
	if err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}

	endpoint := fmt.Sprintf("%s/media/%s/isolate", c.baseURL, url.PathEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out isolateResponse
	if err := c.do(req, &out); err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}
	if err := CheckOutputs(externalID, out.Outputs); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, &TransformError{ExternalID: externalID, Err: err}
	}

	files := make(map[constant.OutputKind]string, len(constant.OutputKinds))
	for _, kind := range constant.OutputKinds {
		dst := filepath.Join(outDir, string(kind)+".wav")
		if err := c.download(ctx, out.Outputs[kind], dst); err != nil {
			return nil, &TransformError{ExternalID: externalID, Err: fmt.Errorf("download %s: %w", kind, err)}
		}
		files[kind] = dst
	}
	return files, nil
}

func (c *httpCapability) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// download fetches one result file, retrying transient failures.
func (c *httpCapability) download(ctx context.Context, src, dst string) error {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		src = c.baseURL + "/" + strings.TrimLeft(src, "/")
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := c.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("http %d", resp.StatusCode)
			}
			if resp.StatusCode >= 300 {
				return retry.Unrecoverable(fmt.Errorf("http %d", resp.StatusCode))
			}

			f, err := os.Create(dst)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if _, err := io.Copy(f, resp.Body); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zerolog.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Str("url", src).Msg("retrying result download")
		}),
	)
}
