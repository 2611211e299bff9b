package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"

	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
)

// Input describes one synthesis request for a trained character
type Input struct {
	AcousticModel string  `json:"acousticModel"`
	ProsodyModel  string  `json:"prosodyModel"`
	RefAudio      string  `json:"refAudio"`
	RefText       string  `json:"refText"`
	Text          string  `json:"text"`
	Language      string  `json:"language,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
}

// Client proxies synthesis calls to the inference engine
type Client struct {
	httpclient *http.Client
	synthURL   string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a synthesizer client
func NewClient(synthURL string) (*Client, error) {
	res := Client{}
	if synthURL == "" {
		return nil, fmt.Errorf("no synthURL")
	}
	res.synthURL = synthURL
	res.timeout = time.Minute * 2
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

// Synthesize returns the generated audio and its content type
func (sp *Client) Synthesize(ctx context.Context, in *Input) ([]byte, string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, "", fmt.Errorf("can't marshal input: %w", err)
	}
	type synthResult struct {
		audio       []byte
		contentType string
	}
	res, err := goapp.InvokeWithBackoff(ctx, func() (*synthResult, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.synthURL, bytes.NewReader(b))
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), papi.NewErrTransient(fmt.Errorf("can't call: %w", err))
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			if goapp.IsRetryableCode(resp.StatusCode) {
				return nil, true, papi.NewErrTransient(err)
			}
			return nil, false, err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return &synthResult{audio: br, contentType: resp.Header.Get("Content-Type")}, false, nil
	}, sp.backoff())
	if err != nil {
		return nil, "", err
	}
	return res.audio, res.contentType, nil
}

func newTransport() http.RoundTripper {
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
