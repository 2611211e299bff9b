package asr

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

// Client communicates with the speech recognition service
type Client struct {
	httpclient    *http.Client
	transcribeURL string
	timeout       time.Duration
	backoff       func() backoff.BackOff
}

// NewClient creates a recognizer client
func NewClient(transcribeURL string) (*Client, error) {
	res := Client{}
	if transcribeURL == "" {
		return nil, fmt.Errorf("no transcribeURL")
	}
	res.transcribeURL = transcribeURL
	// one clip is short, but the model may need a cold start
	res.timeout = time.Minute * 3
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

type transcribeRequest struct {
	File     string `json:"file"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Transcribe recognizes every clip one by one. The clip audio lives in
// the shared object store, only paths travel over the wire. Empty
// recognition results are kept - the user fixes them during labeling
func (sp *Client) Transcribe(ctx context.Context, clips []papi.ClipData, language string, tick papi.TickFunc) ([]papi.TranscriptData, error) {
	res := make([]papi.TranscriptData, 0, len(clips))
	for i, clip := range clips {
		out, err := sp.transcribeOne(ctx, clip.File, language)
		if err != nil {
			return nil, fmt.Errorf("can't transcribe '%s': %w", clip.File, err)
		}
		res = append(res, papi.TranscriptData{File: clip.File, Text: out.Text,
			Language: out.Language, DurationSecs: clip.DurationSecs})
		if tick != nil {
			tick(papi.Tick{Fraction: float64(i+1) / float64(len(clips))})
		}
	}
	return res, nil
}

func (sp *Client) transcribeOne(ctx context.Context, file, language string) (*transcribeResponse, error) {
	b, err := json.Marshal(transcribeRequest{File: file, Language: language})
	if err != nil {
		return nil, fmt.Errorf("can't marshal input: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (*transcribeResponse, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, sp.transcribeURL, bytes.NewReader(b))
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
		res := &transcribeResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, sp.backoff())
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
