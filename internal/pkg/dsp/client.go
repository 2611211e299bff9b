package dsp

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

	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
)

// Client communicates with the audio preprocessing service.
// All operations are task based: a POST starts a task over files in
// the shared object store, then the status endpoint is polled until
// the task finishes. Tasks are overwrite-safe, a restarted stage may
// start the same task again
type Client struct {
	httpclient   *http.Client
	separateURL  string
	denoiseURL   string
	sliceURL     string
	statusURL    string
	timeout      time.Duration
	pollInterval time.Duration
	backoff      func() backoff.BackOff
}

// NewClient creates a preprocessing service client
func NewClient(separateURL, denoiseURL, sliceURL, statusURL string) (*Client, error) {
	res := Client{}
	if separateURL == "" {
		return nil, fmt.Errorf("no separateURL")
	}
	if denoiseURL == "" {
		return nil, fmt.Errorf("no denoiseURL")
	}
	if sliceURL == "" {
		return nil, fmt.Errorf("no sliceURL")
	}
	if statusURL == "" {
		return nil, fmt.Errorf("no statusURL")
	}
	res.separateURL = separateURL
	res.denoiseURL = denoiseURL
	res.sliceURL = sliceURL
	res.statusURL = statusURL
	res.timeout = time.Second * 50
	res.pollInterval = time.Second * 3
	res.httpclient = dspHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

type taskRequest struct {
	ID     string                   `json:"id"`
	Files  []string                 `json:"files"`
	Params *persistence.SliceParams `json:"params,omitempty"`
}

type taskResponse struct {
	TaskID string `json:"taskId"`
}

type statusResponse struct {
	Done     bool            `json:"done"`
	Error    string          `json:"error,omitempty"`
	Progress float64         `json:"progress,omitempty"`
	Files    []string        `json:"files,omitempty"`
	Clips    []papi.ClipData `json:"clips,omitempty"`
}

// SeparateVocals starts vocal/instrumental separation and waits for
// the result. Returns paths of the produced vocal files
func (sp *Client) SeparateVocals(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error) {
	st, err := sp.runTask(ctx, sp.separateURL, &taskRequest{ID: ID, Files: files}, tick)
	if err != nil {
		return nil, err
	}
	return st.Files, nil
}

// Denoise starts denoising and waits for the result
func (sp *Client) Denoise(ctx context.Context, ID string, files []string, tick papi.TickFunc) ([]string, error) {
	st, err := sp.runTask(ctx, sp.denoiseURL, &taskRequest{ID: ID, Files: files}, tick)
	if err != nil {
		return nil, err
	}
	return st.Files, nil
}

// Slice cuts audio into clips on silence and waits for the result
func (sp *Client) Slice(ctx context.Context, ID string, files []string, prm persistence.SliceParams, tick papi.TickFunc) ([]papi.ClipData, error) {
	st, err := sp.runTask(ctx, sp.sliceURL, &taskRequest{ID: ID, Files: files, Params: &prm}, tick)
	if err != nil {
		return nil, err
	}
	return st.Clips, nil
}

func (sp *Client) runTask(ctx context.Context, urlStr string, in *taskRequest, tick papi.TickFunc) (*statusResponse, error) {
	taskID, err := sp.startTask(ctx, urlStr, in)
	if err != nil {
		return nil, fmt.Errorf("can't start task: %w", err)
	}
	goapp.Log.Info().Str("ID", in.ID).Str("taskID", taskID).Msg("task started")
	return sp.waitTask(ctx, taskID, tick)
}

func (sp *Client) startTask(ctx context.Context, urlStr string, in *taskRequest) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("can't marshal input: %w", err)
	}
	return goapp.InvokeWithBackoff(ctx, func() (string, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodPost, urlStr, bytes.NewReader(b))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", "application/json")
		req = req.WithContext(ctx)
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return "", goapp.IsRetryableErr(err), papi.NewErrTransient(fmt.Errorf("can't call: %w", err))
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			if goapp.IsRetryableCode(resp.StatusCode) {
				return "", true, papi.NewErrTransient(err)
			}
			return "", false, err
		}
		var respData taskResponse
		if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
			return "", goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		if respData.TaskID == "" {
			return "", false, fmt.Errorf("can't get taskId from response")
		}
		return respData.TaskID, false, nil
	}, sp.backoff())
}

func (sp *Client) waitTask(ctx context.Context, taskID string, tick papi.TickFunc) (*statusResponse, error) {
	ticker := time.NewTicker(sp.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		st, err := sp.getStatus(ctx, taskID)
		if err != nil {
			return nil, fmt.Errorf("can't get status: %w", err)
		}
		if st.Error != "" {
			// engine reported failure, retry won't help
			return nil, fmt.Errorf("task failed: %s", goapp.Sanitize(st.Error))
		}
		if st.Done {
			return st, nil
		}
		if tick != nil {
			tick(papi.Tick{Fraction: st.Progress})
		}
	}
}

func (sp *Client) getStatus(ctx context.Context, taskID string) (*statusResponse, error) {
	return goapp.InvokeWithBackoff(ctx, func() (*statusResponse, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", sp.statusURL, taskID), nil)
		if err != nil {
			return nil, false, err
		}
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
		res := &statusResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return res, false, nil
	}, sp.backoff())
}

func dspHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
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
