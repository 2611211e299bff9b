package trainer

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
	tapi "github.com/vocalalchemy/forge/internal/pkg/trainer/api"
)

const (
	modelAcoustic = "acoustic"
	modelProsody  = "prosody"
)

// Client communicates with one training engine instance
type Client struct {
	httpclient   *http.Client
	featuresURL  string
	trainURL     string
	statusURL    string
	timeout      time.Duration
	pollInterval time.Duration
	backoff      func() backoff.BackOff
}

// NewClient creates a training engine client
func NewClient(featuresURL, trainURL, statusURL string) (*Client, error) {
	res := Client{}
	if featuresURL == "" {
		return nil, fmt.Errorf("no featuresURL")
	}
	if trainURL == "" {
		return nil, fmt.Errorf("no trainURL")
	}
	if statusURL == "" {
		return nil, fmt.Errorf("no statusURL")
	}
	res.featuresURL = featuresURL
	res.trainURL = trainURL
	res.statusURL = statusURL
	res.timeout = time.Second * 50
	res.pollInterval = time.Second * 5
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

type featuresRequest struct {
	ID       string             `json:"id"`
	Segments []tapi.SegmentData `json:"segments"`
}

type trainRequest struct {
	ID     string           `json:"id"`
	Model  string           `json:"model"`
	Config tapi.TrainConfig `json:"config"`
}

type taskResponse struct {
	TaskID string `json:"taskId"`
}

type statusResponse struct {
	Done     bool    `json:"done"`
	Error    string  `json:"error,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Step     string  `json:"step,omitempty"`
	Model    string  `json:"model,omitempty"`
}

// ExtractFeatures prepares the engine side dataset: text tokens,
// hubert features, semantic tokens. Must finish before training starts
func (sp *Client) ExtractFeatures(ctx context.Context, ID string, segments []tapi.SegmentData, tick papi.TickFunc) error {
	taskID, err := sp.startTask(ctx, sp.featuresURL, &featuresRequest{ID: ID, Segments: segments})
	if err != nil {
		return fmt.Errorf("can't start feature extraction: %w", err)
	}
	_, err = sp.waitTask(ctx, taskID, tick)
	return err
}

// TrainAcoustic trains the acoustic model, returns the engine side
// path of the produced weights
func (sp *Client) TrainAcoustic(ctx context.Context, ID string, cfg tapi.TrainConfig, tick papi.TickFunc) (string, error) {
	return sp.train(ctx, ID, modelAcoustic, cfg, tick)
}

// TrainProsody trains the prosody model, returns the engine side
// path of the produced weights
func (sp *Client) TrainProsody(ctx context.Context, ID string, cfg tapi.TrainConfig, tick papi.TickFunc) (string, error) {
	return sp.train(ctx, ID, modelProsody, cfg, tick)
}

func (sp *Client) train(ctx context.Context, ID, model string, cfg tapi.TrainConfig, tick papi.TickFunc) (string, error) {
	taskID, err := sp.startTask(ctx, sp.trainURL, &trainRequest{ID: ID, Model: model, Config: cfg})
	if err != nil {
		return "", fmt.Errorf("can't start %s training: %w", model, err)
	}
	goapp.Log.Info().Str("ID", ID).Str("model", model).Str("taskID", taskID).Msg("training started")
	st, err := sp.waitTask(ctx, taskID, tick)
	if err != nil {
		return "", err
	}
	if st.Model == "" {
		return "", fmt.Errorf("no model in %s training response", model)
	}
	return st.Model, nil
}

func (sp *Client) startTask(ctx context.Context, urlStr string, in interface{}) (string, error) {
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
			return nil, fmt.Errorf("task failed: %s", goapp.Sanitize(st.Error))
		}
		if st.Done {
			return st, nil
		}
		if tick != nil {
			tick(papi.Tick{Fraction: st.Progress, Step: st.Step})
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
