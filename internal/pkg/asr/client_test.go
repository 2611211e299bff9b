package asr

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	papi "github.com/vocalalchemy/forge/internal/pkg/pipeline/api"
	"github.com/vocalalchemy/forge/internal/pkg/test"
)

type testResp struct {
	code int
	resp string
}

type testReq struct {
	body string
	URL  string
}

func newTestR(code int, resp string) testResp {
	return testResp{code: code, resp: resp}
}

func newTestReq(req *http.Request) testReq {
	b, _ := io.ReadAll(req.Body)
	return testReq{URL: req.URL.String(), body: string(b)}
}

func initTestServer(t *testing.T, rData map[string]testResp) (*Client, *[]testReq) {
	t.Helper()
	resRequest := make([]testReq, 0)
	rLock := &sync.Mutex{}
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		rLock.Lock()
		defer rLock.Unlock()
		resRequest = append(resRequest, newTestReq(req))
		resp, f := rData[req.URL.String()]
		if f {
			rw.WriteHeader(resp.code)
			_, _ = rw.Write([]byte(resp.resp))
		} else {
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	api := Client{}
	api.httpclient = server.Client()
	api.transcribeURL = server.URL + "/transcribe"
	api.timeout = time.Second * 5
	api.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &api, &resRequest
}

func TestTranscribe(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(200, `{"text":"olia","language":"en"}`)})

	clips := []papi.ClipData{{File: "1/clips/0.wav", DurationSecs: 3.5}, {File: "1/clips/1.wav", DurationSecs: 5}}
	r, err := client.Transcribe(test.Ctx(t), clips, "en", nil)

	assert.Nil(t, err)
	require.Equal(t, 2, len(r))
	assert.Equal(t, "1/clips/0.wav", r[0].File)
	assert.Equal(t, "olia", r[0].Text)
	assert.Equal(t, "en", r[0].Language)
	assert.Equal(t, 3.5, r[0].DurationSecs)
	require.Equal(t, 2, len(*tReq))
	assert.Contains(t, (*tReq)[0].body, "1/clips/0.wav")
	assert.Contains(t, (*tReq)[1].body, "1/clips/1.wav")
	assert.Contains(t, (*tReq)[0].body, `"language":"en"`)
}

func TestTranscribe_Ticks(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(200, `{"text":"olia"}`)})

	ticks := []papi.Tick{}
	clips := []papi.ClipData{{File: "a"}, {File: "b"}}
	_, err := client.Transcribe(test.Ctx(t), clips, "", func(tc papi.Tick) { ticks = append(ticks, tc) })

	assert.Nil(t, err)
	require.Equal(t, 2, len(ticks))
	assert.Equal(t, 0.5, ticks[0].Fraction)
	assert.Equal(t, 1.0, ticks[1].Fraction)
}

func TestTranscribe_EmptyTextKept(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(200, `{"text":""}`)})

	r, err := client.Transcribe(test.Ctx(t), []papi.ClipData{{File: "a"}}, "", nil)

	assert.Nil(t, err)
	require.Equal(t, 1, len(r))
	assert.Equal(t, "", r[0].Text)
}

func TestTranscribe_WrongCode_Fails(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(http.StatusBadRequest, "")})

	_, err := client.Transcribe(test.Ctx(t), []papi.ClipData{{File: "a"}}, "", nil)

	assert.NotNil(t, err)
	assert.False(t, papi.IsTransient(err))
	assert.Equal(t, 1, len(*tReq))
}

func TestTranscribe_RetryableCode_Transient(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(http.StatusServiceUnavailable, "")})

	_, err := client.Transcribe(test.Ctx(t), []papi.ClipData{{File: "a"}}, "", nil)

	assert.NotNil(t, err)
	assert.True(t, papi.IsTransient(err))
}

func TestTranscribe_Backoff(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(http.StatusTooManyRequests, "")})
	client.backoff = newSimpleBackoffForTest

	_, err := client.Transcribe(test.Ctx(t), []papi.ClipData{{File: "a"}}, "", nil)

	assert.NotNil(t, err)
	assert.Equal(t, 4, len(*tReq))
}

func TestTranscribe_NoBackoff_OnWrongCode(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/transcribe": newTestR(http.StatusBadRequest, "")})
	client.backoff = newSimpleBackoffForTest

	_, err := client.Transcribe(test.Ctx(t), []papi.ClipData{{File: "a"}}, "", nil)

	assert.NotNil(t, err)
	assert.Equal(t, 1, len(*tReq))
}

func newSimpleBackoffForTest() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	res.InitialInterval = time.Millisecond
	return backoff.WithMaxRetries(res, 3)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "OK", url: "http://olia", wantErr: false},
		{name: "Fail", url: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Errorf("NewClient() = nil, want object")
			}
		})
	}
}
