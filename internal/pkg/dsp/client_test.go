package dsp

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

	"github.com/vocalalchemy/forge/internal/pkg/persistence"
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
	api.separateURL = server.URL + "/separate"
	api.denoiseURL = server.URL + "/denoise"
	api.sliceURL = server.URL + "/slice"
	api.statusURL = server.URL + "/status"
	api.timeout = time.Second * 5
	api.pollInterval = time.Millisecond * 10
	api.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	t.Cleanup(func() { server.Close() })
	return &api, &resRequest
}

func testCalled(t *testing.T, URL string, tReq []testReq) {
	t.Helper()
	assert.GreaterOrEqual(t, len(tReq), 1)
	str := ""
	for _, r := range tReq {
		str = r.URL
		if str == URL {
			return
		}
	}
	assert.Equal(t, URL, str)
}

func TestSeparateVocals(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/separate":  newTestR(200, `{"taskId":"t1"}`),
		"/status/t1": newTestR(200, `{"done":true,"files":["1/vocals/a.wav"]}`)})

	r, err := client.SeparateVocals(test.Ctx(t), "1", []string{"1/raw/a.wav"}, nil)

	assert.Nil(t, err)
	assert.Equal(t, []string{"1/vocals/a.wav"}, r)
	testCalled(t, "/separate", *tReq)
	testCalled(t, "/status/t1", *tReq)
	assert.Contains(t, (*tReq)[0].body, "1/raw/a.wav")
}

func TestDenoise(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/denoise":   newTestR(200, `{"taskId":"t2"}`),
		"/status/t2": newTestR(200, `{"done":true,"files":["1/denoised/a.wav"]}`)})

	r, err := client.Denoise(test.Ctx(t), "1", []string{"1/vocals/a.wav"}, nil)

	assert.Nil(t, err)
	assert.Equal(t, []string{"1/denoised/a.wav"}, r)
	testCalled(t, "/denoise", *tReq)
}

func TestSlice(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{
		"/slice":     newTestR(200, `{"taskId":"t3"}`),
		"/status/t3": newTestR(200, `{"done":true,"clips":[{"file":"1/clips/0.wav","durationSecs":4.2}]}`)})

	r, err := client.Slice(test.Ctx(t), "1", []string{"1/denoised/a.wav"},
		persistence.SliceParams{ThresholdDB: -40, MinLengthMs: 4000}, nil)

	assert.Nil(t, err)
	require.Equal(t, 1, len(r))
	assert.Equal(t, "1/clips/0.wav", r[0].File)
	assert.Equal(t, 4.2, r[0].DurationSecs)
	assert.Contains(t, (*tReq)[0].body, `"thresholdDb":-40`)
}

func TestTask_EngineError_Fails(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{
		"/separate":  newTestR(200, `{"taskId":"t1"}`),
		"/status/t1": newTestR(200, `{"error":"olia"}`)})

	_, err := client.SeparateVocals(test.Ctx(t), "1", []string{"a"}, nil)

	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "task failed")
	assert.False(t, papi.IsTransient(err))
}

func TestTask_Progress_Ticks(t *testing.T) {
	calls := 0
	var lock sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		if req.URL.String() == "/separate" {
			_, _ = rw.Write([]byte(`{"taskId":"t1"}`))
			return
		}
		calls++
		if calls < 3 {
			_, _ = rw.Write([]byte(`{"progress":0.5}`))
			return
		}
		_, _ = rw.Write([]byte(`{"done":true,"files":["f"]}`))
	}))
	defer server.Close()
	client, _ := initTestServer(t, nil)
	client.separateURL = server.URL + "/separate"
	client.statusURL = server.URL + "/status"
	client.httpclient = server.Client()

	ticks := []papi.Tick{}
	_, err := client.SeparateVocals(test.Ctx(t), "1", []string{"a"}, func(tc papi.Tick) { ticks = append(ticks, tc) })

	assert.Nil(t, err)
	require.Equal(t, 2, len(ticks))
	assert.Equal(t, 0.5, ticks[0].Fraction)
}

func TestTask_RetryableCode_Transient(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{"/separate": newTestR(http.StatusServiceUnavailable, "")})

	_, err := client.SeparateVocals(test.Ctx(t), "1", []string{"a"}, nil)

	assert.NotNil(t, err)
	assert.True(t, papi.IsTransient(err))
}

func TestTask_WrongCode_Fails(t *testing.T) {
	client, tReq := initTestServer(t, map[string]testResp{"/separate": newTestR(http.StatusBadRequest, "")})

	_, err := client.SeparateVocals(test.Ctx(t), "1", []string{"a"}, nil)

	assert.NotNil(t, err)
	assert.False(t, papi.IsTransient(err))
	assert.Equal(t, 1, len(*tReq))
}

func TestTask_NoTaskID_Fails(t *testing.T) {
	client, _ := initTestServer(t, map[string]testResp{"/separate": newTestR(200, `{}`)})

	_, err := client.SeparateVocals(test.Ctx(t), "1", []string{"a"}, nil)

	assert.NotNil(t, err)
}

func TestNewClient(t *testing.T) {
	type args struct {
		separateURL, denoiseURL, sliceURL, statusURL string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{separateURL: "http://olia", denoiseURL: "http://olia", sliceURL: "http://olia", statusURL: "http://olia"}, wantErr: false},
		{name: "No separate", args: args{denoiseURL: "http://olia", sliceURL: "http://olia", statusURL: "http://olia"}, wantErr: true},
		{name: "No denoise", args: args{separateURL: "http://olia", sliceURL: "http://olia", statusURL: "http://olia"}, wantErr: true},
		{name: "No slice", args: args{separateURL: "http://olia", denoiseURL: "http://olia", statusURL: "http://olia"}, wantErr: true},
		{name: "No status", args: args{separateURL: "http://olia", denoiseURL: "http://olia", sliceURL: "http://olia"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.args.separateURL, tt.args.denoiseURL, tt.args.sliceURL, tt.args.statusURL)
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
