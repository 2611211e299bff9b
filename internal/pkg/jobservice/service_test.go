package jobservice

import (
	"bytes"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vocalalchemy/forge/internal/pkg/api"
	"github.com/vocalalchemy/forge/internal/pkg/messages"
	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	"github.com/vocalalchemy/forge/internal/pkg/status"
	"github.com/vocalalchemy/forge/internal/pkg/synthesizer"
	"github.com/vocalalchemy/forge/internal/pkg/test"
	"github.com/vocalalchemy/forge/internal/pkg/test/mocks"
)

var (
	filerMock  *mocks.Filer
	dbMock     *mocks.DB
	senderMock *mocks.Sender
	synthMock  *mocks.Synthesizer
	tData      *Data
	tEcho      *echo.Echo
)

func initTest(t *testing.T) {
	filerMock = &mocks.Filer{}
	dbMock = &mocks.DB{}
	senderMock = &mocks.Sender{}
	synthMock = &mocks.Synthesizer{}
	tData = &Data{}
	tData.Filer = filerMock
	tData.DB = dbMock
	tData.MsgSender = senderMock
	tData.Synthesizer = synthMock
	tEcho = initRoutes(tData)

	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Labeling), nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	dbMock.On("UpdateFileNames", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	dbMock.On("RequestCancel", mock.Anything, mock.Anything).Return(nil)
	senderMock.On("SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	filerMock.On("SaveFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	filerMock.On("RemovePrefix", mock.Anything, mock.Anything).Return(nil)
}

func testJob(st status.Status) *persistence.Job {
	return &persistence.Job{ID: "1", Name: "olia", Language: "en", Status: st.String(),
		Params: persistence.DefaultParams(), FileNames: []string{"a.wav"}, Created: time.Now()}
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPut, "/jobs", nil)
	test.Code(t, tEcho, req, 405)
}

func Test_Live(t *testing.T) {
	initTest(t)
	dbMock.On("Live", mock.Anything).Return(nil)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	test.Code(t, tEcho, req, 200)
}

func Test_Create(t *testing.T) {
	initTest(t)
	dbMock.On("InsertJob", mock.Anything, mock.Anything).Return(nil)
	req := newJSONRequest(http.MethodPost, "/jobs", `{"name":"olia","language":"en"}`)
	resp := test.Code(t, tEcho, req, http.StatusCreated)
	res := test.Decode[jobData](t, resp.Result())
	assert.Equal(t, "olia", res.Name)
	assert.Equal(t, status.Pending.String(), res.Status)
	assert.NotEmpty(t, res.ID)
	job := dbMock.Calls[0].Arguments[1].(*persistence.Job)
	assert.NotNil(t, job.Params)
	assert.True(t, job.Params.RemoveBGM)
}

func Test_Create_Fails(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "no name", body: `{"language":"en"}`, wantCode: http.StatusBadRequest},
		{name: "no language", body: `{"name":"olia"}`, wantCode: http.StatusBadRequest},
		{name: "bad json", body: `{"name`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := newJSONRequest(http.MethodPost, "/jobs", tt.body)
			test.Code(t, tEcho, req, tt.wantCode)
		})
	}
}

func Test_Create_Duplicate(t *testing.T) {
	initTest(t)
	dbMock.On("InsertJob", mock.Anything, mock.Anything).Return(&api.ErrDuplicate{Name: "olia"})
	req := newJSONRequest(http.MethodPost, "/jobs", `{"name":"olia","language":"en"}`)
	test.Code(t, tEcho, req, http.StatusConflict)
}

func Test_List(t *testing.T) {
	initTest(t)
	dbMock.On("ListJobs", mock.Anything).Return([]*persistence.Job{testJob(status.Labeling)}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]jobData](t, resp.Result())
	assert.Equal(t, 1, len(res))
	assert.Equal(t, "1", res[0].ID)
}

func Test_Get(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/jobs/1", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[jobData](t, resp.Result())
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, status.Labeling.String(), res.Status)
}

func Test_Get_NotFound(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "2").Return(nil, api.NewErrNotFound("job", "2"))
	req := httptest.NewRequest(http.MethodGet, "/jobs/2", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Delete(t *testing.T) {
	initTest(t)
	dbMock.On("DeleteJob", mock.Anything, "1").Return(nil)
	req := httptest.NewRequest(http.MethodDelete, "/jobs/1", nil)
	test.Code(t, tEcho, req, http.StatusNoContent)
	filerMock.AssertCalled(t, "RemovePrefix", mock.Anything, "1/")
}

func Test_Delete_Active(t *testing.T) {
	initTest(t)
	dbMock.On("LoadJob", mock.Anything, "2").Return(&persistence.Job{ID: "2",
		Status: status.TrainingAcoustic.String(), Params: persistence.DefaultParams()}, nil)
	req := httptest.NewRequest(http.MethodDelete, "/jobs/2", nil)
	test.Code(t, tEcho, req, http.StatusConflict)
	dbMock.AssertNotCalled(t, "DeleteJob", mock.Anything, mock.Anything)
}

func Test_Upload(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Pending), nil)
	dbMock.On("UpdateFileNames", mock.Anything, "1", mock.Anything).Return(nil)
	dbMock.On("UpdateStatus", mock.Anything, mock.Anything).Return(nil)
	req := newUploadRequest("file", "b.wav", "olia")
	test.Code(t, tEcho, req, http.StatusOK)
	filerMock.AssertCalled(t, "SaveFile", mock.Anything, "1/raw/b.wav", mock.Anything, mock.Anything)
	job := lastCall(dbMock, "UpdateStatus").Arguments[1].(*persistence.Job)
	assert.Equal(t, status.Uploading.String(), job.Status)
}

func Test_Upload_WrongExt(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Pending), nil)
	req := newUploadRequest("file", "b.txt", "olia")
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_Upload_WrongState(t *testing.T) {
	initTest(t)
	req := newUploadRequest("file", "b.wav", "olia")
	test.Code(t, tEcho, req, http.StatusConflict)
}

func Test_Upload_NoFile(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Pending), nil)
	req := newUploadRequest("file1", "b.wav", "olia")
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_Preprocess(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Uploading), nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/preprocess", nil)
	test.Code(t, tEcho, req, http.StatusAccepted)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything,
		&messages.JobMessage{ID: "1"}, messages.Work, messages.MsgPreprocess)
}

func Test_Preprocess_NoFiles(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	job := testJob(status.Uploading)
	job.FileNames = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(job, nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/preprocess", nil)
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_Preprocess_WrongState(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/preprocess", nil)
	test.Code(t, tEcho, req, http.StatusConflict)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_Segments(t *testing.T) {
	initTest(t)
	dbMock.On("ListSegments", mock.Anything, "1").Return(
		[]*persistence.Segment{{ID: "s1", File: "1/clips/0.wav", Text: "olia", DurationSecs: 2.5}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/1/segments", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]segmentData](t, resp.Result())
	assert.Equal(t, 1, len(res))
	assert.Equal(t, "olia", res[0].Text)
}

func Test_Segment_Update(t *testing.T) {
	initTest(t)
	dbMock.On("UpdateSegment", mock.Anything, "1", "s1", "new text", "en").Return(nil)
	req := newJSONRequest(http.MethodPatch, "/jobs/1/segments/s1", `{"text":"new text","language":"en"}`)
	test.Code(t, tEcho, req, http.StatusNoContent)
}

func Test_Segment_Update_WrongState(t *testing.T) {
	initTest(t)
	dbMock.On("UpdateSegment", mock.Anything, "1", "s1", mock.Anything, mock.Anything).
		Return(api.NewErrWrongState("update segment", status.TrainingAcoustic.String()))
	req := newJSONRequest(http.MethodPatch, "/jobs/1/segments/s1", `{"text":"new"}`)
	test.Code(t, tEcho, req, http.StatusConflict)
}

func Test_Segments_Batch(t *testing.T) {
	initTest(t)
	dbMock.On("BatchUpdateSegments", mock.Anything, "1", mock.Anything).Return(nil)
	req := newJSONRequest(http.MethodPost, "/jobs/1/segments/batch",
		`{"segments":[{"id":"s1","text":"a"},{"id":"s2","text":"b"}]}`)
	test.Code(t, tEcho, req, http.StatusNoContent)
	patches := lastCall(dbMock, "BatchUpdateSegments").Arguments[2].([]*persistence.Segment)
	assert.Equal(t, 2, len(patches))
	assert.Equal(t, "s2", patches[1].ID)
}

func Test_Segments_Batch_Empty(t *testing.T) {
	initTest(t)
	req := newJSONRequest(http.MethodPost, "/jobs/1/segments/batch", `{"segments":[]}`)
	test.Code(t, tEcho, req, http.StatusBadRequest)
}

func Test_Segment_Delete(t *testing.T) {
	initTest(t)
	dbMock.On("DeleteSegment", mock.Anything, "1", "s1").Return(nil)
	req := httptest.NewRequest(http.MethodDelete, "/jobs/1/segments/s1", nil)
	test.Code(t, tEcho, req, http.StatusNoContent)
}

func Test_Audio(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegment", mock.Anything, "1", "s1").Return(
		&persistence.Segment{ID: "s1", File: "1/clips/0.wav"}, nil)
	filerMock.On("LoadFile", mock.Anything, "1/clips/0.wav").Return(&testFileWrap{s: "audio", n: "0.wav"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/1/audio/s1", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "audio", test.RStr(t, resp.Body))
	assert.Equal(t, "attachment; filename=0.wav", resp.Header().Get("Content-Disposition"))
}

func Test_Audio_NoFile(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegment", mock.Anything, "1", "s1").Return(
		&persistence.Segment{ID: "s1", File: "1/clips/0.wav"}, nil)
	filerMock.On("LoadFile", mock.Anything, "1/clips/0.wav").
		Return(nil, minio.ErrorResponse{StatusCode: http.StatusNotFound})
	req := httptest.NewRequest(http.MethodGet, "/jobs/1/audio/s1", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Audio_NoSegment(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegment", mock.Anything, "1", "s2").Return(nil, api.NewErrNotFound("segment", "s2"))
	req := httptest.NewRequest(http.MethodGet, "/jobs/1/audio/s2", nil)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Audio_NoStat(t *testing.T) {
	initTest(t)
	dbMock.On("LoadSegment", mock.Anything, "1", "s1").Return(
		&persistence.Segment{ID: "s1", File: "1/clips/0.wav"}, nil)
	filerMock.On("LoadFile", mock.Anything, "1/clips/0.wav").Return(&testNoStatWrap{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/jobs/1/audio/s1", nil)
	test.Code(t, tEcho, req, http.StatusInternalServerError)
}

func Test_Train(t *testing.T) {
	initTest(t)
	dbMock.On("CommitTraining", mock.Anything, "1", mock.Anything).
		Return(testJob(status.Preparing), true, nil)
	req := newJSONRequest(http.MethodPost, "/jobs/1/train", `{}`)
	test.Code(t, tEcho, req, http.StatusOK)
	senderMock.AssertCalled(t, "SendMessage", mock.Anything,
		&messages.JobMessage{ID: "1"}, messages.Work, messages.MsgTrain)
}

func Test_Train_AlreadyCommitted_Resends(t *testing.T) {
	initTest(t)
	dbMock.On("CommitTraining", mock.Anything, "1", mock.Anything).
		Return(testJob(status.Preparing), false, nil)
	dbMock.On("HasQueuedMessage", mock.Anything, messages.Work, "1").Return(false, nil)
	req := newJSONRequest(http.MethodPost, "/jobs/1/train", `{}`)
	test.Code(t, tEcho, req, http.StatusOK)
	// the first commit's enqueue was lost, the retry repairs it
	senderMock.AssertCalled(t, "SendMessage", mock.Anything,
		&messages.JobMessage{ID: "1"}, messages.Work, messages.MsgTrain)
}

func Test_Train_AlreadyQueued(t *testing.T) {
	initTest(t)
	dbMock.On("CommitTraining", mock.Anything, "1", mock.Anything).
		Return(testJob(status.Preparing), false, nil)
	dbMock.On("HasQueuedMessage", mock.Anything, messages.Work, "1").Return(true, nil)
	req := newJSONRequest(http.MethodPost, "/jobs/1/train", `{}`)
	test.Code(t, tEcho, req, http.StatusOK)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_Train_AlreadyRunning(t *testing.T) {
	initTest(t)
	dbMock.On("CommitTraining", mock.Anything, "1", mock.Anything).
		Return(testJob(status.TrainingAcoustic), false, nil)
	req := newJSONRequest(http.MethodPost, "/jobs/1/train", `{}`)
	test.Code(t, tEcho, req, http.StatusOK)
	dbMock.AssertNotCalled(t, "HasQueuedMessage", mock.Anything, mock.Anything, mock.Anything)
	senderMock.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func Test_Train_Validation(t *testing.T) {
	initTest(t)
	dbMock.On("CommitTraining", mock.Anything, "1", mock.Anything).
		Return(nil, false, &api.ErrValidation{Msg: "empty segments", SegmentIDs: []string{"s1"}})
	req := newJSONRequest(http.MethodPost, "/jobs/1/train", `{}`)
	resp := test.Code(t, tEcho, req, http.StatusBadRequest)
	assert.Contains(t, test.RStr(t, resp.Body), "s1")
}

func Test_Relabel(t *testing.T) {
	initTest(t)
	dbMock.On("ResetToLabeling", mock.Anything, "1").Return(testJob(status.Labeling), nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/relabel", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[jobData](t, resp.Result())
	assert.Equal(t, status.Labeling.String(), res.Status)
}

func Test_Cancel(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/cancel", nil)
	test.Code(t, tEcho, req, http.StatusOK)
	dbMock.AssertCalled(t, "RequestCancel", mock.Anything, "1")
	job := lastCall(dbMock, "UpdateStatus").Arguments[1].(*persistence.Job)
	assert.Equal(t, status.Cancelled.String(), job.Status)
}

func Test_Cancel_Active(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Denoising), nil)
	dbMock.On("RequestCancel", mock.Anything, "1").Return(nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/cancel", nil)
	test.Code(t, tEcho, req, http.StatusOK)
	dbMock.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything)
}

func Test_Cancel_Terminal(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, "1").Return(testJob(status.Completed), nil)
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/cancel", nil)
	test.Code(t, tEcho, req, http.StatusConflict)
}

func Test_Characters(t *testing.T) {
	initTest(t)
	dbMock.On("ListCharacters", mock.Anything).Return([]*persistence.Character{
		{ID: "1", Name: "olia", Language: "en", Created: time.Now()}}, nil)
	req := httptest.NewRequest(http.MethodGet, "/characters", nil)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	res := test.Decode[[]characterData](t, resp.Result())
	assert.Equal(t, 1, len(res))
	assert.Equal(t, "olia", res[0].Name)
}

func Test_Synthesize(t *testing.T) {
	initTest(t)
	dbMock.On("LoadCharacter", mock.Anything, "1").Return(&persistence.Character{ID: "1",
		Name: "olia", Language: "en", AcousticModel: "am.ckpt", ProsodyModel: "pm.pth"}, nil)
	dbMock.On("ListSegments", mock.Anything, "1").Return([]*persistence.Segment{
		{ID: "s1", File: "1/clips/0.wav", Text: "short", DurationSecs: 1},
		{ID: "s2", File: "1/clips/1.wav", Text: "longer one", DurationSecs: 5}}, nil)
	synthMock.On("Synthesize", mock.Anything, mock.Anything).Return([]byte("audio"), "audio/wav", nil)
	req := newJSONRequest(http.MethodPost, "/synthesis", `{"characterId":"1","text":"olia"}`)
	resp := test.Code(t, tEcho, req, http.StatusOK)
	assert.Equal(t, "audio", test.RStr(t, resp.Body))
	assert.Equal(t, "audio/wav", resp.Header().Get(echo.HeaderContentType))
	in := synthMock.Calls[0].Arguments[1].(*synthesizer.Input)
	assert.Equal(t, "1/clips/1.wav", in.RefAudio)
	assert.Equal(t, "longer one", in.RefText)
	assert.Equal(t, "en", in.Language)
}

func Test_Synthesize_NoReference(t *testing.T) {
	initTest(t)
	dbMock.On("LoadCharacter", mock.Anything, "1").Return(&persistence.Character{ID: "1"}, nil)
	dbMock.On("ListSegments", mock.Anything, "1").Return([]*persistence.Segment{
		{ID: "s1", File: "1/clips/0.wav", Text: ""}}, nil)
	req := newJSONRequest(http.MethodPost, "/synthesis", `{"characterId":"1","text":"olia"}`)
	test.Code(t, tEcho, req, http.StatusNotFound)
}

func Test_Synthesize_Fails(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no character", body: `{"text":"olia"}`},
		{name: "no text", body: `{"characterId":"1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := newJSONRequest(http.MethodPost, "/synthesis", tt.body)
			test.Code(t, tEcho, req, http.StatusBadRequest)
		})
	}
}

func Test_validate(t *testing.T) {
	type args struct {
		data *Data
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{data: &Data{Filer: &mocks.Filer{}, DB: &mocks.DB{},
			MsgSender: &mocks.Sender{}, Synthesizer: &mocks.Synthesizer{}}}, wantErr: false},
		{name: "Fail Filer", args: args{data: &Data{DB: &mocks.DB{},
			MsgSender: &mocks.Sender{}, Synthesizer: &mocks.Synthesizer{}}}, wantErr: true},
		{name: "Fail DB", args: args{data: &Data{Filer: &mocks.Filer{},
			MsgSender: &mocks.Sender{}, Synthesizer: &mocks.Synthesizer{}}}, wantErr: true},
		{name: "Fail Sender", args: args{data: &Data{Filer: &mocks.Filer{}, DB: &mocks.DB{},
			Synthesizer: &mocks.Synthesizer{}}}, wantErr: true},
		{name: "Fail Synthesizer", args: args{data: &Data{Filer: &mocks.Filer{}, DB: &mocks.DB{},
			MsgSender: &mocks.Sender{}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.args.data); (err != nil) != tt.wantErr {
				t.Errorf("StartWebServer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func newJSONRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func newUploadRequest(filep, file, bodyText string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile(filep, file)
	_, _ = io.Copy(part, strings.NewReader(bodyText))
	writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/jobs/1/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

func lastCall(m *mocks.DB, method string) *mock.Call {
	var res *mock.Call
	for i := range m.Calls {
		if m.Calls[i].Method == method {
			res = &m.Calls[i]
		}
	}
	return res
}

type testFileWrap struct {
	s string
	n string
}

func (fw *testFileWrap) Read(p []byte) (n int, err error) {
	return strings.NewReader(fw.s).Read(p)
}

func (fw *testFileWrap) Seek(offset int64, whence int) (int64, error) {
	return strings.NewReader(fw.s).Seek(offset, whence)
}

func (fw *testFileWrap) Close() error {
	return nil
}

func (fw *testFileWrap) Stat() (fs.FileInfo, error) {
	return &testStatsWrap{size: int64(len(fw.s)), name: fw.n}, nil
}

type testNoStatWrap struct{}

func (fw *testNoStatWrap) Read(p []byte) (n int, err error)         { return 0, io.EOF }
func (fw *testNoStatWrap) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (fw *testNoStatWrap) Close() error                             { return nil }

type testStatsWrap struct {
	size int64
	name string
}

func (sw *testStatsWrap) IsDir() bool        { return false }
func (sw *testStatsWrap) ModTime() time.Time { return time.Now() }
func (sw *testStatsWrap) Mode() fs.FileMode  { return fs.ModeTemporary }
func (sw *testStatsWrap) Name() string       { return sw.name }
func (sw *testStatsWrap) Size() int64        { return sw.size }
func (sw *testStatsWrap) Sys() any           { return nil }
