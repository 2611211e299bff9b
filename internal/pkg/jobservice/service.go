package jobservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/vocalalchemy/forge/internal/pkg/api"
	"github.com/vocalalchemy/forge/internal/pkg/messages"
	"github.com/vocalalchemy/forge/internal/pkg/persistence"
	"github.com/vocalalchemy/forge/internal/pkg/status"
	"github.com/vocalalchemy/forge/internal/pkg/synthesizer"
	"github.com/vocalalchemy/forge/internal/pkg/utils"
)

// Filer provides file storage functionality
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	RemovePrefix(ctx context.Context, prefix string) error
}

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(ctx context.Context, msg interface{}, queue, msgType string) error
}

// DB provides job persistence functionality
type DB interface {
	InsertJob(ctx context.Context, job *persistence.Job) error
	LoadJob(ctx context.Context, id string) (*persistence.Job, error)
	ListJobs(ctx context.Context) ([]*persistence.Job, error)
	UpdateStatus(ctx context.Context, job *persistence.Job) error
	UpdateFileNames(ctx context.Context, id string, fileNames []string) error
	RequestCancel(ctx context.Context, id string) error
	DeleteJob(ctx context.Context, id string) error
	ListSegments(ctx context.Context, jobID string) ([]*persistence.Segment, error)
	LoadSegment(ctx context.Context, jobID, segmentID string) (*persistence.Segment, error)
	UpdateSegment(ctx context.Context, jobID, segmentID, text, language string) error
	BatchUpdateSegments(ctx context.Context, jobID string, patches []*persistence.Segment) error
	DeleteSegment(ctx context.Context, jobID, segmentID string) error
	CommitTraining(ctx context.Context, jobID string, override func(*persistence.Params)) (*persistence.Job, bool, error)
	HasQueuedMessage(ctx context.Context, queue, id string) (bool, error)
	ResetToLabeling(ctx context.Context, jobID string) (*persistence.Job, error)
	LoadCharacter(ctx context.Context, id string) (*persistence.Character, error)
	ListCharacters(ctx context.Context) ([]*persistence.Character, error)
	Live(ctx context.Context) error
}

// Synthesizer proxies synthesis to the inference engine
type Synthesizer interface {
	Synthesize(ctx context.Context, in *synthesizer.Input) ([]byte, string, error)
}

// Data keeps data required for service work
type Data struct {
	Port        int
	Filer       Filer
	DB          DB
	MsgSender   MsgSender
	Synthesizer Synthesizer
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP FORGE job service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 180 * time.Second
	e.Server.WriteTimeout = 60 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Synthesizer == nil {
		return fmt.Errorf("no Synthesizer")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("forge_job", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/jobs", createJob(data))
	e.GET("/jobs", listJobs(data))
	e.GET("/jobs/:id", getJob(data))
	e.DELETE("/jobs/:id", deleteJob(data))
	e.POST("/jobs/:id/upload", upload(data))
	e.POST("/jobs/:id/preprocess", preprocess(data))
	e.GET("/jobs/:id/segments", listSegments(data))
	e.PATCH("/jobs/:id/segments/:sid", updateSegment(data))
	e.POST("/jobs/:id/segments/batch", batchUpdateSegments(data))
	e.DELETE("/jobs/:id/segments/:sid", deleteSegment(data))
	e.GET("/jobs/:id/audio/:sid", segmentAudio(data))
	e.POST("/jobs/:id/train", train(data))
	e.POST("/jobs/:id/relabel", relabel(data))
	e.POST("/jobs/:id/cancel", cancel(data))
	e.GET("/characters", listCharacters(data))
	e.POST("/synthesis", synthesize(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type jobData struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Language      string              `json:"language"`
	Email         string              `json:"email,omitempty"`
	Status        string              `json:"status"`
	Progress      int32               `json:"progress"`
	CurrentStep   string              `json:"currentStep,omitempty"`
	Params        *persistence.Params `json:"params,omitempty"`
	FileNames     []string            `json:"fileNames,omitempty"`
	Error         string              `json:"error,omitempty"`
	ErrorCode     string              `json:"errorCode,omitempty"`
	AcousticModel string              `json:"acousticModel,omitempty"`
	ProsodyModel  string              `json:"prosodyModel,omitempty"`
	Created       time.Time           `json:"created"`
}

type segmentData struct {
	ID           string  `json:"id"`
	File         string  `json:"file"`
	Text         string  `json:"text"`
	Language     string  `json:"language,omitempty"`
	DurationSecs float64 `json:"durationSecs,omitempty"`
}

type characterData struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Language string    `json:"language"`
	Created  time.Time `json:"created"`
}

func mapJob(job *persistence.Job) *jobData {
	return &jobData{ID: job.ID, Name: job.Name, Language: job.Language,
		Email: utils.FromSQLStr(job.Email), Status: job.Status, Progress: job.Progress,
		CurrentStep: utils.FromSQLStr(job.CurrentStep), Params: job.Params,
		FileNames: job.FileNames, Error: utils.FromSQLStr(job.Error),
		ErrorCode: utils.FromSQLStr(job.ErrorCode), AcousticModel: utils.FromSQLStr(job.AcousticModel),
		ProsodyModel: utils.FromSQLStr(job.ProsodyModel), Created: job.Created}
}

func mapSegment(s *persistence.Segment) *segmentData {
	return &segmentData{ID: s.ID, File: s.File, Text: s.Text, Language: s.Language, DurationSecs: s.DurationSecs}
}

type createRequest struct {
	Name     string              `json:"name"`
	Language string              `json:"language"`
	Email    string              `json:"email,omitempty"`
	Params   *persistence.Params `json:"params,omitempty"`
}

func createJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createJob method")()
		ctx := c.Request().Context()

		var req createRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if strings.TrimSpace(req.Name) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no name")
		}
		if strings.TrimSpace(req.Language) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no language")
		}
		prm := req.Params
		if prm == nil {
			prm = persistence.DefaultParams()
		}
		job := &persistence.Job{ID: uuid.NewString(), Name: strings.TrimSpace(req.Name),
			Language: req.Language, Email: utils.ToSQLStr(req.Email),
			Status: status.Pending.String(), Params: prm, Created: time.Now()}
		if err := data.DB.InsertJob(ctx, job); err != nil {
			return processError(err)
		}
		return c.JSON(http.StatusCreated, mapJob(job))
	}
}

func listJobs(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		jobs, err := data.DB.ListJobs(c.Request().Context())
		if err != nil {
			return processError(err)
		}
		res := make([]*jobData, 0, len(jobs))
		for _, job := range jobs {
			res = append(res, mapJob(job))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func getJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(c.Request().Context(), id)
		if err != nil {
			return processError(err)
		}
		return c.JSON(http.StatusOK, mapJob(job))
	}
}

func deleteJob(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("deleteJob method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			return processError(err)
		}
		st := status.From(job.Status)
		if st.Active() {
			return processError(api.NewErrWrongState("delete", job.Status))
		}
		if err := data.DB.DeleteJob(ctx, id); err != nil {
			return processError(err)
		}
		if err := data.Filer.RemovePrefix(ctx, id+"/"); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't clean storage")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func upload(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("upload method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			return processError(err)
		}
		st := status.From(job.Status)
		if st != status.Pending && st != status.Uploading {
			return processError(api.NewErrWrongState("upload", job.Status))
		}

		form, err := c.MultipartForm()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "no multipart form data")
		}
		defer cleanFiles(form)
		files, fHeaders, err := takeFiles(form, api.PrmFile)
		for _, f := range files {
			fInt := f
			defer fInt.Close()
		}
		if err != nil && len(files) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no file")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "wrong input form")
		}
		names, err := validateExtractFiles(fHeaders)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		for i, f := range files {
			if err := data.Filer.SaveFile(ctx, utils.MakeFileName(id, names[i]), f, fHeaders[i].Size); err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError)
			}
		}
		all := mergeNames(job.FileNames, names)
		if err := data.DB.UpdateFileNames(ctx, id, all); err != nil {
			return processError(err)
		}
		job.FileNames = all
		if st == status.Pending {
			job.Status = status.Uploading.String()
			if err := data.DB.UpdateStatus(ctx, job); err != nil {
				return processError(err)
			}
		}
		return c.JSON(http.StatusOK, mapJob(job))
	}
}

type result struct {
	ID string `json:"id"`
}

func preprocess(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("preprocess method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			return processError(err)
		}
		st := status.From(job.Status)
		if st != status.Pending && st != status.Uploading {
			return processError(api.NewErrWrongState("start preprocessing", job.Status))
		}
		if len(job.FileNames) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no uploaded files")
		}
		err = data.MsgSender.SendMessage(ctx, &messages.JobMessage{ID: id}, messages.Work, messages.MsgPreprocess)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
		return c.JSON(http.StatusAccepted, result{ID: id})
	}
}

func listSegments(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		if _, err := data.DB.LoadJob(ctx, id); err != nil {
			return processError(err)
		}
		segments, err := data.DB.ListSegments(ctx, id)
		if err != nil {
			return processError(err)
		}
		res := make([]*segmentData, 0, len(segments))
		for _, s := range segments {
			res = append(res, mapSegment(s))
		}
		return c.JSON(http.StatusOK, res)
	}
}

type segmentPatch struct {
	ID       string `json:"id,omitempty"`
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func updateSegment(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, sid := c.Param("id"), c.Param("sid")
		if id == "" || sid == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		var req segmentPatch
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if err := data.DB.UpdateSegment(ctx, id, sid, req.Text, req.Language); err != nil {
			return processError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type batchRequest struct {
	Segments []segmentPatch `json:"segments"`
}

func batchUpdateSegments(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		var req batchRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if len(req.Segments) == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "no segments")
		}
		patches := make([]*persistence.Segment, 0, len(req.Segments))
		for _, p := range req.Segments {
			if p.ID == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "no segment ID")
			}
			patches = append(patches, &persistence.Segment{ID: p.ID, Text: p.Text, Language: p.Language})
		}
		if err := data.DB.BatchUpdateSegments(ctx, id, patches); err != nil {
			return processError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteSegment(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		id, sid := c.Param("id"), c.Param("sid")
		if id == "" || sid == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		if err := data.DB.DeleteSegment(ctx, id, sid); err != nil {
			return processError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// segmentAudio streams a clip for playback during labeling
func segmentAudio(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("segmentAudio method")()
		ctx := c.Request().Context()
		id, sid := c.Param("id"), c.Param("sid")
		if id == "" || sid == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		segment, err := data.DB.LoadSegment(ctx, id, sid)
		if err != nil {
			return processError(err)
		}
		return serveFile(c, data, segment.File)
	}
}

func serveFile(c echo.Context, data *Data, name string) error {
	goapp.Log.Info().Str("file", name).Msg("loading")
	file, err := data.Filer.LoadFile(c.Request().Context(), name)
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file")
	}
	defer file.Close()
	stGetter, ok := file.(interface{ Stat() (fs.FileInfo, error) })
	if !ok {
		goapp.Log.Error().Msg(`file does implement "interface{ Stat() (fs.FileInfo, error)"`)
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}
	stat, err := stGetter.Stat()
	if err != nil {
		if isNotFound(err) {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		goapp.Log.Error().Err(err).Send()
		return echo.NewHTTPError(http.StatusInternalServerError, "Can't get file stat")
	}

	w := c.Response()
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(stat.Name()))
	http.ServeContent(w, c.Request(), stat.Name(), stat.ModTime(), file)
	return nil
}

func isNotFound(err error) bool {
	var errTest minio.ErrorResponse
	return errors.As(err, &errTest) && errTest.StatusCode == http.StatusNotFound
}

type trainRequest struct {
	Acoustic *persistence.TrainParams `json:"acoustic,omitempty"`
	Prosody  *persistence.TrainParams `json:"prosody,omitempty"`
}

func train(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("train method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		var req trainRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		job, committed, err := data.DB.CommitTraining(ctx, id, func(p *persistence.Params) {
			if req.Acoustic != nil {
				p.Acoustic = *req.Acoustic
			}
			if req.Prosody != nil {
				p.Prosody = *req.Prosody
			}
		})
		if err != nil {
			return processError(err)
		}
		resend := false
		if !committed && status.From(job.Status) == status.Preparing {
			// committed earlier but the enqueue may have been lost after the
			// commit tx - no worker will ever pick the job up without a message
			queued, err := data.DB.HasQueuedMessage(ctx, messages.Work, id)
			if err != nil {
				return processError(err)
			}
			resend = !queued
			if resend {
				goapp.Log.Warn().Str("ID", id).Msg("committed job has no queued message - resending")
			}
		}
		if committed || resend {
			err = data.MsgSender.SendMessage(ctx, &messages.JobMessage{ID: id}, messages.Work, messages.MsgTrain)
			if err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError)
			}
		}
		return c.JSON(http.StatusOK, mapJob(job))
	}
}

func relabel(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("relabel method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.ResetToLabeling(ctx, id)
		if err != nil {
			return processError(err)
		}
		return c.JSON(http.StatusOK, mapJob(job))
	}
}

func cancel(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("cancel method")()
		ctx := c.Request().Context()
		id := c.Param("id")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No ID")
		}
		job, err := data.DB.LoadJob(ctx, id)
		if err != nil {
			return processError(err)
		}
		st := status.From(job.Status)
		if st.Terminal() {
			return processError(api.NewErrWrongState("cancel", job.Status))
		}
		if err := data.DB.RequestCancel(ctx, id); err != nil {
			return processError(err)
		}
		// a job no worker holds won't see the flag, finish it here
		if !st.Active() {
			job.Status = status.Cancelled.String()
			if err := data.DB.UpdateStatus(ctx, job); err != nil {
				return processError(err)
			}
		}
		return c.JSON(http.StatusOK, result{ID: id})
	}
}

func listCharacters(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		chars, err := data.DB.ListCharacters(c.Request().Context())
		if err != nil {
			return processError(err)
		}
		res := make([]*characterData, 0, len(chars))
		for _, ch := range chars {
			res = append(res, &characterData{ID: ch.ID, Name: ch.Name, Language: ch.Language, Created: ch.Created})
		}
		return c.JSON(http.StatusOK, res)
	}
}

type synthesisRequest struct {
	CharacterID string  `json:"characterId"`
	Text        string  `json:"text"`
	Language    string  `json:"language,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
}

func synthesize(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("synthesize method")()
		ctx := c.Request().Context()
		var req synthesisRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if req.CharacterID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no characterId")
		}
		if strings.TrimSpace(req.Text) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no text")
		}
		ch, err := data.DB.LoadCharacter(ctx, req.CharacterID)
		if err != nil {
			return processError(err)
		}
		ref, err := pickReference(ctx, data, ch.ID)
		if err != nil {
			return processError(err)
		}
		lang := req.Language
		if lang == "" {
			lang = ch.Language
		}
		audio, contentType, err := data.Synthesizer.Synthesize(ctx, &synthesizer.Input{
			AcousticModel: ch.AcousticModel, ProsodyModel: ch.ProsodyModel,
			RefAudio: ref.File, RefText: ref.Text, Text: req.Text, Language: lang, Speed: req.Speed})
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Can't synthesize")
		}
		if contentType == "" {
			contentType = "audio/wav"
		}
		return c.Blob(http.StatusOK, contentType, audio)
	}
}

// pickReference selects the longest labeled clip as the zero shot
// reference the engine conditions on
func pickReference(ctx context.Context, data *Data, jobID string) (*persistence.Segment, error) {
	segments, err := data.DB.ListSegments(ctx, jobID)
	if err != nil {
		return nil, err
	}
	var res *persistence.Segment
	for _, s := range segments {
		if s.Text == "" {
			continue
		}
		if res == nil || s.DurationSecs > res.DurationSecs {
			res = s
		}
	}
	if res == nil {
		return nil, api.NewErrNotFound("reference segment for character", jobID)
	}
	return res, nil
}

type validationErrData struct {
	Message    string   `json:"message"`
	SegmentIDs []string `json:"segmentIds,omitempty"`
}

func processError(err error) error {
	var errNF *api.ErrNotFound
	if errors.As(err, &errNF) {
		return echo.NewHTTPError(http.StatusNotFound, errNF.Error())
	}
	var errWS *api.ErrWrongState
	if errors.As(err, &errWS) {
		return echo.NewHTTPError(http.StatusConflict, errWS.Error())
	}
	var errC *api.ErrConflict
	if errors.As(err, &errC) {
		return echo.NewHTTPError(http.StatusConflict, errC.Error())
	}
	var errD *api.ErrDuplicate
	if errors.As(err, &errD) {
		return echo.NewHTTPError(http.StatusConflict, errD.Error())
	}
	var errV *api.ErrValidation
	if errors.As(err, &errV) {
		return echo.NewHTTPError(http.StatusBadRequest, validationErrData{Message: errV.Msg, SegmentIDs: errV.SegmentIDs})
	}
	goapp.Log.Error().Err(err).Send()
	return echo.NewHTTPError(http.StatusInternalServerError)
}

func mergeNames(old, add []string) []string {
	res := append([]string{}, old...)
	for _, n := range add {
		found := false
		for _, o := range res {
			if o == n {
				found = true
				break
			}
		}
		if !found {
			res = append(res, n)
		}
	}
	return res
}

func cleanFiles(f *multipart.Form) {
	if f != nil {
		_ = f.RemoveAll()
	}
}

func takeFiles(form *multipart.Form, paramName string) ([]multipart.File, []*multipart.FileHeader, error) {
	file, handler, err := takeFile(form, paramName)
	if err != nil {
		return nil, nil, fmt.Errorf("no form param file: %w", err)
	}
	fRes := []multipart.File{file}
	fhRes := []*multipart.FileHeader{handler}
	for i := 2; i <= 10; i++ {
		file, handler, err := takeFile(form, paramName+strconv.Itoa(i))
		if err == http.ErrMissingFile {
			break
		}
		if err != nil {
			return fRes, nil, fmt.Errorf("error reading form param '%s' : %w", paramName+strconv.Itoa(i), err)
		}
		fRes = append(fRes, file)
		fhRes = append(fhRes, handler)
	}
	return fRes, fhRes, nil
}

func takeFile(form *multipart.Form, paramName string) (multipart.File, *multipart.FileHeader, error) {
	handler := takeFirst(form.File[paramName], nil)
	if handler == nil {
		return nil, nil, http.ErrMissingFile
	}
	file, err := handler.Open()
	return file, handler, err
}

func takeFirst[K interface{}](a []K, d K) K {
	if len(a) > 0 {
		return a[0]
	}
	return d
}

func validateExtractFiles(fHeaders []*multipart.FileHeader) ([]string, error) {
	res := []string{}
	for _, h := range fHeaders {
		ext := filepath.Ext(h.Filename)
		if !utils.SupportAudioExt(strings.ToLower(ext)) {
			return nil, fmt.Errorf("wrong file extension: %s", ext)
		}
		fn, err := utils.MakeValidateFileName("", h.Filename)
		if err != nil {
			return nil, fmt.Errorf("wrong file name: %s", h.Filename)
		}
		res = append(res, fn)
	}
	return res, nil
}
