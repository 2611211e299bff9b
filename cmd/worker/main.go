package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	capi "github.com/hashicorp/consul/api"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/vocalalchemy/forge/internal/pkg/asr"
	"github.com/vocalalchemy/forge/internal/pkg/consul"
	"github.com/vocalalchemy/forge/internal/pkg/dsp"
	"github.com/vocalalchemy/forge/internal/pkg/filer"
	"github.com/vocalalchemy/forge/internal/pkg/pipeline"
	"github.com/vocalalchemy/forge/internal/pkg/postgres"
	"github.com/vocalalchemy/forge/internal/pkg/utils"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &pipeline.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 2)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	data.Filer, err = filer.NewFiler(ctx, filer.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"),
		Key: cfg.GetString("filer.key"), SSL: cfg.GetBool("filer.https")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	data.DSP, err = dsp.NewClient(cfg.GetString("dsp.separateUrl"), cfg.GetString("dsp.denoiseUrl"),
		cfg.GetString("dsp.sliceUrl"), cfg.GetString("dsp.statusUrl"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init dsp client")
	}
	data.Recognizer, err = asr.NewClient(cfg.GetString("asr.transcribeUrl"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init asr client")
	}

	consulCfg := capi.DefaultConfig()
	if addr := cfg.GetString("consul.address"); addr != "" {
		consulCfg.Address = addr
	}
	provider, err := consul.NewProvider(consulCfg, defaultV(cfg.GetString("consul.trainerName"), "trainer"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init consul provider")
	}
	data.TrainerProvider = provider

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	registryCh, err := provider.StartRegistryLoop(ctx, defaultV(cfg.GetDuration("consul.checkInterval"), time.Second*10))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start consul registry loop")
	}
	doneCh, err := pipeline.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	if err := pipeline.ResumeInterrupted(ctx, data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't resume interrupted jobs")
	}

	go utils.RunPerfEndpoint()

	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		<-registryCh
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, dv T) T {
	var zero T
	if v == zero {
		return dv
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
    ______
   / ____/___  _________ ____
  / /_  / __ \/ ___/ __ ` + "`" + `/ _ \
 / __/ / /_/ / /  / /_/ /  __/
/_/    \____/_/   \__, /\___/ v: %s
                 /____/
                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/vocalalchemy/forge"))
}
