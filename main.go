package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/khaledhikmat/vs-traffic/mode"
	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/pipeline"
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/capture/opencv"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/lgr"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

const (
	// WARNING: this has to be bigger that the mode processor shutdown time
	waitOnShutdown = 8 * time.Second
)

type flags struct {
	configPath string
	mode       string
	addr       string
	store      string
	logLevel   string
	synthetic  bool
	dryRun     bool
}

func main() {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "vs-traffic",
		Short:         "Live traffic and crowd monitor backed by a cloud recognition API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&f.configPath, "config", "", "optional YAML settings file")
	rootCmd.PersistentFlags().StringVar(&f.mode, "mode", "", "recognition mode: vehicle or crowd")
	rootCmd.PersistentFlags().StringVar(&f.addr, "addr", "", "listen address for the web surface")
	rootCmd.PersistentFlags().StringVar(&f.store, "store", "", "data store: files or sqlite")
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&f.synthetic, "synthetic", false, "generate frames instead of opening a camera or file")
	rootCmd.PersistentFlags().BoolVar(&f.dryRun, "dry-run", false, "synthetic frames and scripted recognition replies, no network")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "live",
		Short: "Monitor the configured camera until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), f, mode.Live, "")
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "file <path>",
		Short: "Analyse one video file and exit when it ends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), f, mode.File, args[0])
		},
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		lgr.Logger.Error("vs-traffic failed", slog.Any("error", xerrors.New(err.Error())))
		os.Exit(1)
	}
}

func execute(rootCtx context.Context, f *flags, modeProc mode.Processor, path string) error {
	canxCtx, canxFn := context.WithCancel(rootCtx)
	defer canxFn()

	// Hook up a signal handler to cancel the context
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			lgr.Logger.Info(
				"received kill signal",
				slog.Any("signal", sig),
			)
			canxFn()
		case <-canxCtx.Done():
		}
	}()

	// Load env vars if we are in DEV mode
	if os.Getenv("RUN_TIME_ENV") == "dev" || os.Getenv("RUN_TIME_ENV") == "" {
		lgr.Logger.Info("loading env vars from .env file")
		if err := godotenv.Load(); err != nil {
			lgr.Logger.Warn("no .env file loaded", slog.Any("error", xerrors.New(err.Error())))
		}
	}

	settings, err := config.LoadSettings(f.configPath)
	if err != nil {
		return err
	}
	applyFlags(&settings, f)
	if err := config.Validate(&settings); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	monitorMode, err := model.ParseMode(settings.DefaultMode)
	if err != nil {
		return err
	}

	lgr.Configure(lgr.ParseLevel(settings.LogLevel), settings.LogFolder)

	// Create the services needed for the mode processor
	// Config service
	cfgSvc := config.New(settings)
	// Data service
	dataSvc, err := newDataService(cfgSvc)
	if err != nil {
		return err
	}
	defer dataSvc.Close()
	// Capture service
	var captureSvc capture.IService = opencv.New(cfgSvc)
	if f.synthetic || f.dryRun {
		captureSvc = capture.NewSynthetic(cfgSvc)
	}
	// Recognition service
	recognitionSvc := recognition.NewBaidu(cfgSvc)
	if f.dryRun {
		recognitionSvc = scriptedRecognizer(monitorMode)
	}

	svcs := pipeline.ServicesFactory{
		CfgSvc:         cfgSvc,
		DataSvc:        dataSvc,
		CaptureSvc:     captureSvc,
		RecognitionSvc: recognitionSvc,
		Metrics:        metrics.New(),
	}

	lgr.Logger.Info(
		"vs-traffic starting....",
		slog.String("mode", string(monitorMode)),
		slog.String("store", settings.DataStore),
		slog.String("addr", settings.ListenAddr),
		slog.Bool("synthetic", f.synthetic || f.dryRun),
		slog.Bool("dryRun", f.dryRun),
	)

	// Create mode processor result
	modeProcResult := make(chan error, 1)

	// Start the mode processor
	go func() {
		modeProcResult <- modeProc(canxCtx, svcs, mode.Options{Mode: monitorMode, Path: path})
	}()

	var procErr error

	// Wait for cancellation or mode proc
	select {
	case <-canxCtx.Done():
		lgr.Logger.Info(
			"vs-traffic context cancelled",
		)
		goto resume

	case procErr = <-modeProcResult:
		if procErr != nil {
			lgr.Logger.Info(
				"vs-traffic mode processor exited",
				slog.Any("error", xerrors.New(procErr.Error())),
			)
		}
		return procErr
	}

	// Wait in a non-blocking way for `waitOnShutdown` for the mode processor to exit
resume:
	lgr.Logger.Info(
		"vs-traffic is waiting for the mode processor to exit",
	)

	timer := time.NewTimer(waitOnShutdown)
	defer timer.Stop()

	select {
	case <-timer.C:
		lgr.Logger.Info(
			"vs-traffic shutdown waiting period expired. Exiting now",
			slog.Duration("period", waitOnShutdown),
		)
		return nil

	case procErr = <-modeProcResult:
		return procErr
	}
}

func applyFlags(s *config.Settings, f *flags) {
	if f.mode != "" {
		s.DefaultMode = f.mode
	}
	if f.addr != "" {
		s.ListenAddr = f.addr
	}
	if f.store != "" {
		s.DataStore = f.store
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}
}

func newDataService(cfgSvc config.IService) (data.IService, error) {
	if cfgSvc.GetDataStore() == "sqlite" {
		return data.NewSqliteDB(cfgSvc)
	}
	return data.NewFilesDB(cfgSvc)
}

// scriptedRecognizer replays a short canned sequence so the whole pipeline
// can be exercised without credentials.
func scriptedRecognizer(monitorMode model.Mode) recognition.IService {
	if monitorMode == model.ModeCrowd {
		return recognition.NewFake(
			recognition.FakeReply{Body: `{"person_num":3}`},
			recognition.FakeReply{Body: `{"person_num":5}`},
			recognition.FakeReply{Err: xerrors.New("scripted outage")},
			recognition.FakeReply{Body: `{"person_num":4}`},
		)
	}

	return recognition.NewFake(
		recognition.FakeReply{Body: `{"vehicle_info":[{"type":"car","location":{"left":40,"top":60,"width":120,"height":80}}]}`},
		recognition.FakeReply{Body: `{"vehicle_info":[{"type":"car","location":{"left":60,"top":90,"width":120,"height":80}},{"type":"truck","location":{"left":300,"top":200,"width":180,"height":120}}]}`},
		recognition.FakeReply{Body: `{"vehicle_info":[]}`},
		recognition.FakeReply{Err: xerrors.New("scripted outage")},
	)
}
