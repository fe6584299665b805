package mode

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaledhikmat/vs-traffic/model"
	"github.com/khaledhikmat/vs-traffic/pipeline"
	"github.com/khaledhikmat/vs-traffic/service/capture"
	"github.com/khaledhikmat/vs-traffic/service/config"
	"github.com/khaledhikmat/vs-traffic/service/data"
	"github.com/khaledhikmat/vs-traffic/service/metrics"
	"github.com/khaledhikmat/vs-traffic/service/recognition"
)

func testServices(t *testing.T, mutate func(*config.Settings)) (pipeline.ServicesFactory, config.IService) {
	t.Helper()
	dir := t.TempDir()

	s := config.Defaults()
	s.DataFolder = filepath.Join(dir, "data")
	s.LogFolder = filepath.Join(dir, "logs")
	s.ListenAddr = "127.0.0.1:0"
	s.ModeMaxShutdownTime = 0
	s.TickIntervalMs = 1
	s.SampleEvery = 5
	s.SyntheticWidth = 64
	s.SyntheticHeight = 48
	s.SyntheticFileFrames = 20
	if mutate != nil {
		mutate(&s)
	}
	cfg := config.New(s)

	dataSvc, err := data.NewFilesDB(cfg)
	require.NoError(t, err)

	return pipeline.ServicesFactory{
		CfgSvc:         cfg,
		DataSvc:        dataSvc,
		CaptureSvc:     capture.NewSynthetic(cfg),
		RecognitionSvc: recognition.NewFake(recognition.FakeReply{Body: `{"person_num":4}`}),
		Metrics:        metrics.New(),
	}, cfg
}

func readSessionStats(t *testing.T, cfg config.IService) []model.SessionStats {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(cfg.GetDataFolder(), "session-stats.json"))
	require.NoError(t, err)

	var stats []model.SessionStats
	require.NoError(t, json.Unmarshal(raw, &stats))
	return stats
}

func TestFileModeEndsWithTheVideo(t *testing.T) {
	svcs, cfg := testServices(t, nil)

	errs := make(chan error, 1)
	go func() {
		errs <- File(context.Background(), svcs, Options{Mode: model.ModeCrowd, Path: "clip.mp4"})
	}()

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("file mode did not finish")
	}

	stats := readSessionStats(t, cfg)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(20), stats[0].Frames)
	assert.Equal(t, model.ModeCrowd, stats[0].Mode)
	assert.Equal(t, "file:clip.mp4", stats[0].Target)

	samples, err := svcs.DataSvc.RetrieveCountSamples(1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, stats[0].ID, samples[0].Session)
}

func TestFileModeRequiresPath(t *testing.T) {
	svcs, _ := testServices(t, nil)
	assert.Error(t, File(context.Background(), svcs, Options{}))
}

func TestFileModeOpenFailure(t *testing.T) {
	svcs, _ := testServices(t, nil)
	fake := capture.NewFake()
	fake.FailTargets["file:bad.mp4"] = true
	svcs.CaptureSvc = fake

	err := File(context.Background(), svcs, Options{Path: "bad.mp4"})

	var openErr *capture.OpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestLiveModeRunsUntilCancelled(t *testing.T) {
	svcs, cfg := testServices(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- Live(ctx, svcs, Options{Mode: model.ModeVehicle})
	}()

	require.Eventually(t, func() bool { return svcs.Metrics.FramesRendered.Load() > 10 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("live mode did not stop")
	}

	stats := readSessionStats(t, cfg)
	require.Len(t, stats, 1)
	assert.Equal(t, "device:0", stats[0].Target)
	assert.Greater(t, stats[0].Frames, int64(10))
}
