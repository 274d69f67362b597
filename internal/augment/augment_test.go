package augment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-balancer/internal/config"
	"label-balancer/internal/dataset"
	"label-balancer/internal/manifest"
	"label-balancer/internal/progress"
	"label-balancer/internal/transform"
)

type call struct {
	src, dst string
	variant  transform.Variant
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []call
	failOn int // 1-based call number that fails, 0 never
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) Augment(src, dst string, v transform.Variant) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{src: src, dst: dst, variant: v})
	n := len(f.calls)
	f.mu.Unlock()
	if f.failOn > 0 && n == f.failOn {
		return errors.New("engine failure")
	}
	return os.WriteFile(dst, []byte(src), 0o644)
}

type memRecorder struct {
	mu      sync.Mutex
	records []manifest.ImageRecord
}

func (m *memRecorder) RecordImage(_ context.Context, rec manifest.ImageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func fixedClock() time.Time { return time.Date(2019, 6, 11, 9, 30, 0, 0, time.UTC) }

func labelDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	return dir
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestVariants_DefaultProgression(t *testing.T) {
	variants := Variants(config.Default())
	require.Len(t, variants, 12)

	wantAngles := []float64{5, 5, 10, 10, 15, 15, 20, 20, 25, 25, 30, 30}
	for i, v := range variants {
		assert.Equal(t, i, v.Index)
		assert.Equal(t, wantAngles[i], v.Angle, "variant %d", i)
		assert.Equal(t, i%2 == 1, v.Flip, "variant %d", i)
	}
	assert.InDelta(t, 1.3, variants[0].Zoom, 1e-9)
	assert.InDelta(t, 1.3, variants[1].Zoom, 1e-9)
	assert.InDelta(t, 1.6, variants[2].Zoom, 1e-9)
	assert.InDelta(t, 2.8, variants[11].Zoom, 1e-9)
}

func TestPlan_ExactCount(t *testing.T) {
	groups := []dataset.SiteGroup{
		{Site: "5", Paths: []string{"5_a"}},
		{Site: "9", Paths: []string{"9_a", "9_b"}},
	}
	variants := Variants(config.Default())
	budget := Budget(groups, len(variants))
	require.Equal(t, 36, budget)

	for _, target := range []int{-3, 0, 1, 12, 13, 35, 36, 37, 1000} {
		want := target
		if want < 0 {
			want = 0
		}
		if want > budget {
			want = budget
		}
		assert.Len(t, Plan(groups, target, variants), want, "target=%d", target)
	}
}

func TestPlan_SmallestSiteFirstThenListingOrder(t *testing.T) {
	groups := []dataset.SiteGroup{
		{Site: "5", Paths: []string{"5_a"}},
		{Site: "9", Paths: []string{"9_a", "9_b"}},
	}
	tickets := Plan(groups, 14, Variants(config.Default()))
	require.Len(t, tickets, 14)

	assert.Equal(t, "5_a", tickets[11].Source)
	assert.Equal(t, 11, tickets[11].Variant.Index)
	assert.Equal(t, "9_a", tickets[12].Source)
	assert.Equal(t, 0, tickets[12].SiteSeq)
	assert.Equal(t, 0, tickets[12].Variant.Index)
	assert.Equal(t, 13, tickets[13].Seq)
}

func TestFileName(t *testing.T) {
	name := FileName("23", fixedClock(), 2, 7, "L4")
	assert.Equal(t, "23_D061119_061119_2_7_ROT_AUG_L4.JPG", name)
}

// One site with four images and a target of five stays on the first image.
func TestRun_StopsMidImage(t *testing.T) {
	src := labelDir(t, "23_a.JPG", "23_b.JPG", "23_c.JPG", "23_d.JPG")
	dst := filepath.Join(t.TempDir(), "4")
	engine := &fakeEngine{}
	recorder := &memRecorder{}
	var counter progress.Counter

	s := NewScheduler(engine, Variants(config.Default()), quietLogger(), Options{
		RunID: "run-1", Recorder: recorder, Progress: &counter, Clock: fixedClock,
	})
	res, err := s.Run(context.Background(), Request{Label: "4", Count: 5, SourceDir: src, DestDir: dst, Tag: "L4"})
	require.NoError(t, err)

	assert.Equal(t, 5, res.Written)
	assert.Equal(t, 5, res.Planned)
	assert.Equal(t, 48, res.Budget)
	assert.Equal(t, 0, res.Shortfall())
	require.Len(t, engine.calls, 5)

	wantAngles := []float64{5, 5, 10, 10, 15}
	for i, c := range engine.calls {
		assert.Equal(t, filepath.Join(src, "23_a.JPG"), c.src)
		assert.Equal(t, wantAngles[i], c.variant.Angle)
		assert.Equal(t, i%2 == 1, c.variant.Flip)
		assert.Equal(t, filepath.Join(dst, fmt.Sprintf("23_D061119_061119_0_%d_ROT_AUG_L4.JPG", i)), c.dst)
	}

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
	assert.Len(t, recorder.records, 5)
	assert.Equal(t, "run-1", recorder.records[0].RunID)
	assert.Equal(t, 5, counter.Total())
}

func TestRun_ZeroTargetWritesNothing(t *testing.T) {
	src := labelDir(t, "23_a.JPG")
	dst := filepath.Join(t.TempDir(), "out")
	engine := &fakeEngine{}

	s := NewScheduler(engine, Variants(config.Default()), quietLogger(), Options{Clock: fixedClock})
	res, err := s.Run(context.Background(), Request{Label: "1", Count: 0, SourceDir: src, DestDir: dst, Tag: "L1"})
	require.NoError(t, err)

	assert.Zero(t, res.Written)
	assert.Empty(t, engine.calls)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err), "no destination is created for an empty plan")
}

func TestRun_BudgetExhausted(t *testing.T) {
	src := labelDir(t, "7_a.JPG", "8_a.JPG")
	cfg := config.Default()
	cfg.Multiplier = 2
	engine := &fakeEngine{}

	s := NewScheduler(engine, Variants(cfg), quietLogger(), Options{Clock: fixedClock})
	res, err := s.Run(context.Background(), Request{Label: "2", Count: 100, SourceDir: src, DestDir: t.TempDir(), Tag: "L2"})
	require.NoError(t, err)

	assert.Equal(t, 8, res.Budget)
	assert.Equal(t, 8, res.Written)
	assert.Equal(t, 92, res.Shortfall())
}

func TestRun_FileNamesUniqueAcrossSites(t *testing.T) {
	src := labelDir(t, "1_a.JPG", "1_b.JPG", "2_a.JPG", "3_a.JPG", "3_b.JPG", "3_c.JPG")
	engine := &fakeEngine{}

	s := NewScheduler(engine, Variants(config.Default()), quietLogger(), Options{Workers: 4, Clock: fixedClock})
	res, err := s.Run(context.Background(), Request{Label: "5", Count: 72, SourceDir: src, DestDir: t.TempDir(), Tag: "L5"})
	require.NoError(t, err)
	require.Equal(t, 72, res.Written)

	seen := make(map[string]bool)
	for _, f := range res.Files {
		assert.False(t, seen[f], "duplicate %s", f)
		seen[f] = true
	}
}

func TestRun_EngineFailureStops(t *testing.T) {
	src := labelDir(t, "23_a.JPG", "23_b.JPG")
	engine := &fakeEngine{failOn: 3}

	s := NewScheduler(engine, Variants(config.Default()), quietLogger(), Options{Clock: fixedClock})
	res, err := s.Run(context.Background(), Request{Label: "6", Count: 10, SourceDir: src, DestDir: t.TempDir(), Tag: "L6"})
	require.Error(t, err)

	assert.Equal(t, 2, res.Written)
	assert.Len(t, engine.calls, 3)
}

func TestRun_CancelledContext(t *testing.T) {
	src := labelDir(t, "23_a.JPG")
	engine := &fakeEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(engine, Variants(config.Default()), quietLogger(), Options{Clock: fixedClock})
	_, err := s.Run(ctx, Request{Label: "6", Count: 3, SourceDir: src, DestDir: t.TempDir(), Tag: "L6"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.calls)
}

func TestRun_MalformedSourceName(t *testing.T) {
	src := labelDir(t, "nosite.JPG")
	s := NewScheduler(&fakeEngine{}, Variants(config.Default()), quietLogger(), Options{})
	_, err := s.Run(context.Background(), Request{Label: "1", Count: 1, SourceDir: src, DestDir: t.TempDir(), Tag: "L1"})
	assert.ErrorIs(t, err, dataset.ErrMalformedName)
}
