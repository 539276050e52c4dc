package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeStore struct {
	samples []*store.TaskMetricData
}

func (f *fakeStore) Record(ctx context.Context, m *store.TaskMetricData) error {
	f.samples = append(f.samples, m)
	return nil
}
func (f *fakeStore) Recent(ctx context.Context, taskType, tier string, sinceMs int64) ([]*store.TaskMetricData, error) {
	var out []*store.TaskMetricData
	for _, s := range f.samples {
		if s.TaskType == taskType && s.Tier == tier && s.CreatedAt >= sinceMs {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestClassifyTaskKeywordVote(t *testing.T) {
	if got := ClassifyTask("please refactor this function and fix the bug"); got != TaskCode {
		t.Fatalf("expected code, got %s", got)
	}
	if got := ClassifyTask("what is the capital of France"); got != TaskSimpleLookup {
		t.Fatalf("expected simple_lookup, got %s", got)
	}
}

func TestEstimateFallsBackToTierDefaultsBelowMinSamples(t *testing.T) {
	s := &fakeStore{}
	e := New(s)
	est, err := e.Estimate(context.Background(), "write an essay about cats", "moderate")
	if err != nil {
		t.Fatal(err)
	}
	if est.Basis != BasisDefault || est.Timeout != 60*time.Second {
		t.Fatalf("unexpected estimate: %+v", est)
	}
}

func TestEstimateUnknownTierFallback(t *testing.T) {
	s := &fakeStore{}
	e := New(s)
	est, err := e.Estimate(context.Background(), "anything", "nonexistent-tier")
	if err != nil {
		t.Fatal(err)
	}
	if est.Basis != BasisFallback || est.ExpectedIterations != 10 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
}

func TestEstimateUsesHistoricalPercentiles(t *testing.T) {
	s := &fakeStore{}
	e := New(s)
	e.now = func() time.Time { return time.Unix(1000000, 0) }
	for i := 0; i < 10; i++ {
		s.samples = append(s.samples, &store.TaskMetricData{
			TaskType: string(TaskCode), Tier: "complex",
			DurationMs: int64(10000 + i*1000), Iterations: 4 + i%3,
			CreatedAt: e.now().UnixMilli(),
		})
	}
	est, err := e.Estimate(context.Background(), "refactor the module", "complex")
	if err != nil {
		t.Fatal(err)
	}
	if est.Basis != BasisHistorical {
		t.Fatalf("expected historical basis, got %+v", est)
	}
	if est.Confidence != 0.5 {
		t.Fatalf("expected confidence 10/20=0.5, got %f", est.Confidence)
	}
}

func TestShouldExtendCaseA(t *testing.T) {
	extraIter, extraTime := ShouldExtend(8, 10, 20*time.Second, 60*time.Second, 0)
	if extraIter != 5 || extraTime != 0 {
		t.Fatalf("expected case A (+5 iterations), got %d/%s", extraIter, extraTime)
	}
}

func TestShouldExtendCaseB(t *testing.T) {
	extraIter, extraTime := ShouldExtend(2, 10, 55*time.Second, 60*time.Second, 0)
	if extraIter != 0 || extraTime != 30*time.Second {
		t.Fatalf("expected case B (+30s), got %d/%s", extraIter, extraTime)
	}
}

func TestShouldExtendCapsAtMaxExtensions(t *testing.T) {
	extraIter, extraTime := ShouldExtend(8, 10, 20*time.Second, 60*time.Second, 2)
	if extraIter != 0 || extraTime != 0 {
		t.Fatalf("expected no extension once cap reached, got %d/%s", extraIter, extraTime)
	}
}
