package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/datapunk/lake/pkg/events"
)

func TestAlertRuleFiresWhenThresholdCrossed(t *testing.T) {
	var fired []Alert
	var mu sync.Mutex

	source := MetricSourceFunc(func(metric string) (float64, bool) {
		if metric == "queue_depth" {
			return 100, true
		}
		return 0, false
	})

	mgr := NewAlertManager(source, nil)
	mgr.AddRule(&AlertRule{
		Name:       "queue_backed_up",
		Metric:     "queue_depth",
		Threshold:  50,
		Comparator: ComparatorGT,
		Severity:   SeverityWarning,
		Handlers: []Handler{func(a Alert) {
			mu.Lock()
			fired = append(fired, a)
			mu.Unlock()
		}},
	})

	mgr.evaluateAll(noopLogger())

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(fired))
	}
	if fired[0].Value != 100 {
		t.Errorf("expected value=100, got %v", fired[0].Value)
	}
}

func TestAlertRuleDoesNotFireBelowThreshold(t *testing.T) {
	var calls int
	source := MetricSourceFunc(func(metric string) (float64, bool) { return 10, true })
	mgr := NewAlertManager(source, nil)
	mgr.AddRule(&AlertRule{
		Name: "r", Metric: "m", Threshold: 50, Comparator: ComparatorGT,
		Handlers: []Handler{func(a Alert) { calls++ }},
	})
	mgr.evaluateAll(noopLogger())
	if calls != 0 {
		t.Fatalf("expected no fire below threshold, got %d calls", calls)
	}
}

func TestAlertRuleRespectsCooldown(t *testing.T) {
	var calls int
	source := MetricSourceFunc(func(metric string) (float64, bool) { return 100, true })
	mgr := NewAlertManager(source, nil)
	mgr.AddRule(&AlertRule{
		Name: "r", Metric: "m", Threshold: 50, Comparator: ComparatorGT,
		Cooldown: time.Hour,
		Handlers: []Handler{func(a Alert) { calls++ }},
	})
	mgr.evaluateAll(noopLogger())
	mgr.evaluateAll(noopLogger())
	if calls != 1 {
		t.Fatalf("expected cooldown to suppress second fire, got %d calls", calls)
	}
}

func TestAlertRulePublishesEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	source := MetricSourceFunc(func(metric string) (float64, bool) { return 99, true })
	mgr := NewAlertManager(source, broker)
	mgr.AddRule(&AlertRule{Name: "r", Metric: "m", Threshold: 1, Comparator: ComparatorGT, Severity: SeverityCritical})
	mgr.evaluateAll(noopLogger())

	select {
	case ev := <-sub:
		if ev.Type != events.EventAlertFired {
			t.Fatalf("expected EventAlertFired, got %v", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestAlertManagerStartStop(t *testing.T) {
	source := MetricSourceFunc(func(metric string) (float64, bool) { return 0, false })
	mgr := NewAlertManager(source, nil)
	mgr.Start(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	mgr.Stop()
}

func TestComparators(t *testing.T) {
	now := time.Now()
	cases := []struct {
		cmp  Comparator
		val  float64
		thr  float64
		want bool
	}{
		{ComparatorGT, 5, 4, true},
		{ComparatorGT, 4, 4, false},
		{ComparatorGE, 4, 4, true},
		{ComparatorLT, 3, 4, true},
		{ComparatorLE, 4, 4, true},
		{Comparator("bogus"), 4, 4, false},
	}
	for _, c := range cases {
		r := &AlertRule{Comparator: c.cmp, Threshold: c.thr}
		if got := r.evaluate(c.val, now); got != c.want {
			t.Errorf("%v %v vs %v: got %v want %v", c.cmp, c.val, c.thr, got, c.want)
		}
	}
}
