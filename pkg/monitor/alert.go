package monitor

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/datapunk/lake/pkg/events"
	"github.com/datapunk/lake/pkg/log"
)

// Comparator is the relational operator an AlertRule tests its metric
// value against.
type Comparator string

const (
	ComparatorGT Comparator = "gt"
	ComparatorGE Comparator = "ge"
	ComparatorLT Comparator = "lt"
	ComparatorLE Comparator = "le"
)

// Severity is an alert's urgency classification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Handler is notified every time an AlertRule fires. Implementations are
// expected to be fast and non-blocking (log/webhook/email dispatch should
// happen on their own goroutine if slow) since handlers run synchronously
// inside the evaluation loop.
type Handler func(alert Alert)

// AlertRule watches one metric value (supplied by a MetricSource) against a
// threshold, firing an Alert when the comparison holds, subject to a
// cooldown that suppresses repeat fires for the same rule.
type AlertRule struct {
	Name       string
	Metric     string
	Threshold  float64
	Comparator Comparator
	Severity   Severity
	Cooldown   time.Duration
	Handlers   []Handler

	lastFired time.Time
}

// Alert is one AlertRule firing.
type Alert struct {
	ID        string
	Rule      string
	Severity  Severity
	Value     float64
	Threshold float64
	Context   map[string]string
	Timestamp time.Time
}

func (r *AlertRule) evaluate(value float64, now time.Time) bool {
	switch r.Comparator {
	case ComparatorGT:
		return value > r.Threshold
	case ComparatorGE:
		return value >= r.Threshold
	case ComparatorLT:
		return value < r.Threshold
	case ComparatorLE:
		return value <= r.Threshold
	default:
		return false
	}
}

func (r *AlertRule) inCooldown(now time.Time) bool {
	if r.Cooldown <= 0 || r.lastFired.IsZero() {
		return false
	}
	return now.Sub(r.lastFired) < r.Cooldown
}

// MetricSource supplies the current value of a named metric to the alert
// evaluator, decoupling AlertManager from any specific metrics backend.
// cmd/lake's serve wires a source that reports every metric as absent;
// tests supply a plain function.
type MetricSource interface {
	Value(metric string) (float64, bool)
}

// MetricSourceFunc adapts a function to a MetricSource.
type MetricSourceFunc func(metric string) (float64, bool)

// Value implements MetricSource.
func (f MetricSourceFunc) Value(metric string) (float64, bool) { return f(metric) }

// AlertManager evaluates a set of AlertRules on a ticker, firing Alerts to
// each rule's Handlers (and publishing events.EventAlertFired) subject to
// per-rule cooldown, grounded on the reconciler's own ticker-driven
// evaluation loop (pkg/cluster/reconciler.go).
type AlertManager struct {
	source MetricSource
	broker *events.Broker

	mu     sync.Mutex
	rules  map[string]*AlertRule
	stopCh chan struct{}
}

// NewAlertManager builds an AlertManager reading metric values from source
// and (optionally) publishing fired alerts to broker.
func NewAlertManager(source MetricSource, broker *events.Broker) *AlertManager {
	return &AlertManager{
		source: source,
		broker: broker,
		rules:  make(map[string]*AlertRule),
		stopCh: make(chan struct{}),
	}
}

// AddRule registers or replaces a rule by name.
func (m *AlertManager) AddRule(rule *AlertRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.Name] = rule
}

// RemoveRule unregisters a rule by name.
func (m *AlertManager) RemoveRule(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, name)
}

// Start begins the evaluation loop, checking every rule once per interval.
func (m *AlertManager) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go m.run(interval)
}

// Stop terminates the evaluation loop.
func (m *AlertManager) Stop() {
	close(m.stopCh)
}

func (m *AlertManager) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := log.WithComponent("alert_manager")
	logger.Info().Msg("alert manager started")

	for {
		select {
		case <-ticker.C:
			m.evaluateAll(logger)
		case <-m.stopCh:
			logger.Info().Msg("alert manager stopped")
			return
		}
	}
}

func (m *AlertManager) evaluateAll(logger zerolog.Logger) {
	m.mu.Lock()
	rules := make([]*AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, rule := range rules {
		value, ok := m.source.Value(rule.Metric)
		if !ok || rule.inCooldown(now) || !rule.evaluate(value, now) {
			continue
		}
		rule.lastFired = now
		alert := Alert{
			ID:        rule.Name + ":" + now.Format(time.RFC3339Nano),
			Rule:      rule.Name,
			Severity:  rule.Severity,
			Value:     value,
			Threshold: rule.Threshold,
			Timestamp: now,
		}
		logger.Warn().Str("rule", rule.Name).Float64("value", value).Float64("threshold", rule.Threshold).Msg("alert fired")
		m.fire(rule, alert)
	}
}

func (m *AlertManager) fire(rule *AlertRule, alert Alert) {
	AlertsFiredTotal.WithLabelValues(rule.Name, string(rule.Severity)).Inc()
	if m.broker != nil {
		m.broker.Publish(&events.Event{
			Type:    events.EventAlertFired,
			Message: rule.Name,
			Metadata: map[string]string{
				"severity":  string(rule.Severity),
				"value":     strconv.FormatFloat(alert.Value, 'f', -1, 64),
				"threshold": strconv.FormatFloat(alert.Threshold, 'f', -1, 64),
			},
		})
	}
	for _, h := range rule.Handlers {
		h(alert)
	}
}
