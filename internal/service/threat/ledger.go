package threat

import (
	"context"
	"sort"
	"sync"
	"time"

	"invoice-api/internal/config"
	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"
	"invoice-api/pkg/janitor"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxEventsPerCaller = 20
	topSuspicious      = 10
	recentEvents       = 20
)

// Ledger is a capped audit log of threat events folded per caller. Crossing
// the repeat threshold raises an advisory alert in the log, nothing more.
type Ledger struct {
	maxEvents int
	threshold int
	retention time.Duration
	clock     clock.Clock
	logger    *zap.Logger
	alerts    *rate.Limiter
	janitor   *janitor.Janitor

	mu      sync.Mutex
	events  []domain.ThreatEvent
	callers map[string]*domain.SuspiciousIdentifier
}

// NewLedger creates an empty ledger
func NewLedger(cfg config.ThreatConfig, clk clock.Clock, logger *zap.Logger) *Ledger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1000
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}

	l := &Ledger{
		maxEvents: cfg.MaxEvents,
		threshold: cfg.RepeatThreshold,
		retention: cfg.Retention,
		clock:     clk,
		logger:    logger,
		alerts:    rate.NewLimiter(rate.Every(time.Second), 5),
		callers:   make(map[string]*domain.SuspiciousIdentifier),
	}
	l.janitor = janitor.New("threat", cfg.SweepInterval, l.Sweep, logger)

	return l
}

// Start begins the retention sweep
func (l *Ledger) Start(ctx context.Context) {
	l.janitor.Start(ctx)
}

// Stop halts the retention sweep
func (l *Ledger) Stop() {
	l.janitor.Stop()
}

// Record appends an event and folds it into the caller's record. It reports
// whether the event made the caller cross a multiple of the repeat threshold.
func (l *Ledger) Record(event domain.ThreatEvent) bool {
	now := l.clock.Now()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	event.Details = append([]string(nil), event.Details...)

	l.mu.Lock()
	if len(l.events) >= l.maxEvents {
		drop := len(l.events) - l.maxEvents + 1
		l.events = append(l.events[:0], l.events[drop:]...)
	}
	l.events = append(l.events, event)

	caller, ok := l.callers[event.Identifier]
	if !ok {
		caller = &domain.SuspiciousIdentifier{
			Identifier: event.Identifier,
			FirstSeen:  event.Timestamp,
		}
		l.callers[event.Identifier] = caller
	}
	caller.Count++
	caller.LastSeen = event.Timestamp
	caller.Events = append(caller.Events, event)
	if len(caller.Events) > maxEventsPerCaller {
		caller.Events = caller.Events[len(caller.Events)-maxEventsPerCaller:]
	}
	caller.RiskLevel = l.riskFor(caller.Count)
	count, risk := caller.Count, caller.RiskLevel
	l.mu.Unlock()

	l.logger.Info("Suspicious request detected",
		zap.String("identifier", event.Identifier),
		zap.String("type", event.Type),
		zap.String("risk_level", string(event.RiskLevel)),
		zap.Strings("details", event.Details))

	crossed := count%l.threshold == 0
	if crossed {
		if l.alerts.AllowN(now, 1) {
			l.logger.Warn("Repeat offender threshold reached",
				zap.String("identifier", event.Identifier),
				zap.Int("count", count),
				zap.Int("threshold", l.threshold),
				zap.String("risk_level", string(risk)))
		} else {
			l.logger.Debug("Repeat offender alert throttled", zap.String("identifier", event.Identifier))
		}
	}

	return crossed
}

// Caller returns a copy of the record for identifier
func (l *Ledger) Caller(identifier string) (domain.SuspiciousIdentifier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	caller, ok := l.callers[identifier]
	if !ok {
		return domain.SuspiciousIdentifier{}, false
	}
	return copyCaller(caller), true
}

// Sweep forgets callers and events older than the retention period
func (l *Ledger) Sweep() {
	cutoff := l.clock.Now().Add(-l.retention)

	l.mu.Lock()
	removed := 0
	for id, caller := range l.callers {
		if caller.LastSeen.Before(cutoff) {
			delete(l.callers, id)
			removed++
		}
	}
	keep := 0
	for keep < len(l.events) && l.events[keep].Timestamp.Before(cutoff) {
		keep++
	}
	l.events = append(l.events[:0], l.events[keep:]...)
	l.mu.Unlock()

	if removed > 0 || keep > 0 {
		l.logger.Debug("Threat ledger pruned",
			zap.Int("callers_removed", removed),
			zap.Int("events_removed", keep))
	}
}

// Report summarises the audit log
func (l *Ledger) Report() domain.ThreatReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := domain.ThreatReport{
		TotalEvents:    len(l.events),
		EventsByType:   make(map[string]int),
		EventsByRisk:   make(map[domain.RiskLevel]int),
		TopSuspicious:  make([]domain.SuspiciousIdentifier, 0, topSuspicious),
		RecentEvents:   make([]domain.ThreatEvent, 0, recentEvents),
		TrackedCallers: len(l.callers),
	}

	for _, e := range l.events {
		report.EventsByType[e.Type]++
		report.EventsByRisk[e.RiskLevel]++
	}

	for i := len(l.events) - 1; i >= 0 && len(report.RecentEvents) < recentEvents; i-- {
		report.RecentEvents = append(report.RecentEvents, l.events[i])
	}

	callers := make([]*domain.SuspiciousIdentifier, 0, len(l.callers))
	for _, c := range l.callers {
		callers = append(callers, c)
	}
	sort.Slice(callers, func(i, j int) bool {
		if callers[i].Count == callers[j].Count {
			return callers[i].LastSeen.After(callers[j].LastSeen)
		}
		return callers[i].Count > callers[j].Count
	})
	for i := 0; i < len(callers) && i < topSuspicious; i++ {
		report.TopSuspicious = append(report.TopSuspicious, copyCaller(callers[i]))
	}

	return report
}

// Health reports elevated while any caller seen within the retention period
// has reached the repeat threshold
func (l *Ledger) Health() domain.ThreatHealth {
	cutoff := l.clock.Now().Add(-l.retention)

	l.mu.Lock()
	defer l.mu.Unlock()

	health := domain.ThreatHealth{
		Status:          domain.StatusHealthy,
		RepeatThreshold: l.threshold,
	}
	for _, c := range l.callers {
		if c.Count >= l.threshold && !c.LastSeen.Before(cutoff) {
			health.FlaggedCallers++
		}
	}
	for _, e := range l.events {
		if !e.Timestamp.Before(cutoff) {
			health.EventsInRetention++
		}
	}
	if health.FlaggedCallers > 0 {
		health.Status = domain.StatusElevated
	}

	return health
}

func (l *Ledger) riskFor(count int) domain.RiskLevel {
	switch {
	case count >= 2*l.threshold:
		return domain.RiskCritical
	case count >= l.threshold:
		return domain.RiskHigh
	default:
		return domain.RiskMedium
	}
}

func copyCaller(c *domain.SuspiciousIdentifier) domain.SuspiciousIdentifier {
	out := *c
	out.Events = append([]domain.ThreatEvent(nil), c.Events...)
	return out
}
