package threat

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"invoice-api/internal/domain"
	"invoice-api/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLedger(maxEvents int) (*Ledger, *clock.Manual, *observer.ObservedLogs) {
	cfg := testConfig()
	cfg.MaxEvents = maxEvents
	clk := clock.NewManual(epoch)
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLedger(cfg, clk, zap.New(core)), clk, logs
}

func event(identifier string) domain.ThreatEvent {
	return domain.ThreatEvent{
		Type:       domain.ThreatTypeSQLInjection,
		RiskLevel:  domain.RiskMedium,
		Identifier: identifier,
		Details:    []string{"Potential SQL injection in URL"},
	}
}

func TestLedger_RepeatThresholdAlerts(t *testing.T) {
	ledger, clk, logs := newTestLedger(100)

	var crossedAt []int
	for i := 1; i <= 10; i++ {
		if ledger.Record(event("ip:1.2.3.4:bot")) {
			crossedAt = append(crossedAt, i)
		}
		clk.Advance(time.Second)
	}

	assert.Equal(t, []int{5, 10}, crossedAt)
	alerts := logs.FilterMessage("Repeat offender threshold reached")
	require.Equal(t, 2, alerts.Len())
	assert.Equal(t, zapcore.WarnLevel, alerts.All()[0].Level)
}

func TestLedger_CallerRiskEscalates(t *testing.T) {
	ledger, _, _ := newTestLedger(100)
	id := "user:42"

	expected := map[int]domain.RiskLevel{
		1:  domain.RiskMedium,
		4:  domain.RiskMedium,
		5:  domain.RiskHigh,
		9:  domain.RiskHigh,
		10: domain.RiskCritical,
	}

	for i := 1; i <= 10; i++ {
		ledger.Record(event(id))
		if want, ok := expected[i]; ok {
			caller, found := ledger.Caller(id)
			require.True(t, found)
			assert.Equal(t, want, caller.RiskLevel, "after %d events", i)
		}
	}
}

func TestLedger_CallerKeepsLastTwentyEvents(t *testing.T) {
	ledger, clk, _ := newTestLedger(100)

	for i := 0; i < 25; i++ {
		ledger.Record(event("user:1"))
		clk.Advance(time.Second)
	}

	caller, ok := ledger.Caller("user:1")
	require.True(t, ok)
	assert.Equal(t, 25, caller.Count)
	assert.Len(t, caller.Events, maxEventsPerCaller)
	assert.Equal(t, epoch, caller.FirstSeen)
	assert.Equal(t, epoch.Add(24*time.Second), caller.LastSeen)
	assert.Equal(t, epoch.Add(5*time.Second), caller.Events[0].Timestamp)
}

func TestLedger_AuditLogCapped(t *testing.T) {
	ledger, clk, _ := newTestLedger(10)

	for i := 0; i < 15; i++ {
		ledger.Record(event(fmt.Sprintf("ip:10.0.0.%d:ua", i)))
		clk.Advance(time.Second)
	}

	report := ledger.Report()
	assert.Equal(t, 10, report.TotalEvents)
	assert.Equal(t, 15, report.TrackedCallers)
	require.NotEmpty(t, report.RecentEvents)
	assert.Equal(t, "ip:10.0.0.14:ua", report.RecentEvents[0].Identifier, "newest first")
	assert.Equal(t, "ip:10.0.0.5:ua", report.RecentEvents[len(report.RecentEvents)-1].Identifier, "oldest dropped")
}

func TestLedger_EventsGetIDs(t *testing.T) {
	ledger, _, _ := newTestLedger(10)

	ledger.Record(event("a"))
	ledger.Record(event("a"))

	report := ledger.Report()
	require.Len(t, report.RecentEvents, 2)
	assert.NotEmpty(t, report.RecentEvents[0].ID)
	assert.NotEqual(t, report.RecentEvents[0].ID, report.RecentEvents[1].ID)
	assert.Equal(t, epoch, report.RecentEvents[0].Timestamp)
}

func TestLedger_ReportRanksSuspicious(t *testing.T) {
	ledger, _, _ := newTestLedger(100)

	for i := 0; i < 3; i++ {
		ledger.Record(event("noisy"))
	}
	ledger.Record(event("quiet"))
	xss := event("quiet")
	xss.Type = domain.ThreatTypeXSS
	xss.RiskLevel = domain.RiskHigh
	ledger.Record(xss)
	for i := 0; i < 4; i++ {
		ledger.Record(event("loudest"))
	}

	report := ledger.Report()
	require.Len(t, report.TopSuspicious, 3)
	assert.Equal(t, "loudest", report.TopSuspicious[0].Identifier)
	assert.Equal(t, "noisy", report.TopSuspicious[1].Identifier)
	assert.Equal(t, 8, report.EventsByType[domain.ThreatTypeSQLInjection])
	assert.Equal(t, 1, report.EventsByRisk[domain.RiskHigh])
}

func TestLedger_HealthAndRetention(t *testing.T) {
	ledger, clk, _ := newTestLedger(100)

	assert.Equal(t, domain.StatusHealthy, ledger.Health().Status)

	for i := 0; i < 5; i++ {
		ledger.Record(event("attacker"))
	}
	ledger.Record(event("one-off"))

	health := ledger.Health()
	assert.Equal(t, domain.StatusElevated, health.Status)
	assert.Equal(t, 1, health.FlaggedCallers)
	assert.Equal(t, 6, health.EventsInRetention)
	assert.Equal(t, 5, health.RepeatThreshold)

	clk.Advance(2 * time.Hour)
	assert.Equal(t, domain.StatusHealthy, ledger.Health().Status, "flagged caller is outside retention")

	ledger.Sweep()
	report := ledger.Report()
	assert.Equal(t, 0, report.TrackedCallers)
	assert.Equal(t, 0, report.TotalEvents)
}

func TestLedger_AlertsThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.RepeatThreshold = 1
	core, logs := observer.New(zapcore.DebugLevel)
	ledger := NewLedger(cfg, clock.NewManual(epoch), zap.New(core))

	for i := 0; i < 20; i++ {
		assert.True(t, ledger.Record(event(fmt.Sprintf("caller-%d", i))))
	}

	assert.Equal(t, 5, logs.FilterMessage("Repeat offender threshold reached").Len())
	assert.Equal(t, 15, logs.FilterMessage("Repeat offender alert throttled").Len())
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	ledger, _, _ := newTestLedger(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ledger.Record(event(fmt.Sprintf("caller-%d", i)))
				_ = ledger.Report()
			}
		}(i)
	}
	wg.Wait()

	report := ledger.Report()
	assert.Equal(t, 50, report.TotalEvents)
	assert.Equal(t, 10, report.TrackedCallers)
	for _, c := range report.TopSuspicious {
		assert.Equal(t, 20, c.Count)
	}
}
