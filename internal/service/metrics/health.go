package metrics

import (
	"fmt"

	"invoice-api/internal/domain"
)

// HealthCheck compares the health window aggregates against the configured
// thresholds
func (a *Aggregator) HealthCheck() domain.MetricsHealth {
	stats := a.GetStats(a.cfg.HealthWindow)
	health := domain.MetricsHealth{
		Status:          domain.StatusHealthy,
		Issues:          []string{},
		Recommendations: []string{},
		Stats:           stats,
	}

	flag := func(issue, recommendation string) {
		health.Issues = append(health.Issues, issue)
		health.Recommendations = append(health.Recommendations, recommendation)
	}

	if stats.Requests.Count > 0 && stats.Requests.AvgMs > a.cfg.SlowRequestMs {
		flag(fmt.Sprintf("High average response time: %.0fms", stats.Requests.AvgMs),
			"Profile the slowest endpoints and add caching where lookups repeat")
	}
	if stats.DBQueries.Count > 0 && stats.DBQueries.AvgMs > a.cfg.SlowQueryMs {
		flag(fmt.Sprintf("Slow database queries: %.0fms average", stats.DBQueries.AvgMs),
			"Review query plans and add missing indexes")
	}
	if a.cfg.MaxHeapMB > 0 && stats.Memory.HeapAllocMB > a.cfg.MaxHeapMB {
		flag(fmt.Sprintf("High memory usage: %.0fMB heap", stats.Memory.HeapAllocMB),
			"Check for leaks and reduce cache or buffer sizes")
	}
	if a.cfg.MaxErrors > 0 && stats.Errors.Count > a.cfg.MaxErrors {
		flag(fmt.Sprintf("High error count: %d errors in the last %s", stats.Errors.Count, stats.Window),
			"Inspect the error breakdown and recent logs")
	}

	if len(health.Issues) > 0 {
		health.Status = domain.StatusPerformanceIssues
	}

	return health
}
