package metrics

import (
	"fmt"
	"sort"
	"strconv"

	"invoice-api/internal/domain"
)

const topN = 5

// errorRateThreshold is the share of 5xx responses above which a
// recommendation is emitted
const errorRateThreshold = 0.05

// GetInsights profiles the samples inside the health window: the slowest
// endpoints and queries, the status class distribution and recommendations
func (a *Aggregator) GetInsights() domain.Insights {
	window := a.cfg.HealthWindow
	requests, queries, _ := a.snapshot(a.clock.Now().Add(-window))

	endpoints, distribution, serverErrors := profileEndpoints(requests)
	slowQueries := profileQueries(queries)

	insights := domain.Insights{
		Window:             window,
		SlowestEndpoints:   endpoints,
		SlowestQueries:     slowQueries,
		StatusDistribution: distribution,
		Recommendations:    []string{},
	}
	if len(requests) > 0 {
		insights.ErrorRate = round(float64(serverErrors) / float64(len(requests)))
	}

	for _, e := range endpoints {
		if e.AvgMs > a.cfg.SlowRequestMs {
			insights.Recommendations = append(insights.Recommendations,
				fmt.Sprintf("Optimize %s: average response time %.0fms", e.Endpoint, e.AvgMs))
		}
	}
	for _, q := range slowQueries {
		if q.AvgMs > a.cfg.SlowQueryMs {
			insights.Recommendations = append(insights.Recommendations,
				fmt.Sprintf("Review query %s: average %.0fms, consider an index", q.Operation, q.AvgMs))
		}
	}
	if insights.ErrorRate > errorRateThreshold {
		insights.Recommendations = append(insights.Recommendations,
			fmt.Sprintf("Server error rate is %.0f%%, inspect recent error logs", insights.ErrorRate*100))
	}

	return insights
}

type endpointAccumulator struct {
	count  int
	sum    float64
	max    float64
	errors int
}

func profileEndpoints(requests []domain.Sample) ([]domain.EndpointInsight, map[string]int, int) {
	byEndpoint := make(map[string]*endpointAccumulator)
	distribution := make(map[string]int)
	serverErrors := 0

	for _, s := range requests {
		endpoint := s.Meta["method"] + " " + s.Meta["path"]
		acc, ok := byEndpoint[endpoint]
		if !ok {
			acc = &endpointAccumulator{}
			byEndpoint[endpoint] = acc
		}
		acc.count++
		acc.sum += s.DurationMs
		acc.max = max(acc.max, s.DurationMs)

		status, _ := strconv.Atoi(s.Meta["status"])
		distribution[statusClass(status)]++
		if status >= 500 {
			acc.errors++
			serverErrors++
		}
	}

	insights := make([]domain.EndpointInsight, 0, len(byEndpoint))
	for endpoint, acc := range byEndpoint {
		insights = append(insights, domain.EndpointInsight{
			Endpoint:  endpoint,
			Count:     acc.count,
			AvgMs:     round(acc.sum / float64(acc.count)),
			MaxMs:     acc.max,
			ErrorRate: round(float64(acc.errors) / float64(acc.count)),
		})
	}
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].AvgMs == insights[j].AvgMs {
			return insights[i].Endpoint < insights[j].Endpoint
		}
		return insights[i].AvgMs > insights[j].AvgMs
	})
	if len(insights) > topN {
		insights = insights[:topN]
	}

	return insights, distribution, serverErrors
}

func profileQueries(queries []domain.Sample) []domain.QueryInsight {
	type accumulator struct {
		count int
		sum   float64
		max   float64
	}
	byOperation := make(map[string]*accumulator)

	for _, s := range queries {
		op := s.Meta["operation"]
		if table := s.Meta["table"]; table != "" {
			op += " " + table
		}
		acc, ok := byOperation[op]
		if !ok {
			acc = &accumulator{}
			byOperation[op] = acc
		}
		acc.count++
		acc.sum += s.DurationMs
		acc.max = max(acc.max, s.DurationMs)
	}

	insights := make([]domain.QueryInsight, 0, len(byOperation))
	for op, acc := range byOperation {
		insights = append(insights, domain.QueryInsight{
			Operation: op,
			Count:     acc.count,
			AvgMs:     round(acc.sum / float64(acc.count)),
			MaxMs:     acc.max,
		})
	}
	sort.Slice(insights, func(i, j int) bool {
		if insights[i].AvgMs == insights[j].AvgMs {
			return insights[i].Operation < insights[j].Operation
		}
		return insights[i].AvgMs > insights[j].AvgMs
	})
	if len(insights) > topN {
		insights = insights[:topN]
	}

	return insights
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
