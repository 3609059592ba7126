package metrics

import (
	"math"
	"sort"

	"invoice-api/internal/domain"
)

// sanitize coerces malformed numeric input to 0
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// percentile returns the nearest-rank p-th percentile of an ascending slice
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

func aggregate(samples []domain.Sample) domain.Aggregate {
	if len(samples) == 0 {
		return domain.Aggregate{}
	}

	durations := make([]float64, len(samples))
	sum := 0.0
	for i, s := range samples {
		durations[i] = s.DurationMs
		sum += s.DurationMs
	}
	sort.Float64s(durations)

	return domain.Aggregate{
		Count: len(durations),
		AvgMs: round(sum / float64(len(durations))),
		MinMs: durations[0],
		MaxMs: durations[len(durations)-1],
		P50Ms: percentile(durations, 50),
		P95Ms: percentile(durations, 95),
		P99Ms: percentile(durations, 99),
	}
}

// round keeps two decimals
func round(v float64) float64 {
	return math.Round(v*100) / 100
}
