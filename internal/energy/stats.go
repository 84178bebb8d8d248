package energy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"rg-bench/internal/config"
)

// MetricStats aggregates one metric across runs. Values keep run order.
type MetricStats struct {
	Values []float64 `json:"values"`
	Mean   float64   `json:"mean"`
	Median float64   `json:"median"`
	Stddev float64   `json:"stddev"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
	// stddev/mean*100; 0 when the mean is 0
	CoefficientOfVariation float64 `json:"coefficient_of_variation"`
}

// AggregateStatistics combines all per-run reports of a session.
type AggregateStatistics struct {
	Runs           int                    `json:"runs"`
	Framework      string                 `json:"framework"`
	Language       string                 `json:"language"`
	Timestamp      string                 `json:"timestamp"`
	Statistics     map[string]MetricStats `json:"statistics"`
	IndividualRuns []*MeasurementReport   `json:"individual_runs"`
}

// Combine computes per-metric statistics over the run reports, in run
// order. An empty list or a missing report is an error; partial aggregates
// are never produced.
func Combine(reports []*MeasurementReport, units config.UnitsConfig) (*AggregateStatistics, error) {
	if len(reports) == 0 {
		return nil, fmt.Errorf("no run reports to aggregate")
	}
	for i, r := range reports {
		if r == nil {
			return nil, fmt.Errorf("report for run %d is missing", i+1)
		}
	}

	eu, cu, du := units.Energy, units.Emissions, units.Duration
	metrics := map[string]func(r *MeasurementReport) float64{
		"energy_" + eu:     func(r *MeasurementReport) float64 { return ConvertEnergy(r.Energy.TotalWattHours, eu) },
		"cpu_energy_" + eu: func(r *MeasurementReport) float64 { return ConvertEnergy(r.Energy.CPUWattHours, eu) },
		"ram_energy_" + eu: func(r *MeasurementReport) float64 { return ConvertEnergy(r.Energy.RAMWattHours, eu) },
		"gpu_energy_" + eu: func(r *MeasurementReport) float64 { return ConvertEnergy(r.Energy.GPUWattHours, eu) },
		"emissions_" + cu + "CO2e": func(r *MeasurementReport) float64 {
			return ConvertEmissions(r.Emissions.MgCarbon, cu)
		},
		"duration_" + du: func(r *MeasurementReport) float64 { return ConvertDuration(r.DurationSeconds, du) },
	}

	stats := make(map[string]MetricStats, len(metrics))
	for key, extract := range metrics {
		values := make([]float64, len(reports))
		for i, r := range reports {
			values[i] = extract(r)
		}
		stats[key] = describe(values)
	}

	return &AggregateStatistics{
		Runs:           len(reports),
		Framework:      reports[0].Framework,
		Language:       reports[0].Language,
		Timestamp:      time.Now().Format(time.RFC3339),
		Statistics:     stats,
		IndividualRuns: reports,
	}, nil
}

func describe(values []float64) MetricStats {
	m := mean(values)
	sd := stddev(values, m)

	cv := 0.0
	if m != 0 {
		cv = sd / m * 100
	}

	return MetricStats{
		Values:                 values,
		Mean:                   m,
		Median:                 median(values),
		Stddev:                 sd,
		Min:                    minOf(values),
		Max:                    maxOf(values),
		CoefficientOfVariation: cv,
	}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// population standard deviation
func stddev(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)))
}

func minOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
