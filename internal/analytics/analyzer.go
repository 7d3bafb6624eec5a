// internal/analytics/analyzer.go
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Severity levels for anomaly observations.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Config holds the tunable constants of the analytics engine. All values are
// injected through NewEngine; there is no package-level mutable state.
type Config struct {
	Alpha              float64 `mapstructure:"ema_alpha"`         // EMA smoothing factor
	AnomalyThreshold   float64 `mapstructure:"anomaly_threshold"` // |z| above which a point is flagged
	WindowSize         int     `mapstructure:"window_size"`       // rolling baseline window
	TrendPoints        int     `mapstructure:"trend_points"`      // recent points used for the forecast trend
	MinForecastHistory int     `mapstructure:"min_history"`       // below this, Forecast degrades to flat
	DefaultSeasonalStd float64 `mapstructure:"default_seasonal_std"`
	DefaultBaseline    float64 `mapstructure:"default_baseline"`
	FlatBand           float64 `mapstructure:"flat_band"` // half-width of the degraded flat forecast band
}

// DefaultConfig returns the engine constants used in production.
func DefaultConfig() Config {
	return Config{
		Alpha:              0.3,
		AnomalyThreshold:   2.5,
		WindowSize:         24,
		TrendPoints:        6,
		MinForecastHistory: 24,
		DefaultSeasonalStd: 10.0,
		DefaultBaseline:    50.0,
		FlatBand:           15.0,
	}
}

// Engine computes streaming time-series analytics. Every method is a pure
// function over its inputs; the engine holds no state across calls, so it is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = 0.3
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = 2.5
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 24
	}
	if cfg.TrendPoints <= 0 {
		cfg.TrendPoints = 6
	}
	if cfg.MinForecastHistory <= 0 {
		cfg.MinForecastHistory = 24
	}
	if cfg.DefaultSeasonalStd <= 0 {
		cfg.DefaultSeasonalStd = 10.0
	}
	if cfg.DefaultBaseline <= 0 {
		cfg.DefaultBaseline = 50.0
	}
	if cfg.FlatBand <= 0 {
		cfg.FlatBand = 15.0
	}
	return &Engine{cfg: cfg}
}

// Config returns the constants the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// AnomalyObservation is the result of checking one point against its rolling
// baseline.
type AnomalyObservation struct {
	IsAnomaly bool    `json:"is_anomaly"`
	ZScore    float64 `json:"z_score"`
	Expected  float64 `json:"expected_value"`
	Actual    float64 `json:"actual_value"`
	Severity  string  `json:"severity"`
}

// ArrivalRateResult holds the Poisson MLE rate and derived statistics.
type ArrivalRateResult struct {
	Lambda                  float64 `json:"lambda"`
	ExpectedPerHour         float64 `json:"expected_per_hour"`
	StdDev                  float64 `json:"std_dev"`
	MeanInterArrivalMinutes float64 `json:"mean_inter_arrival_min"`
}

// ForecastPoint is one step of a short-horizon occupancy forecast.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower_bound"`
	Upper     float64   `json:"upper_bound"`
}

// PeakHour is one entry of a peak-hour ranking.
type PeakHour struct {
	Hour    int     `json:"hour"`
	AvgRate float64 `json:"avg_occupancy_rate"`
	Label   string  `json:"label"`
}

// EMA computes the exponential moving average of xs with smoothing factor
// alpha:
//
//	ema[0] = xs[0]
//	ema[t] = alpha*xs[t] + (1-alpha)*ema[t-1]
//
// Higher alpha responds faster to changes, lower alpha smooths harder.
// An empty input yields an empty output.
func EMA(xs []float64, alpha float64) []float64 {
	if len(xs) == 0 {
		return []float64{}
	}
	ema := make([]float64, len(xs))
	ema[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		ema[i] = alpha*xs[i] + (1-alpha)*ema[i-1]
	}
	return ema
}

// Smooth applies EMA with the engine's configured alpha.
func (e *Engine) Smooth(xs []float64) []float64 {
	return EMA(xs, e.cfg.Alpha)
}

// DetectAnomalies flags points whose rolling z-score exceeds the configured
// threshold. The baseline for index i is the causal window
// xs[max(0,i-window) .. i-1]; the current point never feeds its own baseline.
// Points with fewer than two prior window points are reported non-anomalous
// with expected == actual.
func (e *Engine) DetectAnomalies(xs []float64) []AnomalyObservation {
	results := make([]AnomalyObservation, 0, len(xs))
	for i := range xs {
		start := i - e.cfg.WindowSize
		if start < 0 {
			start = 0
		}
		window := xs[start:i]
		if len(window) < 2 {
			results = append(results, AnomalyObservation{
				Expected: xs[i],
				Actual:   xs[i],
				Severity: SeverityLow,
			})
			continue
		}

		mean := meanOf(window)
		std := stdOf(window, mean)
		if std < 1e-6 {
			std = 1e-6 // zero-variance floor
		}
		z := (xs[i] - mean) / std

		obs := AnomalyObservation{
			IsAnomaly: math.Abs(z) > e.cfg.AnomalyThreshold,
			ZScore:    round4(z),
			Expected:  round2(mean),
			Actual:    xs[i],
			Severity:  SeverityLow,
		}
		if obs.IsAnomaly {
			switch {
			case math.Abs(z) > 4.0:
				obs.Severity = SeverityHigh
			case math.Abs(z) > 3.0:
				obs.Severity = SeverityMedium
			}
		}
		results = append(results, obs)
	}
	return results
}

// ArrivalRate estimates the Poisson arrival rate from event timestamps.
// The MLE is count over elapsed time, with the elapsed time floored at one
// minute. Fewer than two timestamps yields an all-zero result.
func (e *Engine) ArrivalRate(timestamps []time.Time) ArrivalRateResult {
	if len(timestamps) < 2 {
		return ArrivalRateResult{}
	}

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Minutes())
	}

	elapsedHours := sorted[len(sorted)-1].Sub(sorted[0]).Hours()
	if elapsedHours < 1.0/60 {
		elapsedHours = 1.0 / 60 // one-minute floor
	}
	lambda := float64(len(sorted)) / elapsedHours

	return ArrivalRateResult{
		Lambda:                  round4(lambda),
		ExpectedPerHour:         round2(lambda),
		StdDev:                  round4(math.Sqrt(lambda)),
		MeanInterArrivalMinutes: round2(meanOf(gaps)),
	}
}

// Forecast predicts occupancy rates for the next horizonHours hours starting
// from now. The model is a deliberately simple heuristic: per-hour-of-day
// seasonal averages plus a decayed linear trend over the most recent points,
// with a 95% band from the per-hour standard deviation. With fewer than
// MinForecastHistory points it degrades to a flat forecast at the last
// observed rate (DefaultBaseline when there is no history) with a fixed band.
func (e *Engine) Forecast(rates []float64, timestamps []time.Time, now time.Time, horizonHours int) []ForecastPoint {
	if horizonHours <= 0 {
		return []ForecastPoint{}
	}

	if len(rates) < e.cfg.MinForecastHistory {
		current := e.cfg.DefaultBaseline
		if len(rates) > 0 {
			current = rates[len(rates)-1]
		}
		out := make([]ForecastPoint, 0, horizonHours)
		for i := 0; i < horizonHours; i++ {
			out = append(out, ForecastPoint{
				Timestamp: now.Add(time.Duration(i) * time.Hour),
				Predicted: current,
				Lower:     clip(current-e.cfg.FlatBand, 0, 100),
				Upper:     clip(current+e.cfg.FlatBand, 0, 100),
			})
		}
		return out
	}

	// Seasonal component: fixed hour-of-day buckets.
	var sums, sumSquares [24]float64
	var counts [24]int
	n := len(rates)
	if len(timestamps) < n {
		n = len(timestamps)
	}
	for i := 0; i < n; i++ {
		h := timestamps[i].Hour()
		sums[h] += rates[i]
		sumSquares[h] += rates[i] * rates[i]
		counts[h]++
	}
	var seasonalAvg, seasonalStd [24]float64
	for h := 0; h < 24; h++ {
		switch {
		case counts[h] == 0:
			seasonalAvg[h] = e.cfg.DefaultBaseline
			seasonalStd[h] = e.cfg.DefaultSeasonalStd
		case counts[h] == 1:
			seasonalAvg[h] = sums[h]
			seasonalStd[h] = e.cfg.DefaultSeasonalStd
		default:
			mean := sums[h] / float64(counts[h])
			seasonalAvg[h] = mean
			variance := sumSquares[h]/float64(counts[h]) - mean*mean
			if variance < 0 {
				variance = 0
			}
			seasonalStd[h] = math.Sqrt(variance)
		}
	}

	// Trend component: slope of a least-squares line over the last TrendPoints
	// rates, decayed by half per forecast step.
	recent := rates
	if len(recent) > e.cfg.TrendPoints {
		recent = recent[len(recent)-e.cfg.TrendPoints:]
	}
	slope := linearSlope(recent)

	out := make([]ForecastPoint, 0, horizonHours)
	for i := 1; i <= horizonHours; i++ {
		future := now.Add(time.Duration(i) * time.Hour)
		h := future.Hour()

		predicted := clip(seasonalAvg[h]+slope*float64(i)*0.5, 0, 100)
		halfWidth := seasonalStd[h] * 1.96 // 95% confidence interval

		out = append(out, ForecastPoint{
			Timestamp: future,
			Predicted: round2(predicted),
			Lower:     round2(clip(predicted-halfWidth, 0, 100)),
			Upper:     round2(clip(predicted+halfWidth, 0, 100)),
		})
	}
	return out
}

// PeakHours ranks hours of the day by average occupancy rate, descending,
// and returns the top n.
func (e *Engine) PeakHours(rates []float64, timestamps []time.Time, topN int) []PeakHour {
	var sums [24]float64
	var counts [24]int
	n := len(rates)
	if len(timestamps) < n {
		n = len(timestamps)
	}
	for i := 0; i < n; i++ {
		h := timestamps[i].Hour()
		sums[h] += rates[i]
		counts[h]++
	}

	ranked := make([]PeakHour, 0, 24)
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		avg := sums[h] / float64(counts[h])
		ranked = append(ranked, PeakHour{
			Hour:    h,
			AvgRate: round2(avg),
			Label:   hourLabel(h),
		})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].AvgRate != ranked[j].AvgRate {
			return ranked[i].AvgRate > ranked[j].AvgRate
		}
		return ranked[i].Hour < ranked[j].Hour
	})

	if topN < 0 {
		topN = 0
	}
	if topN > len(ranked) {
		topN = len(ranked)
	}
	return ranked[:topN]
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d:00 - %02d:00", h, (h+1)%24)
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdOf is the population standard deviation.
func stdOf(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// linearSlope fits y = a + b*x over x = 0..len(ys)-1 and returns b.
func linearSlope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := float64(n)*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (float64(n)*sumXY - sumX*sumY) / denom
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
