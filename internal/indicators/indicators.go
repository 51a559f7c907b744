// Package indicators computes the scalar technical indicators used by the screener.
package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/dyike/GemScreener/models"
)

// ErrInsufficientData is returned when a series is shorter than the period needs.
var ErrInsufficientData = errors.New("insufficient data")

// Series holds the columns of a bar window as float64 for arithmetic.
type Series struct {
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// FromBars converts bars into float columns.
func FromBars(bars []models.Bar) Series {
	s := Series{
		Closes:  make([]float64, len(bars)),
		Highs:   make([]float64, len(bars)),
		Lows:    make([]float64, len(bars)),
		Volumes: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Closes[i] = b.Close.InexactFloat64()
		s.Highs[i] = b.High.InexactFloat64()
		s.Lows[i] = b.Low.InexactFloat64()
		s.Volumes[i] = float64(b.Volume)
	}
	return s
}

// RSI returns the relative strength index over the last period changes, using a
// simple mean of gains and losses. It is 100 when the mean loss is zero.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi needs %d closes, have %d: %w", period+1, len(closes), ErrInsufficientData)
	}
	return rsiAt(closes, len(closes)-1, period), nil
}

// RSISeries returns RSI at every index; indexes before period are zero.
func RSISeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("rsi needs %d closes, have %d: %w", period+1, len(closes), ErrInsufficientData)
	}
	out := make([]float64, len(closes))
	for i := period; i < len(closes); i++ {
		out[i] = rsiAt(closes, i, period)
	}
	return out, nil
}

func rsiAt(closes []float64, end, period int) float64 {
	var gain, loss float64
	for i := end - period + 1; i <= end; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return clamp(100-(100/(1+rs)), 0, 100)
}

// SMA is the mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma period must be positive, got %d", period)
	}
	if len(values) < period {
		return 0, fmt.Errorf("sma needs %d values, have %d: %w", period, len(values), ErrInsufficientData)
	}
	return mean(values[len(values)-period:]), nil
}

// AverageVolume is the mean of the period volumes preceding the last one.
func AverageVolume(volumes []float64, period int) (float64, error) {
	return averageBefore(volumes, len(volumes)-1, period)
}

// VolumeRatio is the last volume divided by AverageVolume. Zero when the
// average is zero.
func VolumeRatio(volumes []float64, period int) (float64, error) {
	return volumeRatioAt(volumes, len(volumes)-1, period)
}

// PeakVolumeRatio returns the highest volume ratio among the last window bars.
func PeakVolumeRatio(volumes []float64, period, window int) (float64, error) {
	last := len(volumes) - 1
	if last < period {
		return 0, fmt.Errorf("volume ratio needs %d values, have %d: %w", period+1, len(volumes), ErrInsufficientData)
	}
	start := last - window + 1
	if start < period {
		start = period
	}
	peak := 0.0
	for i := start; i <= last; i++ {
		r, err := volumeRatioAt(volumes, i, period)
		if err != nil {
			return 0, err
		}
		peak = math.Max(peak, r)
	}
	return peak, nil
}

// MinRSI returns the lowest RSI among the last window bars.
func MinRSI(closes []float64, period, window int) (float64, error) {
	series, err := RSISeries(closes, period)
	if err != nil {
		return 0, err
	}
	last := len(closes) - 1
	start := last - window + 1
	if start < period {
		start = period
	}
	low := 100.0
	for i := start; i <= last; i++ {
		low = math.Min(low, series[i])
	}
	return low, nil
}

func volumeRatioAt(volumes []float64, idx, period int) (float64, error) {
	avg, err := averageBefore(volumes, idx, period)
	if err != nil {
		return 0, err
	}
	if avg == 0 {
		return 0, nil
	}
	return volumes[idx] / avg, nil
}

func averageBefore(values []float64, idx, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("volume period must be positive, got %d", period)
	}
	if idx < period {
		return 0, fmt.Errorf("average needs %d prior values, have %d: %w", period, idx, ErrInsufficientData)
	}
	return mean(values[idx-period : idx]), nil
}

// HighLow returns the highest high and lowest low of the series.
func HighLow(highs, lows []float64) (high, low float64, err error) {
	if len(highs) == 0 || len(lows) == 0 {
		return 0, 0, ErrInsufficientData
	}
	high, low = highs[0], lows[0]
	for _, h := range highs {
		high = math.Max(high, h)
	}
	for _, l := range lows {
		low = math.Min(low, l)
	}
	return high, low, nil
}

// RangePosition places price within [low, high] as a value in [0,1]. A
// degenerate range yields 0.5.
func RangePosition(price, low, high float64) float64 {
	if high <= low {
		return 0.5
	}
	return clamp((price-low)/(high-low), 0, 1)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
