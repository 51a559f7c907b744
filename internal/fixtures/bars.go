// Package fixtures builds synthetic bar series for tests.
package fixtures

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dyike/GemScreener/models"
)

// Start is the date of the first bar of every fixture series.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Series builds n daily bars from close prices in thousandths of a dollar.
// High and low sit spread thousandths around the close.
func Series(closes []int64, volumes []int64, spread int64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Date:   Start.AddDate(0, 0, i),
			Open:   decimal.New(c, -3),
			High:   decimal.New(c+spread, -3),
			Low:    decimal.New(c-spread, -3),
			Close:  decimal.New(c, -3),
			Volume: volumes[i],
		}
	}
	return bars
}

// Spike is 90 bars: choppy around $2.00, a 14-day slide that bottoms the RSI
// on day 80, a slow recovery, and one 10x volume bar on day 85.
func Spike() []models.Bar {
	closes := make([]int64, 90)
	volumes := make([]int64, 90)
	price := int64(2000)
	for i := range closes {
		switch {
		case i == 0:
		case i < 66:
			if i%2 == 1 {
				price += 20
			} else {
				price -= 20
			}
		case i < 80:
			price -= 30
		default:
			price += 10
		}
		closes[i] = price
		volumes[i] = 100_000
	}
	volumes[84] = 1_000_000
	return Series(closes, volumes, 20)
}

// Flat is 90 bars of steady volume whose RSI holds at 55 near its highs.
func Flat() []models.Bar {
	closes := make([]int64, 90)
	volumes := make([]int64, 90)
	price := int64(2000)
	for i := range closes {
		if i > 0 {
			if i%2 == 1 {
				price += 22
			} else {
				price -= 18
			}
		}
		closes[i] = price
		volumes[i] = 100_000
	}
	return Series(closes, volumes, 5)
}

// Forward builds bars starting the day after from with the given highs and
// lows in thousandths; closes sit at the midpoint.
func Forward(from time.Time, highs, lows []int64) []models.Bar {
	bars := make([]models.Bar, len(highs))
	for i := range highs {
		mid := (highs[i] + lows[i]) / 2
		bars[i] = models.Bar{
			Date:   from.AddDate(0, 0, i+1),
			Open:   decimal.New(mid, -3),
			High:   decimal.New(highs[i], -3),
			Low:    decimal.New(lows[i], -3),
			Close:  decimal.New(mid, -3),
			Volume: 50_000,
		}
	}
	return bars
}
