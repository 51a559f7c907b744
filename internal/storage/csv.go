package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dyike/GemScreener/models"
)

var csvHeaders = []string{
	"rank", "symbol", "sector", "score", "signals",
	"entry_date", "entry_price", "rsi", "min_rsi", "peak_volume_ratio",
	"classification", "max_gain_pct", "max_drawdown_pct", "days_to_peak", "pump_and_dump",
}

// ExportCSV writes the selected results of run, one row per ticker, with the
// forward outcome columns left empty for untracked runs.
func ExportCSV(path string, run *models.Run) error {
	if err := ValidateRun(run); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	outcomes := make(map[string]models.ForwardOutcome, len(run.Outcomes))
	for _, o := range run.Outcomes {
		outcomes[o.Symbol] = o
	}

	w := csv.NewWriter(file)
	if err := w.Write(csvHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for _, r := range run.Results {
		if err := w.Write(csvRow(r, outcomes)); err != nil {
			return fmt.Errorf("write row %s: %w", r.Ticker.Symbol, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}
	return file.Close()
}

func csvRow(r models.ScreeningResult, outcomes map[string]models.ForwardOutcome) []string {
	var fired []string
	for _, s := range r.Breakdown.Signals {
		if s.Points > 0 {
			fired = append(fired, s.Signal)
		}
	}

	row := []string{
		strconv.Itoa(r.Rank),
		r.Ticker.Symbol,
		r.Ticker.Sector,
		formatFloat(r.Score),
		strings.Join(fired, ";"),
		r.EntryDate.Format(models.DateLayout),
		r.EntryPrice.String(),
		formatFloat(r.Indicators.RSI),
		formatFloat(r.Indicators.MinRSI),
		formatFloat(r.Indicators.PeakVolumeRatio),
	}

	o, ok := outcomes[r.Ticker.Symbol]
	if !ok {
		return append(row, "", "", "", "", "")
	}
	return append(row,
		string(o.Classification),
		formatFloat(o.MaxGainPct),
		formatFloat(o.MaxDrawdownPct),
		strconv.Itoa(o.DaysToPeak),
		strconv.FormatBool(o.PumpAndDump),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
