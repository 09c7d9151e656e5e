package performance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/coinbot-kr/coinbot/models"
)

// RenderEquityChart writes an interactive equity-curve HTML page built
// from the tracked trades. Returns the written file path.
func (t *Tracker) RenderEquityChart(dir string) (string, error) {
	t.mu.RLock()
	trades := make([]models.TradeResult, len(t.trades))
	copy(trades, t.trades)
	t.mu.RUnlock()

	if len(trades) == 0 {
		return "", fmt.Errorf("no trades to chart")
	}
	sort.Slice(trades, func(i, j int) bool {
		return trades[i].ExitTime.Before(trades[j].ExitTime)
	})

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Equity Curve",
			Subtitle: fmt.Sprintf("%d trades", len(trades)),
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "time",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: 100},
			opts.DataZoom{Type: "inside", Start: 0, End: 100},
		),
	)

	equitySeries := make([]opts.LineData, 0, len(trades))
	drawdownSeries := make([]opts.LineData, 0, len(trades))

	value := t.initialCapital
	peak := value
	for _, tr := range trades {
		value += tr.ProfitAmount
		if value > peak {
			peak = value
		}
		dd := 0.0
		if peak > 0 {
			dd = (value - peak) / peak * 100
		}
		equitySeries = append(equitySeries,
			opts.LineData{Value: []interface{}{tr.ExitTime, value}})
		drawdownSeries = append(drawdownSeries,
			opts.LineData{Value: []interface{}{tr.ExitTime, dd}})
	}

	line.AddSeries("portfolio KRW", equitySeries)
	line.AddSeries("drawdown %", drawdownSeries)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating chart dir: %w", err)
	}
	path := filepath.Join(dir,
		fmt.Sprintf("equity_%s.html", time.Now().UTC().Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating chart file: %w", err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return "", fmt.Errorf("rendering chart: %w", err)
	}
	t.logger.Info().Str("path", path).Msg("equity chart rendered")
	return path, nil
}
