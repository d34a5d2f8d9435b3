package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"jupwatcher/internal/state"
)

// Export renders the recent-price buffer as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, err := a.stateStore()
	if err != nil {
		return err
	}

	samples := store.LoadStatus().LatestPrices
	if len(samples) == 0 {
		a.Logger.Info().Msg("price buffer is empty, nothing to export")
		return nil
	}

	a.Logger.Info().Int("samples", len(samples)).Msg("exporting price buffer")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, samples); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, samples); err != nil {
			return err
		}
	}

	return nil
}

func writeSamplesCSV(path string, samples []state.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"timestamp", "buy_price", "sell_price"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		record := []string{
			sample.Timestamp,
			formatPrice(sample.BuyPrice),
			formatPrice(sample.SellPrice),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []state.PriceSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var buyX, sellX []time.Time
	var buyY, sellY []float64

	for _, sample := range samples {
		ts, err := state.CoerceUTC(sample.Timestamp)
		if err != nil {
			continue
		}
		if sample.BuyPrice != nil {
			buyX = append(buyX, ts)
			buyY = append(buyY, *sample.BuyPrice)
		}
		if sample.SellPrice != nil {
			sellX = append(sellX, ts)
			sellY = append(sellY, *sample.SellPrice)
		}
	}

	var series []chart.Series
	if len(buyX) > 1 {
		series = append(series, chart.TimeSeries{Name: "Buy", XValues: buyX, YValues: buyY})
	}
	if len(sellX) > 1 {
		series = append(series, chart.TimeSeries{Name: "Sell", XValues: sellX, YValues: sellY})
	}
	if len(series) == 0 {
		return errors.New("not enough usable samples to plot")
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.8f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD/token)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
