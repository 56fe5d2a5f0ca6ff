package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"

	"skindrop/internal/catalog"
)

// Export performs a one-shot feed fetch and renders the current catalog
// as CSV and/or a price-curve PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	if opts.MaxPoints <= 0 {
		opts.MaxPoints = a.Config.Export.MaxDataPoints
	}

	client := a.newMarketClient()
	builder := a.newBuilder()

	records, err := client.FetchPrices(ctx)
	if err != nil {
		return err
	}

	items := builder.Build(records)
	if len(items) == 0 {
		a.Logger.Info().Msg("feed returned no valid items")
		return nil
	}

	downsampled := downsampleItems(items, opts.MaxPoints)
	a.Logger.Info().Int("total", len(items)).Int("exported", len(downsampled)).Msg("exporting catalog")

	if opts.CSVPath != "" {
		if err := writeCatalogCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePriceCurvePNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleItems(items []catalog.Item, max int) []catalog.Item {
	if max <= 0 || len(items) <= max {
		return items
	}

	result := make([]catalog.Item, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeCatalogCSV(path string, items []catalog.Item) error {
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

	header := []string{"product_id", "display_id", "name", "price_rub", "price_stars", "price_usd", "quantity"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, item := range items {
		record := []string{
			item.ProductID,
			strconv.FormatInt(item.DisplayID, 10),
			item.Name,
			item.PriceLocal.String(),
			strconv.FormatInt(item.PriceStars, 10),
			item.PriceUSD.StringFixed(2),
			strconv.Itoa(item.Quantity),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writePriceCurvePNG charts prices by ascending rank, which makes the
// cheap-item pool and the long tail visible at a glance.
func writePriceCurvePNG(path string, items []catalog.Item) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	sorted := make([]catalog.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriceLocal.LessThan(sorted[j].PriceLocal)
	})

	rank := make([]float64, len(sorted))
	usd := make([]float64, len(sorted))
	stars := make([]float64, len(sorted))
	for i, item := range sorted {
		rank[i] = float64(i + 1)
		usd[i] = item.PriceUSD.InexactFloat64()
		stars[i] = float64(item.PriceStars)
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name: "Item rank (cheapest first)",
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Price (stars)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "USD",
				XValues: rank,
				YValues: usd,
			},
			chart.ContinuousSeries{
				Name:    "Stars",
				XValues: rank,
				YValues: stars,
				YAxis:   chart.YAxisSecondary,
			},
		},
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
