package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// Show performs a one-shot fetch and prints the cheapest catalog entries
// plus the settlement balance.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	client := a.newMarketClient()
	builder := a.newBuilder()

	records, err := client.FetchPrices(ctx)
	if err != nil {
		return err
	}

	items := builder.Build(records)
	if len(items) == 0 {
		fmt.Fprintln(os.Stdout, "no valid items in feed")
		return nil
	}

	bal, err := client.FetchBalance(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("balance unavailable")
	} else {
		fmt.Fprintf(os.Stdout, "balance: total=%s locked=%s available=%s\n\n",
			bal.Total.StringFixed(2), bal.Locked.StringFixed(2), bal.Available.StringFixed(2))
	}

	if len(items) > opts.Limit {
		items = items[:opts.Limit]
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Product\tRUB\tStars\tUSD\tQty")
	for _, item := range items {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%s\t%d\n",
			sanitizeInline(item.Name),
			item.PriceLocal.StringFixed(2),
			item.PriceStars,
			item.PriceUSD.StringFixed(2),
			item.Quantity,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
