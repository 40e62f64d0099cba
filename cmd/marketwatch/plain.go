package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"growtube/internal/game"

	"github.com/fatih/color"
)

var (
	accent  = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	neutral = color.New(color.FgHiWhite)
)

type priceFeed interface {
	Subscribe(ctx context.Context, fn func(game.PriceChange)) error
}

// streamPlain prints the current market then one line per price change.
func streamPlain(ctx context.Context, out io.Writer, source marketSource, feed priceFeed) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	listings, err := source.Market(fetchCtx)
	cancel()
	if err != nil {
		return err
	}

	var mu sync.Mutex
	prices := make(map[int64]int64, len(listings))
	accent.Fprintln(out, "GrowTube market")
	for _, l := range listings {
		prices[l.ID] = l.Price
		neutral.Fprintf(out, "[%d] %s %d (%d in stock)\n", l.ID, l.Name, l.Price, l.Stock)
	}

	err = feed.Subscribe(ctx, func(c game.PriceChange) {
		price := game.BuyUnitPrice(game.Item{Value: c.Value, Demand: c.Demand, Supply: c.Supply, Stock: c.Stock, Buyable: true})
		mu.Lock()
		prev, known := prices[c.ID]
		prices[c.ID] = price
		printChange(out, time.Now(), c, prev, price, known)
		mu.Unlock()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printChange(out io.Writer, at time.Time, c game.PriceChange, prev, price int64, known bool) {
	line := fmt.Sprintf("%s %s %d (%d in stock)", at.Format("15:04:05"), c.Name, price, c.Stock)
	switch {
	case !known || price == prev:
		neutral.Fprintln(out, line)
	case price > prev:
		success.Fprintf(out, "%s ▲ %+d\n", line, price-prev)
	default:
		danger.Fprintf(out, "%s ▼ %+d\n", line, price-prev)
	}
}
