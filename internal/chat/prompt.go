package chat

import (
	"fmt"
	"strings"

	"btcpulse/internal/binance/memorystore"
)

const assistantPreamble = "You are a concise Bitcoin market assistant. " +
	"Use the live market data below when it is relevant and say so when it is missing. " +
	"Do not give financial advice."

// MarketContext renders the snapshot as the data block placed in every prompt.
func MarketContext(s memorystore.Snapshot) string {
	if !s.Ready() {
		return "Current Bitcoin market data: no live market data received yet"
	}

	var b strings.Builder
	b.WriteString("Current Bitcoin market data:\n")
	fmt.Fprintf(&b, "Price: $%s\n", s.Price.String())
	fmt.Fprintf(&b, "24h High: $%s\n", s.High24h.String())
	fmt.Fprintf(&b, "24h Low: $%s\n", s.Low24h.String())
	fmt.Fprintf(&b, "24h Change: %s%%\n", s.Change24h().StringFixed(2))
	fmt.Fprintf(&b, "Volume: %s BTC\n", s.Volume.String())
	fmt.Fprintf(&b, "Updated: %s", s.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}

// BuildPrompt assembles the single user turn sent to the generator.
func BuildPrompt(s memorystore.Snapshot, history []Message, question string) string {
	var b strings.Builder
	b.WriteString(assistantPreamble)
	b.WriteString("\n\n")
	b.WriteString(MarketContext(s))

	if len(history) > 0 {
		b.WriteString("\n\nPrevious conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	} else {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nUser question: %s", question)
	return b.String()
}
