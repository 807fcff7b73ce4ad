package reporting

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/predictdesk/polyrisk/pkg/types"
)

// ConsoleReporter prints the session summary at shutdown.
type ConsoleReporter struct{}

// NewConsoleReporter creates a new console reporter
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{}
}

// PrintSummary writes the end-of-session summary to stdout.
func (r *ConsoleReporter) PrintSummary(report *SessionReport) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("📊 TRADING SESSION SUMMARY")
	fmt.Println(strings.Repeat("=", 50))

	fmt.Printf("🕐 Session:           %s - %s\n",
		report.StartedAt.Format("2006-01-02 15:04:05"),
		report.EndedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("💰 Starting Capital:  $%.2f\n", report.StartingCapital)
	fmt.Printf("💰 Final Capital:     $%.2f\n", report.Final.TotalCapital)
	fmt.Printf("📈 Total Return:      %.2f%%\n", report.TotalReturn()*100)
	fmt.Printf("📈 Realized PnL:      $%.2f\n", report.RealizedPnL())
	fmt.Printf("📈 Unrealized PnL:    $%.2f\n", report.Final.UnrealizedPnL)
	fmt.Printf("📉 Daily Drawdown:    %.2f%%\n", report.Final.DailyDrawdown*100)
	fmt.Printf("🔄 Trades:            %d closed, %d still open\n", len(report.Closed()), len(report.Open()))

	if winRate, ok := report.WinRate(); ok {
		fmt.Printf("✅ Win Rate:          %.1f%%\n", winRate*100)
	}
	if len(report.Breakers) > 0 {
		fmt.Printf("⚡ Breaker Episodes:  %d\n", len(report.Breakers))
	}

	if closed := report.Closed(); len(closed) > 0 {
		fmt.Println()
		r.printClosedTrades(closed)
	}
}

func (r *ConsoleReporter) printClosedTrades(closed []types.Trade) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Closed Trades")
	t.AppendHeader(table.Row{"Market", "Side", "Qty", "Entry", "Exit", "PnL", "Status"})

	for _, trade := range closed {
		t.AppendRow(table.Row{
			truncate(trade.MarketID, 18),
			trade.Side,
			fmt.Sprintf("%.0f", trade.Quantity),
			fmt.Sprintf("%.4f", trade.EntryPrice),
			fmt.Sprintf("%.4f", trade.ExitPrice),
			fmt.Sprintf("%+.2f", trade.PnL),
			trade.Status,
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Qty", Align: text.AlignRight},
		{Name: "Entry", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "PnL", Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
