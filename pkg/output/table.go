package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// TableWriter writes a report as aligned text tables.
type TableWriter struct {
	w     io.Writer
	color bool
}

// NewTableWriter creates a new table writer. Color is enabled only when w
// is a terminal.
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{w: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

type column struct {
	header string
	width  int
}

// Write writes every non-empty section of r.
func (tw *TableWriter) Write(r *Report) error {
	if r.Device != nil {
		tw.writeDevice(r.Device)
		_, _ = fmt.Fprintln(tw.w)
	}
	if len(r.Wallets) > 0 {
		tw.writeSectionHeader("WALLETS", len(r.Wallets))
		tw.writeWallets(r.Wallets)
		_, _ = fmt.Fprintln(tw.w)
	}
	if len(r.Coins) > 0 {
		tw.writeSectionHeader("COINS", len(r.Coins))
		tw.writeCoins(r.Coins)
		_, _ = fmt.Fprintln(tw.w)
	}
	return nil
}

func (tw *TableWriter) writeDevice(d *DeviceReport) {
	serial := d.Serial
	if serial == "" {
		serial = tw.colorize("not provisioned", colorYellow)
	}
	auth := tw.colorize("yes", colorGreen)
	if !d.Authenticated {
		auth = tw.colorize("no", colorYellow)
	}

	_, _ = fmt.Fprintf(tw.w, "Serial:        %s\n", serial)
	_, _ = fmt.Fprintf(tw.w, "Authenticated: %s\n", auth)
	_, _ = fmt.Fprintf(tw.w, "Firmware:      %s\n", d.Firmware)
	if d.UpgradePending != "" {
		_, _ = fmt.Fprintf(tw.w, "Pending:       %s\n", tw.colorize(d.UpgradePending, colorCyan))
	}
	_, _ = fmt.Fprintf(tw.w, "Mode:          %s\n", d.Mode)
}

func (tw *TableWriter) writeSectionHeader(title string, count int) {
	header := fmt.Sprintf("=== %s (%d) ===", title, count)
	_, _ = fmt.Fprintln(tw.w, tw.colorize(header, colorBold+colorCyan))
}

func (tw *TableWriter) writeWallets(wallets []WalletReport) {
	cols := []column{
		{header: "ID", width: 18},
		{header: "NAME", width: 18},
		{header: "STATE", width: 12},
		{header: "PIN", width: 5},
		{header: "PASSPHRASE", width: 12},
		{header: "CARDS", width: 5},
	}
	tw.writeTableHeader(cols)
	tw.writeTableSeparator(cols)

	for _, w := range wallets {
		id := w.ID
		if len(id) > 16 {
			id = id[:16]
		}
		stateColor := colorGreen
		switch w.State {
		case "locked":
			stateColor = colorRed
		case "valid":
		default:
			stateColor = colorYellow
		}
		tw.writeTableRow(cols, []cell{
			{text: id},
			{text: w.Name},
			{text: w.State, color: stateColor},
			{text: yesNo(w.PIN)},
			{text: yesNo(w.Passphrase)},
			{text: strconv.Itoa(w.Cards)},
		})
	}
}

func (tw *TableWriter) writeCoins(coins []CoinReport) {
	cols := []column{
		{header: "NAME", width: 12},
		{header: "SYMBOL", width: 8},
		{header: "INDEX", width: 6},
		{header: "FAMILY", width: 9},
		{header: "CURVE", width: 10},
		{header: "NETWORKS", width: 40},
	}
	tw.writeTableHeader(cols)
	tw.writeTableSeparator(cols)

	for _, c := range coins {
		networks := "-"
		if len(c.Networks) > 0 {
			networks = strings.Join(c.Networks, ", ")
		}
		tw.writeTableRow(cols, []cell{
			{text: c.Name},
			{text: c.Symbol},
			{text: strconv.FormatUint(uint64(c.Index), 10)},
			{text: c.Family},
			{text: c.Curve},
			{text: networks},
		})
	}
}

type cell struct {
	text  string
	color string
}

func (tw *TableWriter) writeTableHeader(cols []column) {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = padRight(col.header, col.width)
	}
	_, _ = fmt.Fprintln(tw.w, tw.colorize(strings.TrimRight(strings.Join(parts, " "), " "), colorBold))
}

func (tw *TableWriter) writeTableSeparator(cols []column) {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = strings.Repeat("-", col.width)
	}
	_, _ = fmt.Fprintln(tw.w, strings.Join(parts, " "))
}

func (tw *TableWriter) writeTableRow(cols []column, cells []cell) {
	parts := make([]string, len(cols))
	for i, col := range cols {
		c := cells[i]
		text := c.text
		if i < len(cols)-1 {
			text = padRight(c.text, col.width)
		}
		if c.color != "" {
			text = tw.colorize(text, c.color)
		}
		parts[i] = text
	}
	_, _ = fmt.Fprintln(tw.w, strings.TrimRight(strings.Join(parts, " "), " "))
}

func (tw *TableWriter) colorize(text, color string) string {
	if !tw.color || color == "" {
		return text
	}
	return color + text + colorReset
}

// padRight pads s to the display width, truncating with an ellipsis when
// it does not fit.
func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := runewidth.StringWidth(s)
	if w > width {
		return runewidth.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
