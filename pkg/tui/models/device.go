// Package models provides the Bubble Tea model of the device screen
// simulator.
package models

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andri/cardwallet/pkg/display"
	"github.com/andri/cardwallet/pkg/flow"
	"github.com/andri/cardwallet/pkg/secret"
	"github.com/andri/cardwallet/pkg/tui/styles"
	tea "github.com/charmbracelet/bubbletea"
)

// DefaultWidth is the screen width used until the terminal reports its size.
const DefaultWidth = 48

// Ticker runs one iteration of the device loop.
type Ticker interface {
	Tick(ctx context.Context)
}

// DeviceConfig holds configuration for the device model.
type DeviceConfig struct {
	// Input receives the keys the user presses.
	Input *display.InputQueue

	// Interval is the device loop period.
	Interval time.Duration

	// Width bounds the screen box (default DefaultWidth).
	Width int

	// Title is shown above the screen.
	Title string

	// Context for cancellation
	Context context.Context
}

// DeviceModel renders device screens and turns key presses into device
// input. It implements display.Display; the engine renders into it from
// within Update, so no locking is needed.
type DeviceModel struct {
	config DeviceConfig
	engine Ticker

	screen display.Screen
	entry  []byte

	width    int
	height   int
	quitting bool
}

var _ display.Display = (*DeviceModel)(nil)

// NewDeviceModel creates a device model. SetEngine must be called before
// the program starts.
func NewDeviceModel(cfg DeviceConfig) *DeviceModel {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	if cfg.Input == nil {
		cfg.Input = &display.InputQueue{}
	}
	return &DeviceModel{
		config: cfg,
		screen: display.Screen{Kind: display.ScreenIdle, Title: "Ready"},
		entry:  make([]byte, 0, flow.InputCapacity),
	}
}

// SetEngine attaches the device loop driven by the model's ticks.
func (m *DeviceModel) SetEngine(e Ticker) {
	m.engine = e
}

// Render implements display.Display.
func (m *DeviceModel) Render(s display.Screen) {
	if s.Kind != display.ScreenText {
		m.clearEntry()
	}
	m.screen = s
}

// Screen returns the screen currently shown.
func (m *DeviceModel) Screen() display.Screen {
	return m.screen
}

type tickMsg time.Time

func (m *DeviceModel) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model
func (m *DeviceModel) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model
func (m *DeviceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.config.Context.Err() != nil {
			m.quitting = true
			return m, tea.Quit
		}
		if m.engine != nil {
			m.engine.Tick(m.config.Context)
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *DeviceModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		m.clearEntry()
		m.quitting = true
		return tea.Quit
	}

	if m.screen.Kind == display.ScreenText {
		m.handleEntryKey(msg)
		return nil
	}

	switch msg.String() {
	case "y", "Y", "enter":
		m.config.Input.Push(display.Input{Kind: display.InputAccept})
	case "n", "N", "esc":
		m.config.Input.Push(display.Input{Kind: display.InputReject})
	case "q":
		if m.screen.Kind == display.ScreenIdle {
			m.quitting = true
			return tea.Quit
		}
	}
	return nil
}

func (m *DeviceModel) handleEntryKey(msg tea.KeyMsg) {
	switch msg.Type {
	case tea.KeyEnter:
		text := make([]byte, len(m.entry))
		copy(text, m.entry)
		m.clearEntry()
		m.config.Input.Push(display.Input{Kind: display.InputText, Text: text})
	case tea.KeyEsc:
		m.clearEntry()
		m.config.Input.Push(display.Input{Kind: display.InputReject})
	case tea.KeyBackspace:
		if len(m.entry) > 0 {
			_, size := utf8.DecodeLastRune(m.entry)
			secret.Wipe(m.entry[len(m.entry)-size:])
			m.entry = m.entry[:len(m.entry)-size]
		}
	case tea.KeyRunes, tea.KeySpace:
		// The entry never outgrows its backing array, so no copy of a
		// PIN is left behind by append.
		for _, r := range msg.Runes {
			n := utf8.RuneLen(r)
			if n < 0 || len(m.entry)+n > cap(m.entry) {
				continue
			}
			m.entry = utf8.AppendRune(m.entry, r)
		}
	}
}

func (m *DeviceModel) clearEntry() {
	secret.Wipe(m.entry)
	m.entry = m.entry[:0]
}

// View implements tea.Model
func (m *DeviceModel) View() string {
	if m.quitting {
		return ""
	}

	width := m.config.Width
	if m.width > 0 {
		width = min(width, m.width-2)
	}

	var b strings.Builder
	if m.config.Title != "" {
		b.WriteString(styles.StyleSubtle.Render(m.config.Title))
		b.WriteString("\n")
	}

	content := styles.StyleHeading.Render(fmt.Sprintf("%s %s", styles.Icon(m.screen.Kind), m.screen.Title))
	if m.screen.Body != "" {
		content += "\n" + styles.StyleBody.Render(m.screen.Body)
	}
	if m.screen.Kind == display.ScreenText {
		content += "\n" + styles.StyleBody.Render(styles.StyleEntry.Render(m.entryView()))
	}
	b.WriteString(styles.Box(m.screen.Kind).Width(width).Render(content))
	b.WriteString("\n")
	b.WriteString(styles.StyleSubtle.Render(m.help()))
	return b.String()
}

func (m *DeviceModel) entryView() string {
	n := utf8.RuneCount(m.entry)
	if m.screen.Masked {
		return strings.Repeat(styles.IconMask, n) + "_"
	}
	return string(m.entry) + "_"
}

func (m *DeviceModel) help() string {
	switch m.screen.Kind {
	case display.ScreenConfirm:
		return "y/Enter accept  n/Esc reject  Ctrl+C quit"
	case display.ScreenText:
		return "Enter submit  Esc cancel  Ctrl+C quit"
	case display.ScreenIdle:
		return "waiting for host  q quit"
	default:
		return "n/Esc cancel  Ctrl+C quit"
	}
}

// Run starts the simulator and blocks until it exits.
func Run(m *DeviceModel, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(m, opts...).Run()
	return err
}
