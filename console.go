package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"KeyBridge/mcp"
	"KeyBridge/pkg/input"
)

const (
	consoleRefresh  = 500 * time.Millisecond
	consoleLogLines = 12
	consoleReplies  = 8
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	connectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	offlineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	liveStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	logBox         = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

// liveKeyAliases maps terminal key names to KeyBridge key names where they differ.
var liveKeyAliases = map[string]string{
	"pgup":   "page_up",
	"pgdown": "page_down",
}

const consoleHelp = `Lines are typed on the device. Commands:
  /connect [target]   open a session (empty: last device)
  /stop               close the session
  /status             show the session
  /devices            list devices
  /key <name|code>    send a key event
  /keys               list key names
  /clip               type the clipboard
  /app <label|pkg>    launch an app
  /macro <name>       type a saved macro
  /macros             list macros and apps
  /addmacro <name>=<text>
  /rmmacro <name>
  /pair <addr> <code> pair with wireless debugging
  /ip <serial>        show a device's Wi-Fi address
  /wifi <serial>      switch a USB device to Wi-Fi
  /push <path>        push a file to Downloads
  /history            recent sessions
  /events <session>   status lines of one session
  /notifs             mirrored notifications
  /quit
Start a line with // to type a literal slash. ctrl+t toggles live keys.`

type consoleMode int

const (
	modeLine consoleMode = iota
	modeLive
)

type refreshMsg time.Time

type replyMsg string

// consoleModel is the interactive front end: typed lines become device text,
// slash commands map onto app operations, live mode forwards every key.
type consoleModel struct {
	app     mcp.KeyBridgeApp
	input   textinput.Model
	mode    consoleMode
	status  mcp.SessionStatus
	logs    []string
	replies []string
}

func newConsoleModel(app mcp.KeyBridgeApp) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "type text, or /help"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	return consoleModel{
		app:   app,
		input: ti,
	}
}

func refreshCmd() tea.Cmd {
	return tea.Tick(consoleRefresh, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, refreshCmd())
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		m.status = m.app.Status()
		m.logs = m.app.RuntimeLogs(consoleLogLines)
		return m, refreshCmd()

	case replyMsg:
		if msg != "" {
			m.reply(string(msg))
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyCtrlT:
			if m.mode == modeLine {
				m.mode = modeLive
				m.reply("Live keys on: every key goes to the device. ctrl+t to stop.")
			} else {
				m.mode = modeLine
				m.reply("Live keys off")
			}
			return m, nil
		}

		if m.mode == modeLive {
			if err := m.forwardKey(msg); err != nil {
				m.reply(errorStyle.Render(err.Error()))
			}
			return m, nil
		}

		if msg.Type == tea.KeyEnter {
			line := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(line) == "/quit" {
				return m, tea.Quit
			}
			app := m.app
			return m, func() tea.Msg {
				return replyMsg(runLine(app, line))
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) reply(s string) {
	m.replies = append(m.replies, s)
	if len(m.replies) > consoleReplies {
		m.replies = m.replies[len(m.replies)-consoleReplies:]
	}
}

// forwardKey sends one terminal key event to the device.
func (m *consoleModel) forwardKey(msg tea.KeyMsg) error {
	switch msg.Type {
	case tea.KeyRunes:
		if msg.Alt {
			return nil
		}
		return m.app.SendText(string(msg.Runes))
	case tea.KeySpace:
		return m.app.SendText(" ")
	}

	name := msg.String()
	if alias, ok := liveKeyAliases[name]; ok {
		name = alias
	}
	err := m.app.SendKey(name)
	if errors.Is(err, input.ErrUnknownKey) {
		// unmapped keys are ignored while typing
		return nil
	}
	return err
}

// runLine executes one submitted line and returns what to show the user.
// It runs outside the update loop since wireless setup can take a while.
func runLine(app mcp.KeyBridgeApp, line string) string {
	if line == "" {
		return ""
	}
	if strings.HasPrefix(line, "//") {
		return result(app.SendText(line[1:]), "")
	}
	if !strings.HasPrefix(line, "/") {
		return result(app.SendText(line), "")
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "help":
		return consoleHelp

	case "connect":
		if err := app.Connect(arg); err != nil {
			return errorStyle.Render("Connect failed: " + err.Error())
		}
		return "Connected to " + app.Status().Target

	case "stop":
		app.Disconnect()
		return "Session stopped"

	case "status":
		st := app.Status()
		if !st.Running {
			return "Disconnected"
		}
		return fmt.Sprintf("%s (session %s, healthy %v, queued %d)", st.Target, st.ID, st.Healthy, st.Queued)

	case "devices":
		devices, err := app.ListDevices()
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		if len(devices) == 0 {
			return "No devices connected"
		}
		var b strings.Builder
		for _, d := range devices {
			fmt.Fprintf(&b, "%s  %s  %s  %s", d.ID, d.State, d.Type, d.Model)
			if d.LastActive > 0 {
				fmt.Fprintf(&b, "  (last used %s)", time.UnixMilli(d.LastActive).Format("01-02 15:04"))
			}
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")

	case "key":
		return result(app.SendKey(arg), "")

	case "keys":
		return strings.Join(input.KeyNames(), " ")

	case "clip":
		n, err := app.SendClipboard()
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		if n == 0 {
			return "Clipboard is empty"
		}
		return fmt.Sprintf("Sent %d character(s) from the clipboard", n)

	case "app":
		return result(app.LaunchApp(arg), "")

	case "macro":
		return result(app.SendMacro(arg), "")

	case "macros":
		var b strings.Builder
		for _, name := range sortedNames(app.Macros()) {
			fmt.Fprintf(&b, "%s\n", name)
		}
		for _, label := range sortedNames(app.Apps()) {
			fmt.Fprintf(&b, "[app] %s\n", label)
		}
		return strings.TrimRight(b.String(), "\n")

	case "addmacro":
		name, text, ok := strings.Cut(arg, "=")
		if !ok {
			return errorStyle.Render("usage: /addmacro <name>=<text>")
		}
		return result(app.AddMacro(strings.TrimSpace(name), text), "Saved macro "+strings.TrimSpace(name))

	case "rmmacro":
		removed, err := app.RemoveMacro(arg)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		if !removed {
			return "No macro named " + arg
		}
		return "Removed macro " + arg

	case "pair":
		fields := strings.Fields(arg)
		if len(fields) != 2 {
			return errorStyle.Render("usage: /pair <addr> <code>")
		}
		out, err := app.Pair(fields[0], fields[1])
		return result(err, out)

	case "ip":
		ip, err := app.DeviceIP(arg)
		return result(err, ip)

	case "wifi":
		res, err := app.WirelessSetup(arg)
		if err != nil {
			return errorStyle.Render(fmt.Sprintf("Wireless setup %s: %v", res.State, err))
		}
		return fmt.Sprintf("Connected to %s after %d attempt(s)", res.Target, res.Attempts)

	case "push":
		remote, err := app.PushFile(arg)
		return result(err, "Pushing to "+remote)

	case "history":
		records, err := app.SessionHistory(10)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		var b strings.Builder
		for _, r := range records {
			reason := r.EndReason
			if reason == "" {
				reason = "open"
			}
			fmt.Fprintf(&b, "%s  %s  %s  %s\n", time.UnixMilli(r.StartTime).Format("01-02 15:04"), r.ID, r.Target, reason)
		}
		return strings.TrimRight(b.String(), "\n")

	case "events":
		if arg == "" {
			return errorStyle.Render("usage: /events <session>")
		}
		events, err := app.SessionEvents(arg)
		if err != nil {
			return errorStyle.Render(err.Error())
		}
		if len(events) == 0 {
			return "No events for session " + arg
		}
		var b strings.Builder
		for _, e := range events {
			fmt.Fprintf(&b, "%s %s\n", time.UnixMilli(e.Timestamp).Format("15:04:05"), e.Message)
		}
		return strings.TrimRight(b.String(), "\n")

	case "notifs":
		var b strings.Builder
		for _, n := range app.Notifications(10) {
			fmt.Fprintf(&b, "[%s] %s\n", n.Package, n.Text)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	return errorStyle.Render("unknown command /" + cmd + ", try /help")
}

func result(err error, ok string) string {
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return ok
}

func (m consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("KeyBridge"))
	b.WriteString("  ")
	if m.status.Running {
		b.WriteString(connectedStyle.Render("● " + m.status.Target))
		if m.status.Queued > 0 {
			b.WriteString(dimStyle.Render(" (" + strconv.Itoa(m.status.Queued) + " queued)"))
		}
	} else {
		b.WriteString(offlineStyle.Render("○ disconnected"))
	}
	if m.mode == modeLive {
		b.WriteString("  ")
		b.WriteString(liveStyle.Render("LIVE KEYS"))
	}
	b.WriteString("\n")

	if len(m.logs) > 0 {
		b.WriteString(logBox.Render(strings.Join(m.logs, "\n")))
		b.WriteString("\n")
	}
	for _, r := range m.replies {
		b.WriteString(r)
		b.WriteString("\n")
	}

	if m.mode == modeLine {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(dimStyle.Render("typing on the device, ctrl+t to return"))
	}
	b.WriteString("\n")
	return b.String()
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Console runs the terminal front end on in and out.
type Console struct {
	program *tea.Program
}

// NewConsole builds the terminal front end for app.
func NewConsole(app mcp.KeyBridgeApp, in io.Reader, out io.Writer) *Console {
	p := tea.NewProgram(newConsoleModel(app), tea.WithInput(in), tea.WithOutput(out))
	return &Console{program: p}
}

// Run blocks until the user quits.
func (c *Console) Run() error {
	_, err := c.program.Run()
	return err
}
