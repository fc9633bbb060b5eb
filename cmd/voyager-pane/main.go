package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/sahilm/fuzzy"
	"golang.org/x/term"

	"github.com/b/tmux-voyager/pkg/wire"
)

var (
	sessionID = flag.String("session", "", "tmux session ID")
	bufferID  = flag.String("buffer", "", "listing buffer to display")
	debug     = flag.Bool("debug", false, "Enable debug logging")
)

var debugLog *log.Logger

var (
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	dirStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	filterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

// paneModel displays one listing buffer pushed from the daemon.
type paneModel struct {
	conn      net.Conn
	clientID  string
	width     int
	height    int
	connected bool

	// Render state from daemon
	path        string
	lines       []string
	sequenceNum uint64

	vp         viewport.Model
	cursor     int // index into visible()
	filter     string
	filtering  bool
	lastSelect string // last entry path reported to the daemon

	sendMu *sync.Mutex
}

type connectedMsg struct {
	conn     net.Conn
	clientID string
}

type disconnectedMsg struct{}

type renderMsg struct {
	payload *wire.RenderPayload
}

type tickMsg time.Time

func (m paneModel) Init() tea.Cmd {
	return tea.Batch(connectCmd(), tickCmd())
}

// connectCmd dials the daemon socket, retrying while the daemon starts up.
func connectCmd() tea.Cmd {
	return func() tea.Msg {
		sockPath := wire.SocketPath(*sessionID)

		var conn net.Conn
		var err error
		for i := 0; i < 10; i++ {
			conn, err = net.Dial("unix", sockPath)
			if err == nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		if err != nil {
			debugLog.Printf("Failed to connect to daemon: %v", err)
			return disconnectedMsg{}
		}

		clientID := ""
		if out, err := exec.Command("tmux", "display-message", "-p", "#{pane_id}").Output(); err == nil {
			clientID = strings.TrimSpace(string(out))
		}
		if clientID == "" {
			clientID = fmt.Sprintf("pane-%d", os.Getpid())
		}

		return connectedMsg{conn: conn, clientID: clientID}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m paneModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case connectedMsg:
		m.conn = msg.conn
		m.clientID = msg.clientID
		m.connected = true
		debugLog.Printf("Connected as %s", m.clientID)

		go m.receiveLoop()
		m.sendSubscribe()
		return m, nil

	case disconnectedMsg:
		m.connected = false
		debugLog.Printf("Disconnected from daemon")
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg {
			return connectCmd()()
		})

	case renderMsg:
		m.path = msg.payload.Path
		m.lines = msg.payload.Lines
		m.sequenceNum = msg.payload.SequenceNum
		if m.cursor >= len(m.visible()) {
			m.cursor = len(m.visible()) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		m.refreshViewport()
		return m, nil

	case tickMsg:
		if m.connected {
			m.sendPing()
		}
		return m, tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.moveCursor(-1)
		case tea.MouseButtonWheelDown:
			m.moveCursor(1)
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 1 // status row
		if m.connected {
			m.sendResize()
		}
		m.refreshViewport()
		return m, nil
	}

	return m, nil
}

func (m paneModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filtering {
		switch msg.String() {
		case "esc":
			m.filtering = false
			m.filter = ""
			m.cursor = 0
		case "enter":
			m.filtering = false
			return m.enterSelection()
		case "backspace":
			if len(m.filter) > 0 {
				m.filter = m.filter[:len(m.filter)-1]
				m.cursor = 0
			}
		default:
			if len(msg.String()) == 1 {
				m.filter += msg.String()
				m.cursor = 0
			}
		}
		m.refreshViewport()
		return m, nil
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.sendUnsubscribe()
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "g":
		m.cursor = 0
		m.refreshViewport()
	case "G":
		m.cursor = len(m.visible()) - 1
		m.refreshViewport()
	case "/":
		m.filtering = true
		m.filter = ""
		m.cursor = 0
		m.refreshViewport()
	case "enter", "l":
		return m.enterSelection()
	case "h", "-":
		if m.path != "" {
			m.sendNavigate(filepath.Dir(m.path))
		}
	case "r":
		// Ask the daemon to re-read by navigating to the same directory.
		if m.path != "" {
			m.sendNavigate(m.path)
		}
	}
	return m, nil
}

func (m paneModel) enterSelection() (tea.Model, tea.Cmd) {
	rows := m.visible()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return m, nil
	}
	name := rows[m.cursor]
	if !strings.HasSuffix(name, "/") || m.path == "" {
		// Files are previewed by the daemon's layout, not opened here.
		return m, nil
	}
	m.sendNavigate(filepath.Join(m.path, strings.TrimSuffix(name, "/")))
	return m, nil
}

func (m *paneModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if max := len(m.visible()) - 1; m.cursor > max {
		m.cursor = max
	}
	m.refreshViewport()
}

// visible returns the rows after fuzzy filtering, excluding the metadata row.
func (m *paneModel) visible() []string {
	rows := m.lines
	if len(rows) > 0 && strings.Contains(rows[0], " entries") {
		rows = rows[1:]
	}
	if m.filter == "" {
		return rows
	}
	matches := fuzzy.Find(m.filter, rows)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, rows[match.Index])
	}
	return out
}

// refreshViewport rebuilds the styled content and keeps the cursor in view.
func (m *paneModel) refreshViewport() {
	rows := m.visible()
	styled := make([]string, len(rows))
	for i, row := range rows {
		line := runewidth.Truncate(row, m.width, "…")
		switch {
		case i == m.cursor:
			styled[i] = selectedStyle.Render(line)
		case strings.HasSuffix(row, "/"):
			styled[i] = dirStyle.Render(line)
		default:
			styled[i] = line
		}
	}
	m.vp.SetContent(strings.Join(styled, "\n"))

	if m.cursor < m.vp.YOffset {
		m.vp.SetYOffset(m.cursor)
	} else if m.cursor >= m.vp.YOffset+m.vp.Height {
		m.vp.SetYOffset(m.cursor - m.vp.Height + 1)
	}
	if m.connected {
		m.sendScroll()
		m.sendSelect()
	}
}

func (m paneModel) View() string {
	if !m.connected {
		return metaStyle.Render(" connecting…")
	}

	status := metaStyle.Render(fmt.Sprintf("%d items", len(m.visible())))
	if m.filtering || m.filter != "" {
		status = filterStyle.Render("/" + m.filter)
	}
	return m.vp.View() + "\n" + runewidth.Truncate(status, m.width, "…")
}

// receiveLoop reads daemon messages until the connection drops.
func (m *paneModel) receiveLoop() {
	scanner := bufio.NewScanner(m.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var msg wire.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case wire.MsgRender:
			if msg.Payload != nil {
				payloadBytes, _ := json.Marshal(msg.Payload)
				var payload wire.RenderPayload
				if json.Unmarshal(payloadBytes, &payload) == nil {
					if globalProgram != nil {
						globalProgram.Send(renderMsg{payload: &payload})
					}
				}
			}
		case wire.MsgPong:
			// Keep-alive response
		}
	}

	if globalProgram != nil {
		globalProgram.Send(disconnectedMsg{})
	}
}

func (m *paneModel) sendMessage(msg wire.Message) {
	if m.conn == nil {
		return
	}
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	m.conn.SetWriteDeadline(time.Now().Add(time.Second))
	m.conn.Write(append(data, '\n'))
}

func (m *paneModel) sendSubscribe() {
	colorProfile := "ANSI256"
	switch termenv.ColorProfile() {
	case termenv.TrueColor:
		colorProfile = "TrueColor"
	case termenv.Ascii:
		colorProfile = "Ascii"
	case termenv.ANSI:
		colorProfile = "ANSI"
	}

	m.sendMessage(wire.Message{
		Type:     wire.MsgSubscribe,
		ClientID: m.clientID,
		Payload: wire.SubscribePayload{
			Buffer:       *bufferID,
			Width:        m.width,
			Height:       m.height,
			ColorProfile: colorProfile,
		},
	})
}

func (m *paneModel) sendUnsubscribe() {
	m.sendMessage(wire.Message{
		Type:     wire.MsgUnsubscribe,
		ClientID: m.clientID,
	})
}

func (m *paneModel) sendResize() {
	m.sendMessage(wire.Message{
		Type:     wire.MsgResize,
		ClientID: m.clientID,
		Payload: wire.ResizePayload{
			Width:  m.width,
			Height: m.height,
		},
	})
}

func (m *paneModel) sendScroll() {
	m.sendMessage(wire.Message{
		Type:     wire.MsgScroll,
		ClientID: m.clientID,
		Payload: wire.ScrollPayload{
			Buffer: *bufferID,
			Offset: m.vp.YOffset,
		},
	})
}

// sendSelect reports the entry under the cursor so the daemon can fill the
// preview pane. Deduplicated: only a changed selection goes out.
func (m *paneModel) sendSelect() {
	rows := m.visible()
	if m.cursor < 0 || m.cursor >= len(rows) || m.path == "" {
		return
	}
	path := filepath.Join(m.path, strings.TrimSuffix(rows[m.cursor], "/"))
	if path == m.lastSelect {
		return
	}
	m.lastSelect = path
	m.sendMessage(wire.Message{
		Type:     wire.MsgSelect,
		ClientID: m.clientID,
		Payload:  wire.SelectPayload{Path: path},
	})
}

func (m *paneModel) sendNavigate(path string) {
	m.sendMessage(wire.Message{
		Type:     wire.MsgNavigate,
		ClientID: m.clientID,
		Payload:  wire.NavigatePayload{Path: path},
	})
}

func (m *paneModel) sendPing() {
	m.sendMessage(wire.Message{
		Type:     wire.MsgPing,
		ClientID: m.clientID,
	})
}

// Global program reference for message passing from receiveLoop
var globalProgram *tea.Program

func main() {
	flag.Parse()

	if *debug {
		// Log to file instead of stderr to avoid corrupting the display
		logPath := fmt.Sprintf("/tmp/voyager-pane-%d.log", os.Getpid())
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			debugLog = log.New(os.Stderr, "[pane] ", log.LstdFlags|log.Lmicroseconds)
		} else {
			debugLog = log.New(logFile, "[pane] ", log.LstdFlags|log.Lmicroseconds)
		}
	} else {
		debugLog = log.New(io.Discard, "", 0)
	}

	if *sessionID == "" {
		out, err := exec.Command("tmux", "display-message", "-p", "#{session_id}").Output()
		if err == nil {
			*sessionID = strings.TrimSpace(string(out))
		}
	}
	if *bufferID == "" {
		fmt.Fprintln(os.Stderr, "voyager-pane: -buffer is required")
		os.Exit(1)
	}

	debugLog.Printf("Starting pane renderer for session %s buffer %s", *sessionID, *bufferID)

	lipgloss.SetColorProfile(termenv.ANSI256)

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}

	model := paneModel{
		width:  width,
		height: height,
		vp:     viewport.New(width, height-1),
		sendMu: &sync.Mutex{},
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	globalProgram = p

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if p != nil {
			p.Send(tea.Quit())
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
