package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ClientInfo tracks per-renderer state.
type ClientInfo struct {
	Conn         net.Conn
	Buffer       string // listing buffer this renderer displays
	Width        int
	Height       int
	Offset       int // current viewport offset
	ColorProfile string
}

// Server owns the daemon's unix socket and the connected renderers.
type Server struct {
	socketPath string
	pidPath    string
	listener   net.Listener
	clients    map[string]*ClientInfo
	clientsMu  sync.RWMutex
	done       chan struct{}

	sequenceNum uint64
	seqMu       sync.Mutex

	// OnRenderNeeded produces the payload for one buffer at a renderer's
	// dimensions. Called on subscribe, resize, and broadcast.
	OnRenderNeeded func(buffer string, width, height int) *RenderPayload

	// OnScroll fires when a renderer moves its viewport. visible is how many
	// renderers currently display the same buffer.
	OnScroll func(buffer string, offset, visible int)

	// OnResize fires after a renderer reports new dimensions.
	OnResize func(clientID string, width, height int)

	// OnNavigate fires when a renderer asks to change the session root.
	OnNavigate func(clientID, path string)

	// OnSelect fires when a renderer's cursor lands on another entry.
	OnSelect func(clientID, path string)
}

// NewServer creates a server for one tmux session's socket.
func NewServer(sessionID string) *Server {
	return &Server{
		socketPath:  SocketPath(sessionID),
		pidPath:     PidPath(sessionID),
		clients:     make(map[string]*ClientInfo),
		done:        make(chan struct{}),
		sequenceNum: 1,
	}
}

// Start claims the pidfile and begins listening for renderers.
func (s *Server) Start() error {
	if err := s.checkAndClaimPid(); err != nil {
		return err
	}

	// Remove stale socket if exists (safe now that we own the pidfile)
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		os.Remove(s.pidPath)
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	go s.acceptLoop()
	return nil
}

// checkAndClaimPid checks for an existing daemon and claims the pidfile.
func (s *Server) checkAndClaimPid() error {
	if data, err := os.ReadFile(s.pidPath); err == nil {
		pidStr := strings.TrimSpace(string(data))
		if pid, err := strconv.Atoi(pidStr); err == nil && pid > 0 {
			if process, err := os.FindProcess(pid); err == nil {
				// On Unix, FindProcess always succeeds, so probe with signal 0
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("daemon already running with pid %d", pid)
				}
			}
		}
		// Stale pidfile, remove it
		os.Remove(s.pidPath)
	}

	pid := os.Getpid()
	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	return nil
}

// Stop shuts down the server and cleans up the socket and pidfile.
func (s *Server) Stop() {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.clientsMu.Lock()
	for id, client := range s.clients {
		client.Conn.Close()
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()
	os.Remove(s.socketPath)
	os.Remove(s.pidPath)
}

// ClientCount returns the number of connected renderers.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// SubscriberCount returns how many renderers display one buffer. The refresh
// controller uses this for its shared-visibility scroll guard.
func (s *Server) SubscriberCount(buffer string) int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	n := 0
	for _, client := range s.clients {
		if client.Buffer == buffer {
			n++
		}
	}
	return n
}

// GetSocketPath returns the socket path
func (s *Server) GetSocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}

		go s.handleClient(conn)
	}
}

// handleClient processes messages from one renderer until it disconnects.
func (s *Server) handleClient(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var clientID string

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			clientID = msg.ClientID
			sub := decodeSubscribe(msg.Payload)
			s.clientsMu.Lock()
			s.clients[clientID] = &ClientInfo{
				Conn:         conn,
				Buffer:       sub.Buffer,
				Width:        sub.Width,
				Height:       sub.Height,
				ColorProfile: sub.ColorProfile,
			}
			s.clientsMu.Unlock()
			s.sendRenderToClient(clientID)

		case MsgUnsubscribe:
			s.clientsMu.Lock()
			delete(s.clients, clientID)
			s.clientsMu.Unlock()
			return

		case MsgResize:
			var resize ResizePayload
			if decodePayload(msg.Payload, &resize) && resize.Width > 0 {
				s.clientsMu.Lock()
				if client, ok := s.clients[clientID]; ok {
					client.Width = resize.Width
					client.Height = resize.Height
				}
				s.clientsMu.Unlock()
				if s.OnResize != nil {
					s.OnResize(clientID, resize.Width, resize.Height)
				}
				s.sendRenderToClient(clientID)
			}

		case MsgScroll:
			var scroll ScrollPayload
			if decodePayload(msg.Payload, &scroll) {
				s.clientsMu.Lock()
				if client, ok := s.clients[clientID]; ok {
					client.Offset = scroll.Offset
				}
				s.clientsMu.Unlock()
				if s.OnScroll != nil {
					s.OnScroll(scroll.Buffer, scroll.Offset, s.SubscriberCount(scroll.Buffer))
				}
			}

		case MsgNavigate:
			var nav NavigatePayload
			if decodePayload(msg.Payload, &nav) && nav.Path != "" {
				if s.OnNavigate != nil {
					s.OnNavigate(clientID, nav.Path)
				}
			}

		case MsgSelect:
			var sel SelectPayload
			if decodePayload(msg.Payload, &sel) && sel.Path != "" {
				if s.OnSelect != nil {
					s.OnSelect(clientID, sel.Path)
				}
			}

		case MsgPing:
			s.sendMessage(conn, Message{Type: MsgPong})
		}
	}

	if clientID != "" {
		s.clientsMu.Lock()
		delete(s.clients, clientID)
		s.clientsMu.Unlock()
	}
}

// BroadcastBuffer re-renders one buffer to every renderer subscribed to it.
func (s *Server) BroadcastBuffer(buffer string) {
	s.clientsMu.RLock()
	clientIDs := make([]string, 0, len(s.clients))
	for id, client := range s.clients {
		if client.Buffer == buffer {
			clientIDs = append(clientIDs, id)
		}
	}
	s.clientsMu.RUnlock()

	for _, id := range clientIDs {
		s.sendRenderToClient(id)
	}
}

// BroadcastAll re-renders every connected renderer.
func (s *Server) BroadcastAll() {
	s.clientsMu.RLock()
	clientIDs := make([]string, 0, len(s.clients))
	for id := range s.clients {
		clientIDs = append(clientIDs, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range clientIDs {
		s.sendRenderToClient(id)
	}
}

func (s *Server) sendRenderToClient(clientID string) {
	s.clientsMu.RLock()
	client, ok := s.clients[clientID]
	if !ok {
		s.clientsMu.RUnlock()
		return
	}
	conn := client.Conn
	buffer := client.Buffer
	width := client.Width
	height := client.Height
	s.clientsMu.RUnlock()

	if s.OnRenderNeeded == nil {
		return
	}
	render := s.OnRenderNeeded(buffer, width, height)
	if render == nil {
		return
	}

	s.seqMu.Lock()
	render.SequenceNum = s.sequenceNum
	s.sequenceNum++
	s.seqMu.Unlock()

	s.sendMessage(conn, Message{
		Type:     MsgRender,
		ClientID: clientID,
		Payload:  render,
	})
}

// GetClientInfo returns a copy of one renderer's state.
func (s *Server) GetClientInfo(clientID string) *ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if client, ok := s.clients[clientID]; ok {
		return &ClientInfo{
			Buffer:       client.Buffer,
			Width:        client.Width,
			Height:       client.Height,
			Offset:       client.Offset,
			ColorProfile: client.ColorProfile,
		}
	}
	return nil
}

func decodeSubscribe(payload interface{}) SubscribePayload {
	sub := SubscribePayload{Width: 80, Height: 24, ColorProfile: "ANSI256"}
	var parsed SubscribePayload
	if decodePayload(payload, &parsed) {
		if parsed.Buffer != "" {
			sub.Buffer = parsed.Buffer
		}
		if parsed.Width > 0 {
			sub.Width = parsed.Width
		}
		if parsed.Height > 0 {
			sub.Height = parsed.Height
		}
		if parsed.ColorProfile != "" {
			sub.ColorProfile = parsed.ColorProfile
		}
	}
	return sub
}

// decodePayload re-marshals the generic payload into a concrete type.
func decodePayload(payload interface{}, out interface{}) bool {
	if payload == nil {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (s *Server) sendMessage(conn net.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err = conn.Write(append(data, '\n'))
	return err
}
