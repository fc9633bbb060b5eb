package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	sessionID := fmt.Sprintf("wiretest-%d-%d", os.Getpid(), time.Now().UnixNano())
	srv := NewServer(sessionID)
	srv.OnRenderNeeded = func(buffer string, width, height int) *RenderPayload {
		return &RenderPayload{
			Buffer:     buffer,
			Path:       "/tmp",
			Lines:      []string{"docs/", "notes.txt"},
			Width:      width,
			Height:     height,
			TotalLines: 2,
		}
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	return srv, sessionID
}

func dialAndSubscribe(t *testing.T, sessionID, clientID, buffer string) (net.Conn, *bufio.Scanner) {
	t.Helper()
	conn, err := net.Dial("unix", SocketPath(sessionID))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	send(t, conn, Message{
		Type:     MsgSubscribe,
		ClientID: clientID,
		Payload:  SubscribePayload{Buffer: buffer, Width: 40, Height: 10},
	})
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return conn, scanner
}

func send(t *testing.T, conn net.Conn, msg Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		t.Fatal(err)
	}
}

func readMessage(t *testing.T, scanner *bufio.Scanner) Message {
	t.Helper()
	if !scanner.Scan() {
		t.Fatalf("connection closed: %v", scanner.Err())
	}
	var msg Message
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSubscribeReceivesInitialRender(t *testing.T) {
	_, sessionID := startTestServer(t)
	_, scanner := dialAndSubscribe(t, sessionID, "%5", "b1")

	msg := readMessage(t, scanner)
	if msg.Type != MsgRender {
		t.Fatalf("first message type = %s, want render", msg.Type)
	}
	data, _ := json.Marshal(msg.Payload)
	var payload RenderPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Buffer != "b1" || payload.Width != 40 || payload.Height != 10 {
		t.Errorf("payload = %+v", payload)
	}
	if payload.SequenceNum == 0 {
		t.Error("sequence number not assigned")
	}
	if len(payload.Lines) != 2 {
		t.Errorf("lines = %v", payload.Lines)
	}
}

func TestSubscriberCountTracksBuffers(t *testing.T) {
	srv, sessionID := startTestServer(t)
	dialAndSubscribe(t, sessionID, "%1", "b1")
	dialAndSubscribe(t, sessionID, "%2", "b1")
	dialAndSubscribe(t, sessionID, "%3", "b2")

	waitFor(t, func() bool { return srv.ClientCount() == 3 }, "clients never registered")
	if got := srv.SubscriberCount("b1"); got != 2 {
		t.Errorf("SubscriberCount(b1) = %d, want 2", got)
	}
	if got := srv.SubscriberCount("b2"); got != 1 {
		t.Errorf("SubscriberCount(b2) = %d, want 1", got)
	}
	if got := srv.SubscriberCount("b9"); got != 0 {
		t.Errorf("SubscriberCount(b9) = %d, want 0", got)
	}
}

func TestScrollCallbackSeesSharedVisibility(t *testing.T) {
	srv, sessionID := startTestServer(t)
	var gotBuffer atomic.Value
	var gotVisible atomic.Int64
	srv.OnScroll = func(buffer string, offset, visible int) {
		gotBuffer.Store(buffer)
		gotVisible.Store(int64(visible))
	}

	conn, _ := dialAndSubscribe(t, sessionID, "%1", "b1")
	dialAndSubscribe(t, sessionID, "%2", "b1")
	waitFor(t, func() bool { return srv.ClientCount() == 2 }, "clients never registered")

	send(t, conn, Message{
		Type:     MsgScroll,
		ClientID: "%1",
		Payload:  ScrollPayload{Buffer: "b1", Offset: 3},
	})

	waitFor(t, func() bool { return gotVisible.Load() == 2 }, "scroll callback never fired")
	if gotBuffer.Load() != "b1" {
		t.Errorf("scroll buffer = %v, want b1", gotBuffer.Load())
	}
	waitFor(t, func() bool {
		info := srv.GetClientInfo("%1")
		return info != nil && info.Offset == 3
	}, "client offset not recorded")
}

func TestNavigateCallback(t *testing.T) {
	srv, sessionID := startTestServer(t)
	var gotPath atomic.Value
	srv.OnNavigate = func(clientID, path string) { gotPath.Store(clientID + " " + path) }

	conn, _ := dialAndSubscribe(t, sessionID, "%1", "b1")
	send(t, conn, Message{
		Type:     MsgNavigate,
		ClientID: "%1",
		Payload:  NavigatePayload{Path: "/a/b"},
	})

	waitFor(t, func() bool { return gotPath.Load() != nil }, "navigate callback never fired")
	if gotPath.Load() != "%1 /a/b" {
		t.Errorf("navigate = %q", gotPath.Load())
	}
}

func TestSelectCallback(t *testing.T) {
	srv, sessionID := startTestServer(t)
	var gotPath atomic.Value
	srv.OnSelect = func(clientID, path string) { gotPath.Store(clientID + " " + path) }

	conn, _ := dialAndSubscribe(t, sessionID, "%1", "b1")
	send(t, conn, Message{
		Type:     MsgSelect,
		ClientID: "%1",
		Payload:  SelectPayload{Path: "/a/b/docs"},
	})

	waitFor(t, func() bool { return gotPath.Load() != nil }, "select callback never fired")
	if gotPath.Load() != "%1 /a/b/docs" {
		t.Errorf("select = %q", gotPath.Load())
	}
}

func TestBroadcastAllHitsEveryClient(t *testing.T) {
	srv, sessionID := startTestServer(t)
	_, scanA := dialAndSubscribe(t, sessionID, "%1", "b1")
	_, scanB := dialAndSubscribe(t, sessionID, "%2", "b2")
	waitFor(t, func() bool { return srv.ClientCount() == 2 }, "clients never registered")

	// Drain the initial renders.
	readMessage(t, scanA)
	readMessage(t, scanB)

	srv.BroadcastAll()

	if msg := readMessage(t, scanA); msg.Type != MsgRender {
		t.Errorf("b1 subscriber got %s, want render", msg.Type)
	}
	if msg := readMessage(t, scanB); msg.Type != MsgRender {
		t.Errorf("b2 subscriber got %s, want render", msg.Type)
	}
}

func TestBroadcastBufferOnlyHitsSubscribers(t *testing.T) {
	srv, sessionID := startTestServer(t)
	_, scanA := dialAndSubscribe(t, sessionID, "%1", "b1")
	connB, scanB := dialAndSubscribe(t, sessionID, "%2", "b2")
	waitFor(t, func() bool { return srv.ClientCount() == 2 }, "clients never registered")

	// Drain the initial renders.
	readMessage(t, scanA)
	readMessage(t, scanB)

	srv.BroadcastBuffer("b1")

	msg := readMessage(t, scanA)
	if msg.Type != MsgRender {
		t.Errorf("b1 subscriber got %s, want render", msg.Type)
	}
	// The b2 subscriber must see nothing from the broadcast: a ping sent now
	// must be answered by a pong as the very next message.
	send(t, connB, Message{Type: MsgPing, ClientID: "%2"})
	if msg := readMessage(t, scanB); msg.Type != MsgPong {
		t.Errorf("b2 subscriber got %s, want pong", msg.Type)
	}
}

func TestPidfileClaim(t *testing.T) {
	_, sessionID := startTestServer(t)

	second := NewServer(sessionID)
	err := second.Start()
	if err == nil {
		second.Stop()
		t.Fatal("second daemon claimed an owned pidfile")
	}
}

func TestStopCleansUp(t *testing.T) {
	sessionID := fmt.Sprintf("wiretest-stop-%d", os.Getpid())
	srv := NewServer(sessionID)
	srv.OnRenderNeeded = func(buffer string, w, h int) *RenderPayload { return nil }
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	srv.Stop()

	if _, err := os.Stat(SocketPath(sessionID)); !os.IsNotExist(err) {
		t.Error("socket file left behind")
	}
	if _, err := os.Stat(PidPath(sessionID)); !os.IsNotExist(err) {
		t.Error("pidfile left behind")
	}
}
