package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/b/tmux-voyager/pkg/config"
	"github.com/b/tmux-voyager/pkg/debounce"
	"github.com/b/tmux-voyager/pkg/listing"
	"github.com/b/tmux-voyager/pkg/paths"
	"github.com/b/tmux-voyager/pkg/perf"
	"github.com/b/tmux-voyager/pkg/reconcile"
	"github.com/b/tmux-voyager/pkg/refresh"
	"github.com/b/tmux-voyager/pkg/session"
	"github.com/b/tmux-voyager/pkg/shellout"
	"github.com/b/tmux-voyager/pkg/tmux"
	"github.com/b/tmux-voyager/pkg/wire"
)

var crashLog *log.Logger
var eventLog *log.Logger

func initCrashLog(sessionID string) {
	crashLogPath := fmt.Sprintf("/tmp/voyager-daemon-%s-crash.log", sessionID)
	f, err := os.OpenFile(crashLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		crashLog = log.New(os.Stderr, "[CRASH] ", log.LstdFlags)
		return
	}
	crashLog = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
}

func initEventLog() {
	eventLog = log.New(&lumberjack.Logger{
		Filename:   paths.StatePath("daemon.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}, "[event] ", log.LstdFlags|log.Lmicroseconds)
}

func logEvent(format string, args ...interface{}) {
	if eventLog != nil {
		eventLog.Printf(format, args...)
	}
}

func logCrash(context string, r interface{}) {
	crashLog.Printf("=== CRASH in %s ===", context)
	crashLog.Printf("Panic: %v", r)
	crashLog.Printf("Stack trace:\n%s", debug.Stack())
	crashLog.Printf("=== END CRASH ===\n")
}

func recoverAndLog(context string) {
	if r := recover(); r != nil {
		logCrash(context, r)
	}
}

var (
	sessionID  = flag.String("session", "", "tmux session ID")
	windowID   = flag.String("window", "", "tmux window ID to manage")
	rootPane   = flag.String("pane", "", "pane ID of the current-directory listing")
	startDir   = flag.String("dir", "", "initial directory (defaults to cwd)")
	configPath = flag.String("config", "", "config file path")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
)

var debugLog *log.Logger

// rendererBin returns the path to the voyager-pane binary next to the daemon.
func rendererBin() string {
	exe, err := os.Executable()
	if err != nil {
		return "voyager-pane"
	}
	return filepath.Join(filepath.Dir(exe), "voyager-pane")
}

func main() {
	flag.Parse()

	if *sessionID == "" {
		out, err := exec.Command("tmux", "display-message", "-p", "#{session_id}").Output()
		if err == nil {
			*sessionID = strings.TrimSpace(string(out))
		}
	}

	initCrashLog(*sessionID)
	initEventLog()
	defer recoverAndLog("main")

	if *debugMode {
		debugLog = log.New(os.Stderr, "[daemon] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		debugLog = log.New(os.Stderr, "", 0)
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		debugLog.Printf("Config not loaded (%v), using defaults", err)
		cfg = config.Default()
	}

	root := *startDir
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			log.Fatalf("Cannot determine start directory: %v", err)
		}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		log.Fatalf("Bad start directory: %v", err)
	}

	if *windowID == "" {
		*windowID, err = tmux.CurrentWindow()
		if err != nil {
			log.Fatalf("Cannot determine window: %v", err)
		}
	}
	if *rootPane == "" {
		log.Fatal("voyager-daemon: -pane is required")
	}

	debugLog.Printf("Starting daemon for session %s window %s at %s", *sessionID, *windowID, root)
	crashLog.Printf("Daemon started for session %s", *sessionID)

	server := wire.NewServer(*sessionID)

	store := listing.NewStore(listing.Options{
		ShowHidden: cfg.Listing.ShowHidden,
		Order:      cfg.Listing.Order,
	}, server.BroadcastBuffer)

	surface := tmux.NewSurface(func(buffer string) string {
		return fmt.Sprintf("%s -session %s -buffer %s", rendererBin(), *sessionID, buffer)
	}, eventLog)

	sched := debounce.New(crashLog)
	manager := session.NewManager()
	rec := reconcile.New(surface, store, reconcile.Config{
		ModeLine:   cfg.Decor.ModeLine == "full",
		HeaderLine: cfg.Decor.HeaderLine == "full",
		HeaderPane: cfg.Layout.HeaderPane,
		FooterPane: cfg.Layout.FooterPane,
	}, eventLog)

	delay := time.Duration(cfg.Refresh.DebounceMS) * time.Millisecond
	controller := refresh.New(manager, sched, rec, store, refresh.Layout{
		MaxParentWidth: cfg.Layout.MaxParentWidth,
		SelfWidth:      cfg.Layout.SelfWidth,
	}, delay, eventLog)
	// Rebuilds read the window width so narrow windows get fewer parent panes.
	controller.WidthOf = tmux.WindowWidth

	// Activate the session and bind the primary listing into the root pane.
	rootBuffer, err := store.CreateOrReuse(root)
	if err != nil {
		log.Fatalf("Cannot list %s: %v", root, err)
	}
	sess := manager.Activate(*windowID, func() *session.Session {
		s := session.New(*windowID, root, *rootPane, cfg.Layout.Depth,
			cfg.Layout.PreviewWidth, !cfg.Layout.Minimal)
		s.RootBuffer = rootBuffer
		return s
	})
	if err := surface.Bind(*rootPane, rootBuffer); err != nil {
		log.Fatalf("Cannot bind root pane: %v", err)
	}

	// Directory watcher: changes on disk revert the current listing.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		debugLog.Printf("fsnotify unavailable: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(root); err != nil {
			debugLog.Printf("watch %s: %v", root, err)
		}
		go func() {
			defer recoverAndLog("fs-watch")
			for {
				select {
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
						logEvent("FS_EVENT op=%s name=%s", ev.Op, ev.Name)
						controller.Dispatch(refresh.Event{
							Kind:    refresh.Revert,
							Surface: *windowID,
							Path:    filepath.Dir(ev.Name),
						})
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					logEvent("FS_ERROR err=%v", err)
				}
			}
		}()
	}

	// updateStrips refreshes the header and footer buffers for the current
	// root. The size lookup shells out to du, so it sits behind its own
	// debounce and never runs on the event path directly.
	runner := shellout.ExecRunner{}
	updateStrips := func() {
		if headerBuf, err := store.CreateVirtual("header:" + *windowID); err == nil {
			store.SetContent(headerBuf, []string{sess.Root})
		}
		sched.Debounce(sess.Label("footer-size"), 500*time.Millisecond, func() {
			size, err := shellout.DirSize(runner, sess.Root)
			if err != nil {
				if errors.Is(err, shellout.ErrToolUnavailable) {
					tmux.DisplayMessage("voyager: size lookup tool not found")
				}
				logEvent("SIZE_LOOKUP_FAIL dir=%s err=%v", sess.Root, err)
				return
			}
			if footerBuf, err := store.CreateVirtual("footer:" + *windowID); err == nil {
				store.SetContent(footerBuf, []string{fmt.Sprintf("%s  %s", sess.Root, size)})
			}
		})
	}

	// previewFor fills the preview buffer for the selected entry. Reads sit
	// behind a debounce so holding j/k costs one read, not one per row. Only
	// the renderer showing the root listing drives the preview; parent panes
	// report selections too and are ignored.
	previewFor := func(clientID, path string) {
		sched.Debounce(sess.Label("preview"), delay, func() {
			defer recoverAndLog("preview")
			info := server.GetClientInfo(clientID)
			if info == nil || info.Buffer != sess.RootBuffer {
				return
			}
			if buf, err := store.CreateVirtual("preview:" + *windowID); err == nil {
				store.SetContent(buf, previewLines(path))
			}
		})
	}

	// navigate changes the session root and triggers a rebuild. Runs on the
	// scheduler goroutine so it never interleaves with a rebuild in flight.
	navigate := func(path string) {
		sched.Post(func() {
			defer recoverAndLog("navigate")
			info, err := os.Stat(path)
			if err != nil || !info.IsDir() {
				logEvent("NAVIGATE_REJECT path=%s err=%v", path, err)
				return
			}
			buffer, err := store.Revert(path)
			if err != nil {
				logEvent("NAVIGATE_FAIL path=%s err=%v", path, err)
				return
			}
			old := sess.Root
			sess.Root = path
			sess.RootBuffer = buffer
			if err := surface.Bind(sess.RootRegion, buffer); err != nil {
				logEvent("NAVIGATE_BIND_FAIL pane=%s err=%v", sess.RootRegion, err)
			}
			if watcher != nil && old != path {
				watcher.Remove(old)
				if err := watcher.Add(path); err != nil {
					debugLog.Printf("watch %s: %v", path, err)
				}
			}
			logEvent("NAVIGATE from=%s to=%s", old, path)
			updateStrips()
		})
		controller.Dispatch(refresh.Event{Kind: refresh.BufferChange, Surface: *windowID})
	}

	server.OnRenderNeeded = func(buffer string, width, height int) (result *wire.RenderPayload) {
		defer func() {
			if r := recover(); r != nil {
				logCrash("render", r)
				result = nil
			}
		}()
		lines, ok := store.Content(buffer)
		if !ok {
			return nil
		}
		path, _ := store.PathOf(buffer)
		return &wire.RenderPayload{
			Buffer:     buffer,
			Path:       path,
			Lines:      lines,
			Width:      width,
			Height:     height,
			TotalLines: len(lines),
		}
	}
	server.OnScroll = func(buffer string, offset, visible int) {
		controller.Dispatch(refresh.Event{
			Kind:         refresh.Scroll,
			Surface:      *windowID,
			Buffer:       buffer,
			VisibleCount: visible,
		})
	}
	server.OnNavigate = func(clientID, path string) {
		defer recoverAndLog("navigate-input")
		navigate(filepath.Clean(path))
	}
	server.OnSelect = func(clientID, path string) {
		previewFor(clientID, filepath.Clean(path))
	}
	server.OnResize = func(clientID string, width, height int) {
		if info := server.GetClientInfo(clientID); info != nil {
			logEvent("CLIENT_RESIZE client=%s buffer=%s w=%d h=%d",
				clientID, info.Buffer, width, height)
		}
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	debugLog.Printf("Server listening on %s", server.GetSocketPath())
	logEvent("DAEMON_START session=%s window=%s pid=%d", *sessionID, *windowID, os.Getpid())

	// First layout pass.
	perf.Track("initial-rebuild", func() { controller.RebuildNow(*windowID) })
	updateStrips()

	// tmux hooks send SIGUSR1 on pane/window changes for an instant refresh.
	refreshSigCh := make(chan os.Signal, 10)
	signal.Notify(refreshSigCh, syscall.SIGUSR1)
	go func() {
		defer recoverAndLog("signal-refresh")
		for range refreshSigCh {
			logEvent("SIGNAL_REFRESH session=%s", *sessionID)
			controller.Dispatch(refresh.Event{Kind: refresh.BufferChange, Surface: *windowID})
		}
	}()

	// SIGUSR2 forces a full re-push to every renderer, regardless of buffer.
	redrawSigCh := make(chan os.Signal, 1)
	signal.Notify(redrawSigCh, syscall.SIGUSR2)
	go func() {
		defer recoverAndLog("signal-redraw")
		for range redrawSigCh {
			logEvent("SIGNAL_REDRAW session=%s", *sessionID)
			server.BroadcastAll()
		}
	}()

	// Fallback polling for missed hooks, plus focus tracking. The poll only
	// dispatches when the window's pane layout changed since the last pass,
	// so an idle window costs one list-panes call, not a reconcile round.
	lastLayout := ""
	sched.Repeat("poll-refresh", delay, time.Duration(cfg.Refresh.PollMS)*time.Millisecond, func() {
		panes, err := tmux.ListPanes(*windowID)
		if err != nil {
			return
		}
		sig := tmux.LayoutSignature(panes)
		if sig == lastLayout {
			return
		}
		lastLayout = sig
		logEvent("POLL_LAYOUT_CHANGE window=%s", *windowID)
		controller.Dispatch(refresh.Event{Kind: refresh.BufferChange, Surface: *windowID})
	})
	sched.Repeat("focus-track", time.Second, time.Second, func() {
		current, err := tmux.CurrentWindow()
		if err != nil {
			return
		}
		controller.Dispatch(refresh.Event{Kind: refresh.FocusChange, Surface: current})
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Monitor for idle shutdown, window/session teardown, and socket health.
	go func() {
		defer recoverAndLog("idle-monitor")
		idleTicker := time.NewTicker(10 * time.Second)
		socketCheckTicker := time.NewTicker(3 * time.Second)
		defer idleTicker.Stop()
		defer socketCheckTicker.Stop()
		idleStart := time.Time{}
		myPid := os.Getpid()
		socketPath := server.GetSocketPath()

		for {
			select {
			case <-socketCheckTicker.C:
				if _, err := os.Stat(socketPath); os.IsNotExist(err) {
					logEvent("SHUTDOWN_REASON reason=socket_gone pid=%d", myPid)
					sigCh <- syscall.SIGTERM
					return
				}
				// Another daemon may have claimed the pidfile.
				if data, err := os.ReadFile(wire.PidPath(*sessionID)); err == nil {
					if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid != myPid {
						logEvent("SHUTDOWN_REASON reason=pid_replaced our=%d new=%d", myPid, pid)
						sigCh <- syscall.SIGTERM
						return
					}
				}

			case <-idleTicker.C:
				if !tmux.SessionAlive(*sessionID) {
					logEvent("SHUTDOWN_REASON reason=session_gone")
					sigCh <- syscall.SIGTERM
					return
				}
				if !tmux.WindowExists(*windowID) {
					logEvent("SHUTDOWN_REASON reason=window_gone window=%s", *windowID)
					sigCh <- syscall.SIGTERM
					return
				}
				if server.ClientCount() == 0 {
					if idleStart.IsZero() {
						idleStart = time.Now()
					} else if time.Since(idleStart) > 30*time.Second {
						logEvent("SHUTDOWN_REASON reason=idle_timeout clients=0")
						sigCh <- syscall.SIGTERM
						return
					}
				} else {
					idleStart = time.Time{}
				}
			}
		}
	}()

	<-sigCh
	debugLog.Printf("Shutting down daemon")
	logEvent("DAEMON_STOP session=%s pid=%d", *sessionID, os.Getpid())

	sched.StopRepeats()
	for _, surfaceID := range manager.Surfaces() {
		controller.DestroySession(surfaceID)
	}
	// Give teardown tasks queued above a moment to run before the loop stops.
	done := make(chan struct{})
	sched.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	sched.Stop()
	server.Stop()
}

const previewMaxRows = 200

// previewLines produces the preview buffer's rows for one selected entry:
// directories list their entries, files show their first rows.
func previewLines(path string) []string {
	info, err := os.Stat(path)
	if err != nil {
		return []string{fmt.Sprintf("cannot preview: %v", err)}
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return []string{fmt.Sprintf("cannot preview: %v", err)}
		}
		lines := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			lines = append(lines, name)
		}
		return lines
	}
	f, err := os.Open(path)
	if err != nil {
		return []string{fmt.Sprintf("cannot preview: %v", err)}
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < previewMaxRows {
		lines = append(lines, scanner.Text())
	}
	return lines
}
