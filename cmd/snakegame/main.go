// Command snakegame runs one participant of a co-op snake session.
//
// With no flags it hosts: it serves the websocket endpoint, runs the
// authoritative game and announces itself on the local network. With
// -connect it joins someone else's session as a replica. With -browse
// it prints the sessions currently announcing themselves and exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/InvictusNavarchus/snakegame-coop/pkg/config"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/discovery"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/game"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/logging"
	"github.com/InvictusNavarchus/snakegame-coop/pkg/session"
)

const (
	dialTimeout  = 10 * time.Second
	browseWindow = 3 * time.Second
	controlsHelp = "controls: w/a/s/d + enter to steer, p pause (host only), r restart, ctrl-c to quit"
)

func main() {
	cfg := config.Load()

	var (
		listen  = flag.String("listen", cfg.ListenAddr, "host mode: address to serve on")
		connect = flag.String("connect", "", "client mode: host websocket URL, e.g. ws://192.168.1.7:8080/ws")
		browse  = flag.Bool("browse", false, "list sessions on the local network and exit")
		name    = flag.String("name", cfg.AnnounceName, "session name to announce (host mode)")
	)
	flag.Parse()
	cfg.ListenAddr = *listen
	cfg.AnnounceName = *name

	log := logging.New(cfg.LogFile, cfg.Debug)
	defer func() { _ = log.Sync() }()

	switch {
	case *browse:
		runBrowse(cfg, log)
	case *connect != "":
		runClient(*connect, log)
	default:
		runHost(cfg, log)
	}
}

func runHost(cfg config.Config, log *zap.SugaredLogger) {
	host, err := session.NewHost(cfg.Settings(), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot start game:", err)
		os.Exit(1)
	}
	host.OnState = stateRenderer()
	host.Start()
	defer host.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", host.HandleWS)
	mux.Handle("/metrics", host.Metrics())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Infof("hosting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	announcer := startAnnouncer(cfg, host, log)
	if announcer != nil {
		defer announcer.Stop()
	}

	fmt.Printf("hosting %q on %s\n", cfg.AnnounceName, cfg.ListenAddr)
	if port := listenPort(cfg.ListenAddr); port > 0 {
		fmt.Printf("join from another machine: snakegame -connect ws://<this-host>:%d/ws\n", port)
	}
	fmt.Println(controlsHelp)

	go pumpInput(host, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println()
	log.Infow("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func runClient(url string, log *zap.SugaredLogger) {
	client := session.NewClient(log)
	client.OnStatus = func(s session.Status) { fmt.Printf("\n[%s]\n", s) }
	client.OnState = stateRenderer()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Connect(ctx, url); err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Println(controlsHelp)
	go pumpInput(client, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		fmt.Println()
		log.Infow("leaving session")
	case <-client.Done():
		fmt.Println("\nsession ended")
	}
}

func runBrowse(cfg config.Config, log *zap.SugaredLogger) {
	browser, err := discovery.NewBrowser(cfg.MulticastGroup, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "browse:", err)
		os.Exit(1)
	}
	browser.Start()
	defer browser.Stop()

	fmt.Printf("listening on %s for %s...\n", cfg.MulticastGroup, browseWindow)
	time.Sleep(browseWindow)

	games := browser.Games()
	if len(games) == 0 {
		fmt.Println("no sessions found")
		return
	}
	for _, g := range games {
		seats := "full"
		if g.CanJoin {
			seats = "open"
		}
		fmt.Printf("%-24s ws://%s/ws  %d/%d %s\n", g.Name, g.Addr, g.Players, g.MaxPlayers, seats)
	}
}

func startAnnouncer(cfg config.Config, host *session.Host, log *zap.SugaredLogger) *discovery.Announcer {
	port := listenPort(cfg.ListenAddr)
	if port <= 0 {
		log.Warnw("not announcing: listen address has no usable port", "addr", cfg.ListenAddr)
		return nil
	}
	snapshot := func() discovery.Announcement {
		players := int(host.Metrics().ConnectedPeers()) + 1 // plus the host seat
		return discovery.Announcement{
			Name:       cfg.AnnounceName,
			Port:       port,
			Players:    players,
			MaxPlayers: cfg.MaxPlayers,
			CanJoin:    players < cfg.MaxPlayers,
		}
	}
	announcer, err := discovery.NewAnnouncer(cfg.MulticastGroup, snapshot, log)
	if err != nil {
		log.Warnw("not announcing", "err", err)
		return nil
	}
	announcer.Start()
	return announcer
}

// intentSink is the part of a session either role exposes to the
// keyboard.
type intentSink interface {
	Steer(game.Direction)
	TogglePause()
	Restart()
}

// pumpInput maps line-buffered keys onto session intents. Enter is
// required after each key; raw terminal handling is the web client's
// job, this is the operator's fallback.
func pumpInput(sink intentSink, log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "w":
			sink.Steer(game.DirUp)
		case "s":
			sink.Steer(game.DirDown)
		case "a":
			sink.Steer(game.DirLeft)
		case "d":
			sink.Steer(game.DirRight)
		case "p":
			sink.TogglePause()
		case "r":
			sink.Restart()
		case "":
		default:
			log.Debugw("unmapped key", "input", scanner.Text())
		}
	}
}

// stateRenderer returns an OnState callback that keeps a one-line
// scoreboard updated in place and announces the end of a match once.
func stateRenderer() func(*game.GameState) {
	var over bool
	return func(st *game.GameState) {
		fmt.Printf("\r%-70s", scoreboard(st))
		if st.GameOver && !over {
			fmt.Println("\ngame over, press r to restart")
		}
		over = st.GameOver
	}
}

func scoreboard(st *game.GameState) string {
	parts := make([]string, 0, len(st.Snakes))
	for _, sn := range st.Snakes {
		mark := ""
		if !sn.Alive {
			mark = "x"
		}
		parts = append(parts, fmt.Sprintf("p%d%s %d", sn.PlayerIndex, mark, sn.Score))
	}
	status := "running"
	if st.IsPaused {
		status = "paused"
	}
	if st.GameOver {
		status = "over"
	}
	return fmt.Sprintf("%s | %s", strings.Join(parts, "  "), status)
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
