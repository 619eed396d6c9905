package discovery

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Announcer multicasts a session's announcement once a second. The
// snapshot callback is polled on every send, so player counts stay
// current without any coupling to the session itself.
type Announcer struct {
	group    *net.UDPAddr
	conn     *net.UDPConn
	snapshot func() Announcement
	log      *zap.SugaredLogger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAnnouncer binds a UDP socket for sending to group. Start must be
// called before anything goes on the wire.
func NewAnnouncer(group string, snapshot func() Announcement, log *zap.SugaredLogger) (*Announcer, error) {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group %s: %w", group, err)
	}
	local, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("resolve local address: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("bind announce socket: %w", err)
	}
	return &Announcer{
		group:    addr,
		conn:     conn,
		snapshot: snapshot,
		log:      log,
		stop:     make(chan struct{}),
	}, nil
}

// Start announces immediately and then on every interval tick.
func (a *Announcer) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop ends the announcements and closes the socket. Safe to call more
// than once.
func (a *Announcer) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
	_ = a.conn.Close()
}

func (a *Announcer) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	a.send()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.send()
		}
	}
}

func (a *Announcer) send() {
	ann := a.snapshot()
	data, err := json.Marshal(ann)
	if err != nil {
		a.log.Errorw("encoding announcement failed", "err", err)
		return
	}
	if _, err := a.conn.WriteToUDP(data, a.group); err != nil {
		a.log.Debugw("announcement send failed", "group", a.group, "err", err)
	}
}
