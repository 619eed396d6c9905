package discovery

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Browser joins the multicast group and keeps a table of the sessions
// heard there. Reads poll with a short deadline so Stop is honored
// within one poll interval.
type Browser struct {
	group   *net.UDPAddr
	conn    *net.UDPConn
	tracker *tracker
	log     *zap.SugaredLogger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBrowser joins group on the first multicast-capable interface that
// lets us listen, falling back to the system default. Multicast
// loopback is enabled so a host and a browser on the same machine can
// see each other.
func NewBrowser(group string, log *zap.SugaredLogger) (*Browser, error) {
	addr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group %s: %w", group, err)
	}
	network := "udp4"
	if addr.IP.To4() == nil {
		network = "udp6"
	}

	var conn *net.UDPConn
	interfaces, _ := net.Interfaces()
	for i := range interfaces {
		iface := &interfaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if conn, err = net.ListenMulticastUDP(network, iface, addr); err == nil {
			log.Debugw("joined multicast group", "group", group, "interface", iface.Name)
			break
		}
	}
	if conn == nil {
		if conn, err = net.ListenMulticastUDP(network, nil, addr); err != nil {
			return nil, fmt.Errorf("join multicast group %s: %w", group, err)
		}
	}

	if addr.IP.To4() != nil {
		if err := ipv4.NewPacketConn(conn).SetMulticastLoopback(true); err != nil {
			log.Warnw("cannot enable multicast loopback", "err", err)
		}
	} else {
		if err := ipv6.NewPacketConn(conn).SetMulticastLoopback(true); err != nil {
			log.Warnw("cannot enable multicast loopback", "err", err)
		}
	}
	if err := conn.SetReadBuffer(maxPacketSize); err != nil {
		log.Warnw("cannot grow read buffer", "err", err)
	}

	return &Browser{
		group:   addr,
		conn:    conn,
		tracker: newTracker(entryLifetime),
		log:     log,
		stop:    make(chan struct{}),
	}, nil
}

// Start launches the read and prune loops.
func (b *Browser) Start() {
	b.wg.Add(2)
	go b.readLoop()
	go b.pruneLoop()
}

// Stop leaves the group. Safe to call more than once.
func (b *Browser) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	_ = b.conn.Close()
}

// Games returns the sessions heard within the entry lifetime, sorted
// by address.
func (b *Browser) Games() []Game {
	b.tracker.prune(time.Now())
	return b.tracker.games()
}

func (b *Browser) readLoop() {
	defer b.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-b.stop:
			return
		default:
		}

		_ = b.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, src, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			b.log.Debugw("multicast read failed", "err", err)
			continue
		}

		var ann Announcement
		if err := json.Unmarshal(buf[:n], &ann); err != nil {
			continue // not ours
		}
		if ann.Port <= 0 || ann.Name == "" {
			continue
		}
		if b.tracker.update(src.IP, ann, time.Now()) {
			b.log.Infow("session found", "name", ann.Name, "addr", src.IP, "port", ann.Port)
		}
	}
}

func (b *Browser) pruneLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if b.tracker.prune(time.Now()) {
				b.log.Debugw("stale sessions pruned")
			}
		}
	}
}
