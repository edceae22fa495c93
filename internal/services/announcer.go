package services

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"grove/internal/config"
)

// MulticastAnnouncer tells the configured group that wallets changed.
// Clients listening on the group re-fetch their wallet; the datagram
// carries no payload beyond a marker, so delivery is fire-and-forget.
type MulticastAnnouncer struct {
	conn *net.UDPConn
	log  *slog.Logger
}

func NewMulticastAnnouncer(cfg config.MulticastConfig, log *slog.Logger) (*MulticastAnnouncer, error) {
	if log == nil {
		log = slog.Default()
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Group, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("resolving multicast group: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("opening multicast socket: %w", err)
	}
	return &MulticastAnnouncer{conn: conn, log: log.With("component", "announcer")}, nil
}

// RewardsUpdated emits one datagram. Send failures are logged, never
// propagated: a lost announcement only delays a client's wallet refresh.
func (a *MulticastAnnouncer) RewardsUpdated() {
	msg := fmt.Sprintf("rewards-updated %d", time.Now().Unix())
	if _, err := a.conn.Write([]byte(msg)); err != nil {
		a.log.Warn("reward announcement failed", "err", err)
	}
}

func (a *MulticastAnnouncer) Close() error { return a.conn.Close() }
