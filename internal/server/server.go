//go:build linux

// Package server owns the client listener: a single epoll readiness loop
// that never blocks on a socket, plus a bounded worker pool that runs
// router dispatch off the loop. One request per connection; the response
// is written and the connection closed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"grove/internal/config"
	"grove/internal/metrics"
	"grove/internal/protocol"
)

// Handler turns one decoded request into a response. The router satisfies
// this.
type Handler interface {
	Route(req *protocol.Request) *protocol.Response
}

// jobQueue bounds requests parked between the loop and the workers.
const jobQueue = 256

type job struct {
	fd    int
	gen   uint64
	req   *protocol.Request
	start time.Time
}

type finished struct {
	fd   int
	gen  uint64
	data []byte
}

// conn is the loop-side state of one accepted socket. Only the loop
// goroutine touches it.
type conn struct {
	fd  int
	gen uint64
	dec protocol.Decoder
	out []byte
	off int
}

// Server multiplexes client connections over a single epoll instance.
type Server struct {
	cfg     config.ServerConfig
	handler Handler
	log     *slog.Logger
	limiter *rate.Limiter

	epfd     int
	listenFD int
	wakeFD   int
	addr     *net.TCPAddr

	// conns and gen are owned by the loop goroutine. gen guards against a
	// worker's result landing on a recycled fd.
	conns map[int]*conn
	gen   uint64

	jobs    chan job
	done    chan finished
	closing chan struct{}
	workers sync.WaitGroup
}

// New binds the listener and prepares the epoll instance. The returned
// server is not serving until Run is called, but its address is already
// resolved, so a configured port of 0 can be inspected through Addr.
func New(cfg config.ServerConfig, handler Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ReadChunk < 1 {
		cfg.ReadChunk = 4096
	}
	s := &Server{
		cfg:     cfg,
		handler: handler,
		log:     log.With("component", "server"),
		conns:   make(map[int]*conn),
		jobs:    make(chan job, jobQueue),
		done:    make(chan finished, jobQueue+cfg.Workers),
		closing: make(chan struct{}),
	}
	if cfg.AcceptRate > 0 {
		burst := cfg.AcceptBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}
	if err := s.listen(); err != nil {
		return nil, err
	}
	if err := s.initPoller(); err != nil {
		unix.Close(s.listenFD)
		return nil, err
	}
	return s, nil
}

func (s *Server) listen() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", s.cfg.Bind, err)
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("setsockopt: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind %q: %w", s.cfg.Bind, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("listen: %w", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return fmt.Errorf("getsockname: %w", err)
	}
	sa4 := bound.(*unix.SockaddrInet4)
	s.listenFD = fd
	s.addr = &net.TCPAddr{IP: net.IP(sa4.Addr[:]), Port: sa4.Port}
	return nil
}

func (s *Server) initPoller() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return fmt.Errorf("eventfd: %w", err)
	}
	s.epfd = epfd
	s.wakeFD = wakeFD
	if err := s.watch(unix.EPOLL_CTL_ADD, s.listenFD, unix.EPOLLIN); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return err
	}
	if err := s.watch(unix.EPOLL_CTL_ADD, s.wakeFD, unix.EPOLLIN); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return err
	}
	return nil
}

func (s *Server) watch(op, fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl fd %d: %w", fd, err)
	}
	return nil
}

// Addr is the bound listener address.
func (s *Server) Addr() *net.TCPAddr { return s.addr }

// Run serves until ctx is cancelled, then closes every connection and
// drains the worker pool.
func (s *Server) Run(ctx context.Context) error {
	for i := 0; i < s.cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker()
	}
	go func() {
		<-ctx.Done()
		close(s.closing)
		s.wake()
	}()

	s.log.Info("listening", "addr", s.addr.String(), "workers", s.cfg.Workers)
	err := s.loop()

	for fd, c := range s.conns {
		unix.Close(c.fd)
		delete(s.conns, fd)
		metrics.ActiveConnections.Dec()
	}
	unix.Close(s.listenFD)
	unix.Close(s.wakeFD)
	unix.Close(s.epfd)
	close(s.jobs)
	s.workers.Wait()
	return err
}

func (s *Server) worker() {
	defer s.workers.Done()
	for j := range s.jobs {
		resp := s.handler.Route(j.req)
		metrics.ObserveRequest(resp.StatusClass(), j.start)
		// done is sized for every job in flight, so this never blocks.
		s.done <- finished{fd: j.fd, gen: j.gen, data: resp.Encode()}
		s.wake()
	}
}

// wake nudges the epoll loop through the eventfd. Failure only delays the
// loop until its next readiness event.
func (s *Server) wake() {
	var one = [8]byte{1}
	if _, err := unix.Write(s.wakeFD, one[:]); err != nil && err != unix.EAGAIN {
		s.log.Warn("wake failed", "err", err)
	}
}
