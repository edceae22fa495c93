//go:build linux

package server

import (
	"time"

	"golang.org/x/sys/unix"

	"grove/internal/metrics"
	"grove/internal/protocol"
)

// loop is the readiness loop. It is the only goroutine that reads,
// writes, or closes client sockets.
func (s *Server) loop() error {
	events := make([]unix.EpollEvent, 128)
	buf := make([]byte, s.cfg.ReadChunk)
	for {
		n, err := unix.EpollWait(s.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case s.listenFD:
				s.acceptReady()
			case s.wakeFD:
				s.drainWake()
			default:
				s.connReady(fd, events[i].Events, buf)
			}
		}
		select {
		case <-s.closing:
			return nil
		default:
		}
	}
}

func (s *Server) acceptReady() {
	for {
		nfd, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err != unix.EAGAIN {
				s.log.Warn("accept failed", "err", err)
			}
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			metrics.ConnectionsThrottled.Inc()
			unix.Close(nfd)
			continue
		}
		s.gen++
		c := &conn{fd: nfd, gen: s.gen}
		s.conns[nfd] = c
		if err := s.watch(unix.EPOLL_CTL_ADD, nfd, unix.EPOLLIN); err != nil {
			s.log.Warn("watch new connection failed", "err", err)
			delete(s.conns, nfd)
			unix.Close(nfd)
			continue
		}
		metrics.ConnectionsAccepted.Inc()
		metrics.ActiveConnections.Inc()
	}
}

// drainWake clears the eventfd counter and applies every finished worker
// result that still belongs to a live connection.
func (s *Server) drainWake() {
	var scratch [8]byte
	for {
		if _, err := unix.Read(s.wakeFD, scratch[:]); err != nil {
			break
		}
	}
	for {
		select {
		case f := <-s.done:
			c, ok := s.conns[f.fd]
			if !ok || c.gen != f.gen {
				continue // connection died or fd was recycled meanwhile
			}
			c.out = f.data
			if err := s.watch(unix.EPOLL_CTL_MOD, c.fd, unix.EPOLLOUT); err != nil {
				s.closeConn(c)
			}
		default:
			return
		}
	}
}

func (s *Server) connReady(fd int, events uint32, buf []byte) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		s.closeConn(c)
		return
	}
	if events&unix.EPOLLIN != 0 {
		s.readable(c, buf)
		return
	}
	if events&unix.EPOLLOUT != 0 {
		s.writable(c)
	}
}

func (s *Server) readable(c *conn, buf []byte) {
	for {
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			if ferr := c.dec.Feed(buf[:n]); ferr != nil {
				s.reject(c, protocol.Error(protocol.StatusBadRequest, ferr.Error()))
				return
			}
			if c.dec.Complete() {
				s.dispatch(c)
				return
			}
			if n < len(buf) {
				return // drained for now, epoll will report more
			}
			continue
		}
		if n == 0 {
			s.closeConn(c) // peer went away before a full request
			return
		}
		if err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR {
			continue
		}
		s.closeConn(c)
		return
	}
}

// dispatch parks the connection (no epoll interest) while a worker owns
// the request, so the loop never sees it again until the result lands.
func (s *Server) dispatch(c *conn) {
	if err := s.watch(unix.EPOLL_CTL_MOD, c.fd, 0); err != nil {
		s.closeConn(c)
		return
	}
	select {
	case s.jobs <- job{fd: c.fd, gen: c.gen, req: c.dec.Request(), start: time.Now()}:
	default:
		s.reject(c, protocol.Error(protocol.StatusInternal, "server busy"))
	}
}

func (s *Server) reject(c *conn, resp *protocol.Response) {
	c.out = resp.Encode()
	if err := s.watch(unix.EPOLL_CTL_MOD, c.fd, unix.EPOLLOUT); err != nil {
		s.closeConn(c)
	}
}

func (s *Server) writable(c *conn) {
	for c.off < len(c.out) {
		n, err := unix.Write(c.fd, c.out[c.off:])
		if n > 0 {
			c.off += n
			continue
		}
		if err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR {
			continue
		}
		break
	}
	s.closeConn(c) // response flushed (or the socket is dead); either way we are done
}

func (s *Server) closeConn(c *conn) {
	delete(s.conns, c.fd)
	unix.Close(c.fd)
	metrics.ActiveConnections.Dec()
}
