package media

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultWorkers = 10

// Server runs a fixed pool of workers, each in a blocking accept-and-serve
// loop over one shared listener. One worker handles one connection at a time;
// a slow renderer only ties up its own worker.
type Server struct {
	addr    string
	workers int
	handler http.Handler
	logger  *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	started bool
	running atomic.Bool
	wg      sync.WaitGroup
}

func NewServer(addr string, workers int, handler http.Handler, logger *slog.Logger) *Server {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, workers: workers, handler: handler, logger: logger}
}

// Start binds the listener and launches the worker pool. Idempotent: callers
// that need the server (cast subscriptions) call it without checking.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("media listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.started = true
	s.running.Store(true)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	s.logger.Info("media server started",
		slog.String("addr", ln.Addr().String()),
		slog.Int("workers", s.workers))
	return nil
}

// Addr reports the bound address, "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Port reports the bound TCP port, 0 before Start.
func (s *Server) Port() int {
	addr := s.Addr()
	if addr == "" {
		return 0
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

func (s *Server) worker(id int) {
	defer s.wg.Done()
	for s.running.Load() {
		conn, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.logger.Warn("accept failed", slog.Int("worker", id), slog.String("error", err.Error()))
			continue
		}
		if !s.running.Load() {
			_ = conn.Close()
			return
		}
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	br := bufio.NewReader(conn)
	rw := newConnWriter(conn, br)

	// A hijacked connection (websocket upgrade) outlives this call and is
	// closed by its new owner.
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("connection handler panic", slog.Any("error", err))
		}
		if !rw.hijacked {
			_ = conn.Close()
		}
	}()

	req, err := http.ReadRequest(br)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	req = req.WithContext(context.Background())
	req.RemoteAddr = conn.RemoteAddr().String()

	s.handler.ServeHTTP(rw, req)
	rw.finish()
}

// Stop flips the running flag, unparks every worker blocked in accept with
// synthetic connections, joins the pool and only then closes the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ln := s.ln
	s.mu.Unlock()

	s.running.Store(false)
	for i := 0; i < s.workers*2+2; i++ {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
		if err != nil {
			break
		}
		_ = conn.Close()
	}
	s.wg.Wait()
	_ = ln.Close()
	s.logger.Info("media server stopped")
}

// connWriter adapts a raw connection to http.ResponseWriter for handlers that
// were written (and tested) against net/http. It also supports hijacking so
// websocket upgrades work on worker-pool connections.
type connWriter struct {
	conn        net.Conn
	br          *bufio.Reader
	bw          *bufio.Writer
	header      http.Header
	wroteHeader bool
	hijacked    bool
}

func newConnWriter(conn net.Conn, br *bufio.Reader) *connWriter {
	return &connWriter{
		conn:   conn,
		br:     br,
		bw:     bufio.NewWriter(conn),
		header: make(http.Header),
	}
}

func (w *connWriter) Header() http.Header { return w.header }

func (w *connWriter) WriteHeader(status int) {
	if w.wroteHeader || w.hijacked {
		return
	}
	w.wroteHeader = true

	fmt.Fprintf(w.bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if w.header.Get("Connection") == "" {
		w.header.Set("Connection", "close")
	}
	keys := make([]string, 0, len(w.header))
	for key := range w.header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range w.header[key] {
			fmt.Fprintf(w.bw, "%s: %s\r\n", key, value)
		}
	}
	w.bw.WriteString("\r\n")
}

func (w *connWriter) Write(b []byte) (int, error) {
	if w.hijacked {
		return 0, http.ErrHijacked
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.bw.Write(b)
}

func (w *connWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.wroteHeader {
		return nil, nil, fmt.Errorf("hijack after headers written")
	}
	w.hijacked = true
	return w.conn, bufio.NewReadWriter(w.br, w.bw), nil
}

func (w *connWriter) finish() {
	if w.hijacked {
		return
	}
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	_ = w.bw.Flush()
}
