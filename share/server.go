package wsshare

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/sammck-go/asyncobj"
	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wsmux"
	"github.com/sammck-go/wsmux/pkg/wstnet"
)

// Server accepts connections on one port and runs a wsmux session for
// each, plaintext and TLS alike.
type Server struct {
	asyncobj.Helper
	config       *ServerConfig
	connStats    ConnStats
	tlsConfig    *tls.Config
	certReloader *CertReloader
	orch         *wsmux.Orchestrator
	sessionCfg   wsmux.SessionConfig
	listener     *Listener
	startCtx     context.Context
	ctx          context.Context
}

// NewServer creates a server. config is validated and defaults are
// filled in.
func NewServer(lg logger.Logger, config *ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", lg.Prefix(), err)
	}
	s := &Server{
		config:     config,
		sessionCfg: config.sessionConfig(),
	}
	s.InitHelper(lg, s)

	var err error
	s.tlsConfig, s.certReloader, err = NewTLSConfig(lg, config)
	if err != nil {
		return nil, err
	}
	if s.certReloader != nil {
		if err := s.AddAsyncShutdownChild(s.certReloader); err != nil {
			s.certReloader.Close()
			return nil, err
		}
	}
	s.orch = wsmux.NewOrchestrator(lg, wsmux.OrchestratorConfig{
		TLSConfig: s.tlsConfig,
		Limits: wsmux.RequestLimits{
			MaxHeaderBytes: config.MaxHeaderBytes,
			BodyLimit:      config.BodyLimit,
		},
		HandshakeTimeout: config.HandshakeTimeout,
		Version:          BuildVersion,
		LogRequests:      lg.GetLogLevel() >= logger.LogLevelDebug,
	})
	return s, nil
}

// SetMessageHandler replaces the echo handler. It must be called before
// Start.
func (s *Server) SetMessageHandler(h wsmux.MessageHandler) {
	s.sessionCfg.Handler = h
}

// Start opens the listening socket and begins accepting in the background.
// The server is shut down when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.Lock.Lock()
	if s.startCtx == nil {
		s.startCtx = ctx
	}
	s.Lock.Unlock()
	return s.DoOnceActivate(s.HandleOnceActivate, true)
}

// HandleOnceActivate opens the listener. It runs once, from Start, with
// shutdown deferred.
func (s *Server) HandleOnceActivate() error {
	s.Lock.Lock()
	ctx := s.startCtx
	s.Lock.Unlock()
	s.ctx = ctx
	s.ShutdownOnContext(ctx)

	l, err := Listen(ctx, s.ForkLog("listener"), s.config.ListenAddr(), s.config.ReusePort)
	if err != nil {
		return err
	}
	if err := s.AddAsyncShutdownChild(l); err != nil {
		l.Close()
		return err
	}
	s.Lock.Lock()
	s.listener = l
	s.Lock.Unlock()

	s.ILogf("Listening on %s (tls %v)...", l.Addr(), s.tlsConfig != nil)
	go func() {
		s.StartShutdown(l.Serve(s.handleConn))
	}()
	return nil
}

// Run starts the server and blocks until it has shut down, either because
// ctx was cancelled or because Shutdown was called
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.WaitShutdown()
}

// Addr returns the listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.Lock.Lock()
	defer s.Lock.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns the session counters
func (s *Server) Stats() *ConnStats {
	return &s.connStats
}

func (s *Server) handleConn(conn net.Conn) {
	if err := s.DeferShutdown(); err != nil {
		conn.Close()
		return
	}
	defer s.UndeferShutdown()

	s.connStats.New()
	sc := wstnet.NewSocketChannel(s.Logger, conn)
	sess := wsmux.NewSession(sc.Logger, s.orch, sc, s.sessionCfg)
	if err := s.AddAsyncShutdownChild(sess); err != nil {
		sc.DLogf("session dropped: %s", err)
		sc.Close()
		return
	}
	s.connStats.Open()
	sc.DLogf("Open %s", &s.connStats)
	go func() {
		err := sess.Run(s.ctx)
		kind := wsmux.KindOf(err)
		s.connStats.Close(kind != wsmux.KindNormalClose && kind != wsmux.KindNone)
		sc.DLogf("Close %s", &s.connStats)
	}()
}

// HandleOnceShutdown stops accepting. Open sessions are shut down after it
// returns, as shutdown children.
func (s *Server) HandleOnceShutdown(completionErr error) error {
	s.DLogf("HandleOnceShutdown")
	s.Lock.Lock()
	l := s.listener
	s.Lock.Unlock()
	if l != nil {
		l.StartShutdown(completionErr)
	}
	return completionErr
}
