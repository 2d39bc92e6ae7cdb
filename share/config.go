package wsshare

import (
	"fmt"
	"time"

	"github.com/sammck-go/logger"
	"github.com/sammck-go/wsmux/pkg/wsmux"
)

// DefaultServerName is sent in the Server header of upgrade responses
const DefaultServerName = "wsmux"

// ServerConfig is the configuration of a wsmux server
type ServerConfig struct {
	BindAddr string
	Port     int

	// Threads is the number of OS threads running Go code (GOMAXPROCS)
	Threads int

	LogLevel   logger.LogLevel
	ServerName string

	// HandshakeTimeout bounds each stage before the message loop
	HandshakeTimeout time.Duration

	// IdleTimeout bounds silence on an open websocket. Negative disables it.
	IdleTimeout time.Duration

	MaxSniffBytes       int
	BodyLimit           int64
	MaxHeaderBytes      int
	MaxMessageSize      int64
	DisableAutoFragment bool

	// CertFile and KeyFile name a PEM certificate pair, reloaded on change
	CertFile string
	KeyFile  string

	// AutocertDomains enables ACME certificates for these host names
	AutocertDomains  []string
	AutocertCacheDir string

	// SelfSignedHosts are the names put in the generated certificate used
	// when no other certificate source is configured
	SelfSignedHosts []string

	// DisableTLS rejects connections that sniff as TLS
	DisableTLS bool

	ReusePort bool
}

// NewServerConfig returns a configuration with every default filled in
func NewServerConfig() *ServerConfig {
	c := &ServerConfig{}
	c.applyDefaults()
	return c
}

func (c *ServerConfig) applyDefaults() {
	if c.BindAddr == "" {
		c.BindAddr = "0.0.0.0"
	}
	if c.Threads < 1 {
		c.Threads = 1
	}
	if c.LogLevel == logger.LogLevelUnknown {
		c.LogLevel = logger.LogLevelInfo
	}
	if c.ServerName == "" {
		c.ServerName = DefaultServerName
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = wsmux.DefaultHandshakeTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = wsmux.DefaultIdleTimeout
	}
	if c.MaxSniffBytes == 0 {
		c.MaxSniffBytes = wsmux.DefaultSniffMaxBytes
	}
	if c.BodyLimit == 0 {
		c.BodyLimit = wsmux.DefaultBodyLimit
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = wsmux.DefaultMaxHeaderBytes
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = wsmux.DefaultMaxMessageSize
	}
	if len(c.SelfSignedHosts) == 0 {
		c.SelfSignedHosts = []string{"localhost", "127.0.0.1", "::1"}
	}
}

// Validate fills in defaults and rejects settings that cannot work
func (c *ServerConfig) Validate() error {
	c.applyDefaults()
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("invalid handshake timeout %s", c.HandshakeTimeout)
	}
	if c.MaxSniffBytes < wsmux.SniffDecisionBytes {
		return fmt.Errorf("sniff limit must be at least %d bytes, got %d", wsmux.SniffDecisionBytes, c.MaxSniffBytes)
	}
	if c.BodyLimit < 0 || c.MaxHeaderBytes < 0 || c.MaxMessageSize < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("certificate and key files must be given together")
	}
	if len(c.AutocertDomains) > 0 && c.CertFile != "" {
		return fmt.Errorf("autocert and certificate files are mutually exclusive")
	}
	return nil
}

// ListenAddr returns the host:port to listen on
func (c *ServerConfig) ListenAddr() string {
	return joinHostPort(c.BindAddr, c.Port)
}

func (c *ServerConfig) sessionConfig() wsmux.SessionConfig {
	idle := c.IdleTimeout
	if idle < 0 {
		idle = 0
	}
	return wsmux.SessionConfig{
		HandshakeTimeout:    c.HandshakeTimeout,
		IdleTimeout:         idle,
		MaxSniffBytes:       c.MaxSniffBytes,
		MaxMessageSize:      c.MaxMessageSize,
		DisableAutoFragment: c.DisableAutoFragment,
		ServerName:          c.ServerName,
	}
}
