package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sammck-go/logger"
	wsshare "github.com/sammck-go/wsmux/share"
)

var help = `
  Usage: wsmux [options] <bind-address> <bind-port> <worker-thread-count>

  Serves WebSocket clients over plaintext and TLS on the same port, and
  echoes back every message it receives.

  Example:
    wsmux 0.0.0.0 8080 4

  Options:
`

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

// logLevelValue adapts logger.LogLevel to flag.Value
type logLevelValue struct {
	level *logger.LogLevel
}

func (v logLevelValue) String() string {
	if v.level == nil {
		return ""
	}
	return v.level.String()
}

func (v logLevelValue) Set(s string) error {
	return v.level.FromString(s)
}

func main() {
	config := &wsshare.ServerConfig{LogLevel: logger.LogLevelInfo}
	var autocertDomains, selfSignedHosts stringList
	version := false

	flags := flag.NewFlagSet("wsmux", flag.ContinueOnError)
	flags.Var(logLevelValue{&config.LogLevel}, "loglevel", "log level: error, warning, info, debug or trace")
	flags.StringVar(&config.ServerName, "server-name", wsshare.DefaultServerName, "Server header sent in upgrade responses")
	flags.DurationVar(&config.HandshakeTimeout, "handshake-timeout", 30*time.Second, "deadline for each stage before the websocket is open")
	flags.DurationVar(&config.IdleTimeout, "idle-timeout", 300*time.Second, "close an open websocket after this much silence (negative disables)")
	flags.Int64Var(&config.BodyLimit, "body-limit", 10000, "largest upgrade request body accepted")
	flags.Int64Var(&config.MaxMessageSize, "max-message-size", 16<<20, "largest websocket message accepted")
	flags.BoolVar(&config.DisableAutoFragment, "no-fragment", false, "send every message as a single frame")
	flags.StringVar(&config.CertFile, "cert", "", "PEM certificate file; reloaded when it changes")
	flags.StringVar(&config.KeyFile, "key", "", "PEM private key file")
	flags.Var(&autocertDomains, "autocert", "comma separated domains to get ACME certificates for")
	flags.StringVar(&config.AutocertCacheDir, "autocert-cache", "", "directory for ACME certificates")
	flags.Var(&selfSignedHosts, "self-signed-hosts", "comma separated names for the generated certificate")
	flags.BoolVar(&config.DisableTLS, "no-tls", false, "reject TLS connections")
	flags.BoolVar(&config.ReusePort, "reuse-port", false, "set SO_REUSEPORT on the listening socket")
	flags.BoolVar(&version, "version", false, "print the version and exit")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, help)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(1)
	}
	if version {
		fmt.Println(wsshare.BuildVersion)
		return
	}

	args := flags.Args()
	if len(args) != 3 {
		flags.Usage()
		os.Exit(1)
	}
	config.BindAddr = args[0]
	port, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q\n", args[1])
		os.Exit(1)
	}
	config.Port = port
	threads, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid worker thread count %q\n", args[2])
		os.Exit(1)
	}
	config.Threads = threads
	config.AutocertDomains = autocertDomains
	config.SelfSignedHosts = selfSignedHosts

	lg, err := logger.New(logger.WithPrefix("server"), logger.WithLogLevel(config.LogLevel))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	s, err := wsshare.NewServer(lg, config)
	if err != nil {
		lg.Fatalf("%s", err)
	}
	runtime.GOMAXPROCS(config.Threads)
	lg.DLogf("%d worker threads", config.Threads)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		lg.Fatalf("%s", err)
	}
}
