package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	lrthrome "github.com/rumblefrog/lrthrome"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	logLevel uint32
	version  bool
}

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "lrthromed",
		Short: "IPv4 CIDR filter lookup service",
		Long: `Lrthrome answers whether an IPv4 address is covered by any CIDR in a
periodically refreshed filter set, over a compact length-prefixed
binary protocol.

Clients open a long-lived TCP connection and issue Request frames;
the server replies with the longest matching prefix or a not-found
indicator. The filter set is rebuilt on an interval from a registry
of HTTP and GeoLite2 sources named in the configuration file.
`,
		Example:      "  lrthromed",
		Args:         cobra.NoArgs,
		RunE:         func(cmd *cobra.Command, args []string) error { return start(opt) },
		SilenceUsage: true,
	}

	cmd.Flags().Uint32VarP(&opt.logLevel, "log-level", "l", uint32(logrus.InfoLevel), "log level; 0=None .. 6=Trace")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "Prints code version string")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func start(opt options) error {
	if opt.version {
		printVersion()
		os.Exit(0)
	}
	if opt.logLevel > 6 {
		return fmt.Errorf("invalid log level: %d", opt.logLevel)
	}
	lrthrome.Log.SetLevel(logrus.Level(opt.logLevel))
	if name := os.Getenv("LRTHROME_LOG_LEVEL"); name != "" {
		level, err := logrus.ParseLevel(name)
		if err != nil {
			return fmt.Errorf("invalid LRTHROME_LOG_LEVEL %q: %w", name, err)
		}
		lrthrome.Log.SetLevel(level)
	}

	configPath := lrthrome.ConfigPath()
	cfg, err := lrthrome.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Log.SyslogAddress != "" {
		if err := lrthrome.EnableSyslog(lrthrome.SyslogOptions{
			Network:  cfg.Log.SyslogNetwork,
			Address:  cfg.Log.SyslogAddress,
			Tag:      cfg.Log.SyslogTag,
			Priority: cfg.Log.SyslogPrio,
		}); err != nil {
			return err
		}
	}

	registry := cfg.BuildRegistry()

	srv, err := lrthrome.NewServer(lrthrome.ServerOptions{
		BindAddress: cfg.General.BindAddress,
		CacheTTL:    time.Duration(cfg.General.CacheTTL) * time.Second,
		PeerTTL:     time.Duration(cfg.General.PeerTTL) * time.Second,
		RateLimit:   uint32(cfg.General.RateLimit),
		Banner:      cfg.General.Banner,
	}, registry)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		lrthrome.Log.Info("stopping")
		cancel()
	}()

	return srv.Run(ctx)
}

func printVersion() {
	fmt.Println("Build: ", lrthrome.BuildNumber)
	fmt.Println("Build Time: ", lrthrome.BuildTime)
	fmt.Println("Version: ", lrthrome.BuildVersion)
}
