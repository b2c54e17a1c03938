package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/host"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/version"
)

// HostCmd runs the development parent
var HostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"serve"},
	Short:   "Run a development parent for reports",
	Long: `Serve the parent side of the report protocol on a WebSocket endpoint (/ws).

The host answers init with the setup fixture, answers hasPermission and
isFeatureEnabled from the fixture, replies to other correlated actions with
the fixture's canned responses, and prints every fire-and-forget action.
With --watch the fixture file is reloaded on change and pushed to connected reports.`,
	RunE: runHost,
}

var (
	hostAddr    string
	hostFixture string
	hostWatch   bool
)

func init() {
	HostCmd.Flags().StringVar(&hostAddr, "addr", "", "Listen address (overrides host.addr)")
	HostCmd.Flags().StringVar(&hostFixture, "fixture", "", "Setup fixture, JSON or YAML (overrides host.fixture)")
	HostCmd.Flags().BoolVar(&hostWatch, "watch", true, "Reload the fixture when it changes")
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	hostCfg := cfg.Host
	if hostAddr != "" {
		hostCfg.Addr = hostAddr
	}
	if hostFixture != "" {
		hostCfg.Fixture = hostFixture
	}
	if cmd.Flags().Changed("watch") {
		hostCfg.WatchFixture = hostWatch
	}
	hostCfg.AllowedOrigins = cfg.GetHostAllowedOrigins()

	opts := cfg.TransportOptions()
	opts.Logger = logger.Logger
	h, err := host.New(hostCfg,
		host.WithLogger(logger.Logger),
		host.WithTransportOptions(opts),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create host")
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")
	h.OnNotify(func(n host.Notification) {
		pterm.Info.Printfln("%s %s", pterm.Cyan(string(n.Action)), pterm.Gray(n.ClientID[:8]))
		if logger.ShouldOutput(verbosity, logger.OutputPayloads) {
			logger.Logger.Debugw("Notification params", logger.FieldAction, n.Action, "params", n.Params)
		}
	})

	if err := h.Start(); err != nil {
		return err
	}
	printHostBanner(h, hostCfg.Fixture, hostCfg.WatchFixture)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), host.ShutdownTimeout)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "host shutdown")
	}
	pterm.Success.Println("Host stopped")
	return nil
}

func printHostBanner(h *host.Host, fixture string, watch bool) {
	if fixture == "" {
		fixture = "built-in default"
	}
	reload := "off"
	if watch && fixture != "built-in default" {
		reload = "on"
	}

	pterm.DefaultSection.Println("reportlib host")
	_ = pterm.DefaultTable.WithData([][]string{
		{"Endpoint", "ws://" + h.Addr() + "/ws"},
		{"Origin", transport.OriginFromURL("ws://" + h.Addr())},
		{"Fixture", fixture},
		{"Reload", reload},
		{"Protocol", version.Protocol},
		{"Started", time.Now().Format(time.RFC3339)},
	}).Render()
}
