package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/reportlib/am"
	"github.com/teranos/reportlib/errors"
	"github.com/teranos/reportlib/logger"
	"github.com/teranos/reportlib/messenger"
	"github.com/teranos/reportlib/monitor"
	"github.com/teranos/reportlib/report"
	"github.com/teranos/reportlib/transport"
	"github.com/teranos/reportlib/version"
	"github.com/teranos/reportlib/wire"
)

// CallCmd performs one correlated request against a parent
var CallCmd = &cobra.Command{
	Use:   "call <action> [params-json]",
	Short: "Initialize against a parent and perform one request",
	Long: `Connect to a parent over WebSocket, run init and ready, send one
correlated request and print the parent's answer.

Known actions have their params validated; unknown actions are sent as-is.

Examples:
  reportlib call isFeatureEnabled '{"featureId":"integration.signavio"}'
  reportlib call executeGraphQL '{"query":"{ allFactSheets { totalCount } }"}'
  reportlib call getMetricsMeasurements --url ws://localhost:9000/ws`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

var (
	callURL     string
	callTimeout time.Duration
	callSetup   bool
)

func init() {
	CallCmd.Flags().StringVar(&callURL, "url", "", "Parent WebSocket URL (overrides transport.url)")
	CallCmd.Flags().DurationVar(&callTimeout, "timeout", 30*time.Second, "Overall timeout")
	CallCmd.Flags().BoolVar(&callSetup, "show-setup", false, "Print the setup received during init")
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := buildOutbound(args)
	if err != nil {
		return err
	}

	url := cfg.Transport.URL
	if callURL != "" {
		url = callURL
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	session, closeFn, err := connect(ctx, cfg, url)
	if err != nil {
		return err
	}
	defer closeFn()

	setup, err := session.Init(ctx)
	if err != nil {
		return errors.Wrapf(err, "init against %s", url)
	}
	if callSetup {
		printJSON(cmd, "setup", mustJSON(setup))
	}
	if err := session.Ready(ctx, &report.Configuration{}); err != nil {
		return err
	}

	start := time.Now()
	data, err := session.Messenger().RequestFromParent(ctx, out)
	if err != nil {
		var remote *errors.RemoteError
		if errors.As(err, &remote) {
			pterm.Error.Printfln("%s failed: %s", out.Action, remote.Message())
			return err
		}
		return errors.Wrapf(err, "request %s", out.Action)
	}

	logger.Logger.Infow("Request answered",
		logger.FieldAction, out.Action,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
		logger.FieldSize, len(data),
	)
	printJSON(cmd, out.Action, data)
	return nil
}

// buildOutbound turns the CLI arguments into an envelope without an id.
func buildOutbound(args []string) (wire.Outbound, error) {
	out := wire.Outbound{Action: args[0]}
	if len(args) == 2 {
		raw := json.RawMessage(args[1])
		if !json.Valid(raw) {
			return out, errors.Wrapf(errors.ErrInvalidRequest, "params for %s are not valid JSON", args[0])
		}
		out.Params = raw
	}

	// Round-trip known actions through their typed params to catch mistakes early
	if wire.Known(out.Action) {
		p, err := wire.DecodeParams(out)
		if err != nil {
			return out, err
		}
		if _, isSignal := p.(wire.Signal); isSignal {
			return out, errors.Wrapf(errors.ErrInvalidRequest, "%s is fire-and-forget", out.Action)
		}
		return wire.NewOutbound(p, "")
	}
	return out, nil
}

// connect dials the parent and starts a messenger and a session on it.
func connect(ctx context.Context, cfg *am.Config, url string) (*report.Session, func(), error) {
	opts := cfg.TransportOptions()
	opts.Logger = logger.Logger
	conn, err := transport.Dial(ctx, url, transport.DialOptions{
		Options: opts,
		Origin:  cfg.Transport.Origin,
	})
	if err != nil {
		return nil, nil, err
	}

	mopts := []messenger.Option{
		messenger.WithLogger(logger.Logger),
		messenger.WithErrorPolicy(cfg.ErrorPolicy()),
	}
	if cfg.Messenger.ParentOrigin != "" || len(cfg.Messenger.AllowedOrigins) > 0 {
		parent := cfg.Messenger.ParentOrigin
		if parent == "" {
			parent = conn.PeerOrigin()
		}
		mopts = append(mopts, messenger.WithOriginPolicy(messenger.NewOriginPolicy(parent, cfg.Messenger.AllowedOrigins...)))
	}
	if cfg.Messenger.RequestTimeoutSecs > 0 {
		mopts = append(mopts, messenger.WithRequestTimeout(time.Duration(cfg.Messenger.RequestTimeoutSecs)*time.Second))
	}
	m := messenger.New(conn, mopts...)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Run(runCtx); err != nil {
			logger.Logger.Warnw("Messenger stopped", logger.FieldError, err)
		}
	}()

	sopts := []report.SessionOption{report.WithLogger(logger.Logger)}
	if cfg.Monitor.SentryDSN != "" {
		r, err := monitor.NewSentryReporter(monitor.SentryOptions{
			DSN:         cfg.Monitor.SentryDSN,
			Environment: cfg.Monitor.Environment,
			Release:     version.Get().Version,
			Logger:      logger.Logger,
		})
		if err != nil {
			logger.Logger.Warnw("Monitoring disabled", logger.FieldError, err)
		} else {
			sopts = append(sopts, report.WithMonitor(monitor.RateLimited(r, cfg.Monitor.EventsPerSecond, cfg.Monitor.Burst)))
		}
	}
	session := report.NewSession(m, sopts...)

	return session, func() {
		session.Close()
		stop()
		m.Close()
		<-done
	}, nil
}

func printJSON(cmd *cobra.Command, title string, data []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(data)
	}
	pterm.DefaultSection.WithWriter(cmd.ErrOrStderr()).Println(title)
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%q", err.Error()))
	}
	return data
}
