package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Duet/internal/config"
	"github.com/BioHazard786/Duet/internal/logging"
	"github.com/BioHazard786/Duet/internal/protocol"
	"github.com/BioHazard786/Duet/internal/server"
	"github.com/BioHazard786/Duet/internal/signaling"
	"github.com/BioHazard786/Duet/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the WebSocket signaling relay.

Clients connect on /ws; /health and /stats report liveness and room counts.

Examples:
  duet serve
  duet serve --addr :9000 --allowed-origins https://duet.example.com
  DUET_TLS_CERT=cert.pem DUET_TLS_KEY=key.pem duet serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String(config.KeyAddr, config.DefaultListenAddr, "listen address")
	f.String(config.KeyTLSCert, "", "TLS certificate file")
	f.String(config.KeyTLSKey, "", "TLS private key file")
	f.StringSlice(config.KeyAllowedOrigins, nil, "allowed browser origins (default: any)")
	f.Float64(config.KeyRate, config.DefaultMessagesPerSecond, "inbound messages per second per connection")
	f.Int(config.KeyBurst, config.DefaultBurst, "inbound message burst per connection")
	f.Int64(config.KeyMaxMessageSize, config.DefaultMaxMessageSize, "largest accepted frame in bytes")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		return err
	}

	logger := logging.Init(slog.LevelInfo)
	logger.Info("starting duet relay", "version", version.Version, "addr", cfg.Addr, "tls", cfg.TLS())

	srv := server.New(server.Options{
		Addr:           cfg.Addr,
		TLSCert:        cfg.TLSCert,
		TLSKey:         cfg.TLSKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Limits:         protocol.DefaultLimits,
		Client: signaling.ClientOptions{
			MaxMessageSize:    cfg.MaxMessageSize,
			MessagesPerSecond: cfg.MessagesPerSecond,
			Burst:             cfg.Burst,
		},
	}, logger)

	return srv.ListenAndServe(cmd.Context())
}
