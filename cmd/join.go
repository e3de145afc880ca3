package cmd

import (
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/BioHazard786/Duet/internal/call"
	"github.com/BioHazard786/Duet/internal/config"
	"github.com/BioHazard786/Duet/internal/logging"
	"github.com/BioHazard786/Duet/internal/roomkey"
	"github.com/BioHazard786/Duet/internal/ui"
)

// leaveGrace bounds how long we wait for the leave message to go out.
const leaveGrace = 2 * time.Second

var (
	flagName    string
	flagLogFile string
)

var joinCmd = &cobra.Command{
	Use:     "join [room-key]",
	Aliases: []string{"j"},
	Short:   "Start or join a call",
	Long: `Join a call room. Without a key a fresh one is generated and printed so
you can share it with the other participant.

Camera, screen and microphone are read from IVF (VP8) and Ogg (Opus) files.

Examples:
  duet join
  duet join brave-otter-kite-ramen
  duet join --camera cam.ivf --screen screen.ivf --microphone mic.ogg
  duet join --domain duet.example.com --force-relay --turn turn.example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	f := joinCmd.Flags()
	addClientFlags(f)
	f.String(config.KeySTUN, "", "STUN servers, comma separated")
	f.String(config.KeyTURN, "", "TURN server host")
	f.String(config.KeyTURNUser, config.DefaultTURNUser, "TURN username")
	f.String(config.KeyTURNPassword, "", "TURN password")
	f.Bool(config.KeyForceRelay, false, "only use TURN relay candidates")
	f.String(config.KeyCamera, "", "IVF file played as the camera")
	f.String(config.KeyScreen, "", "IVF file played while sharing the screen")
	f.String(config.KeyMicrophone, "", "Ogg Opus file played as the microphone")
	f.StringVarP(&flagName, "name", "n", defaultName(), "name shown to the other participant")
	f.StringVar(&flagLogFile, "log-file", "", "write debug logs to this file")

	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.LoadClient(v)
	if err != nil {
		return err
	}

	var roomKey string
	if len(args) > 0 {
		roomKey = args[0]
		ui.PrintInfof("Joining room %s", roomKey)
	} else {
		roomKey, err = roomkey.Generate()
		if err != nil {
			return err
		}
		ui.RenderRoomInfo(roomKey)
	}

	logger, closeLog, err := clientLogger(flagLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	session, err := call.New(call.Options{
		RoomKey:  roomKey,
		Config:   cfg,
		PeerName: flagName,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	program := tea.NewProgram(ui.NewCallModel(roomKey, session, session.Events()))

	ended := make(chan struct{})
	go func() {
		defer close(ended)
		err := session.Run(cmd.Context())
		program.Send(ui.SessionEndedMsg{Err: err})
	}()

	final, err := program.Run()
	session.Leave()
	select {
	case <-ended:
	case <-time.After(leaveGrace):
		logger.Warn("session did not stop in time")
		ui.PrintWarning("Left without confirmation from the relay")
	}
	if err != nil {
		return err
	}

	if m, ok := final.(*ui.CallModel); ok && m.Err() != nil {
		return m.Err()
	}
	ui.PrintSuccess("Call ended")
	return nil
}

// addClientFlags registers the flags every command talking to a relay needs.
func addClientFlags(f *pflag.FlagSet) {
	f.String(config.KeyServer, "", "signaling server URL (default "+config.DefaultServerURL+")")
	f.String(config.KeyDomain, "", "signaling server domain, used as wss://<domain>/ws")
}

// clientLogger keeps logs off the terminal unless they are errors, since
// the call screen owns it.
func clientLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return logging.New(os.Stderr, slog.LevelError), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return logging.New(f, slog.LevelDebug), func() { f.Close() }, nil
}

func defaultName() string {
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "duet"
}
