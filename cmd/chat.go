package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"liveroom/client"
	"liveroom/config"
	"liveroom/core"
	"liveroom/directory"
)

var chatCmd = &cobra.Command{
	Use:   "chat ROOM_ID",
	Short: "Join a live room from the terminal",
	Long: `Join a live room and chat from the terminal.

Lines typed on stdin are sent as chat messages. Commands:
  /gift TYPE   send a gift
  /leave       leave the room but keep the connection open
  /quit        close the connection and exit`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("url", "http://localhost:3002", "Relay server URL")
	chatCmd.Flags().String("username", "", "Username shown to other participants")
	chatCmd.Flags().Int64("user-id", 0, "Numeric user id, 0 for none")
	chatCmd.Flags().Bool("reconnect", false, "Reconnect automatically after unexpected disconnects")
	_ = viper.BindPFlag("client.url", chatCmd.Flags().Lookup("url"))
	_ = viper.BindPFlag("client.username", chatCmd.Flags().Lookup("username"))
	_ = viper.BindPFlag("client.user-id", chatCmd.Flags().Lookup("user-id"))
	_ = viper.BindPFlag("client.reconnect.enabled", chatCmd.Flags().Lookup("reconnect"))
}

type inputKind int

const (
	inputMessage inputKind = iota
	inputGift
	inputLeave
	inputQuit
	inputEmpty
	inputUnknown
)

// parseInput splits a terminal line into a command and its argument.
func parseInput(line string) (inputKind, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return inputEmpty, ""
	}
	if !strings.HasPrefix(line, "/") {
		return inputMessage, line
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/gift":
		return inputGift, arg
	case "/leave":
		return inputLeave, ""
	case "/quit", "/exit":
		return inputQuit, ""
	default:
		return inputUnknown, name
	}
}

func clientOptions(cfg config.ClientConfig) client.Options {
	log := logrus.WithField("component", "chat")
	return client.Options{
		Dial: client.SocketIODialer(client.SocketIOOptions{
			URL:        cfg.URL,
			Transports: cfg.Transports,
			Logger:     log.WithField("transport", "socketio"),
		}),
		ConnectTimeout: cfg.ConnectTimeout,
		JoinTimeout:    cfg.JoinTimeout,
		Reconnect: client.ReconnectPolicy{
			Enabled:         cfg.Reconnect.Enabled,
			InitialInterval: cfg.Reconnect.InitialInterval,
			MaxInterval:     cfg.Reconnect.MaxInterval,
			Multiplier:      cfg.Reconnect.Multiplier,
			MaxAttempts:     cfg.Reconnect.MaxAttempts,
		},
		Logger: log,
	}
}

func profileFor(cfg config.ClientConfig) core.UserProfile {
	var id *int64
	if cfg.UserID != 0 {
		v := cfg.UserID
		id = &v
	}
	return core.NewProfile(id, cfg.Username, cfg.Avatar)
}

func subscribe(h *client.Handle, out io.Writer) {
	h.OnStateChange(func(c client.StateChange) {
		switch c.To {
		case core.StateDisconnected:
			if c.Err != nil {
				fmt.Fprintf(out, "* disconnected (%s): %v\n", c.Reason, c.Err)
				return
			}
			fmt.Fprintf(out, "* disconnected (%s)\n", c.Reason)
		case core.StateReconnecting:
			fmt.Fprintf(out, "* reconnecting in %s (attempt %d)\n", c.RetryIn, c.Attempt)
		default:
			fmt.Fprintf(out, "* %s\n", c.To)
		}
	})
	h.Session().OnPresence(func(ev core.PresenceEvent) {
		switch {
		case ev.Kind == core.PresenceSync:
			fmt.Fprintf(out, "* %d watching\n", ev.ParticipantCount)
		case ev.User != nil:
			fmt.Fprintf(out, "* %s %s, %d watching\n", ev.User.Username, ev.Kind, ev.ParticipantCount)
		default:
			fmt.Fprintf(out, "* %d watching\n", ev.ParticipantCount)
		}
	})
	h.Channel().OnMessage(func(m core.ChatMessage) {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.SentAt.Local().Format("15:04:05"), m.Author.Username, m.Body)
	})
	h.Channel().OnGift(func(g core.GiftEvent) {
		fmt.Fprintf(out, "[%s] %s sent a %s\n", g.SentAt.Local().Format("15:04:05"), g.Author.Username, g.GiftType)
	})
}

// readInput feeds lines from in to h until /quit or EOF.
func readInput(h *client.Handle, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		kind, arg := parseInput(scanner.Text())
		var err error
		switch kind {
		case inputEmpty:
			continue
		case inputQuit:
			return nil
		case inputMessage:
			err = h.Channel().Send(arg)
		case inputGift:
			err = h.Channel().SendGift(arg)
		case inputLeave:
			err = h.Session().Leave()
		case inputUnknown:
			fmt.Fprintf(out, "* unknown command %s\n", arg)
			continue
		}
		switch {
		case errors.Is(err, client.ErrNotConnected):
			fmt.Fprintln(out, "* not connected, message not sent")
		case err != nil:
			fmt.Fprintf(out, "* %v\n", err)
		}
	}
	return scanner.Err()
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := clientOptions(cfg.Client)
	apiURL := cfg.Client.APIURL
	if apiURL == "" {
		apiURL = cfg.Client.URL
	}
	dir := directory.New(apiURL, cfg.Client.ConnectTimeout, logrus.WithField("component", "directory"))
	defer dir.Close()
	opts.Directory = dir

	h, err := client.New(core.RoomID(args[0]), profileFor(cfg.Client), opts)
	if err != nil {
		return err
	}
	defer h.Close()

	out := cmd.OutOrStdout()
	subscribe(h, out)
	if err := h.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- readInput(h, cmd.InOrStdin(), out) }()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalC)

	select {
	case err := <-done:
		return err
	case <-signalC:
		return nil
	}
}
