package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/matheus3301/chansync/internal/api"
	"github.com/matheus3301/chansync/internal/client"
	"github.com/matheus3301/chansync/internal/config"
	"github.com/matheus3301/chansync/internal/logging"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/session"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// env carries what every command needs.
type env struct {
	client  *client.Client
	cfg     *config.Config
	logger  *zap.Logger
	channel string
	sender  string
	jsonOut bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	flagSet := pflag.NewFlagSet("chansyncctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	sessionFlag := flagSet.String("session", "", "session name (overrides config default)")
	channelFlag := flagSet.StringP("channel", "c", "", "channel URL (overrides config default)")
	senderFlag := flagSet.String("sender", os.Getenv("USER"), "sender id for posted messages")
	jsonFlag := flagSet.Bool("json", false, "output in JSON format")
	logLevel := flagSet.String("log-level", "warn", "log level for engine diagnostics")
	flagSet.Usage = func() { printUsage(flagSet) }
	if err := flagSet.Parse(argv); err != nil {
		return err
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printUsage(flagSet)
		return errors.New("missing command")
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		return err
	}
	channel := session.ResolveChannel(*channelFlag)

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	socketPath := session.SocketPath(sessionName)
	c, err := client.New(socketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for session %q: %w", sessionName, err)
	}
	defer func() { _ = c.Close() }()

	logger := logging.NewConsole(*logLevel)
	defer func() { _ = logger.Sync() }()

	e := &env{
		client:  c,
		cfg:     cfg,
		logger:  logger,
		channel: channel,
		sender:  *senderFlag,
		jsonOut: *jsonFlag,
	}

	cmd, rest := args[0], args[1:]
	if cmd == "status" || cmd == "channels" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if cmd == "status" {
			return cmdStatus(ctx, e)
		}
		return cmdChannels(ctx, e)
	}

	if err := session.ValidateChannel(channel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "post":
		return cmdPost(ctx, e, rest)
	case "edit":
		return cmdEdit(ctx, e, rest)
	case "delete":
		return cmdDelete(ctx, e, rest)
	case "send":
		return cmdSend(ctx, e, rest)
	case "load":
		return cmdLoad(ctx, e, rest)
	case "sync":
		return cmdSync(ctx, e, rest)
	case "watch":
		return cmdWatch(ctx, e, rest)
	default:
		printUsage(flagSet)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: chansyncctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                 Show daemon status")
	fmt.Fprintln(os.Stderr, "  channels               List channels")
	fmt.Fprintln(os.Stderr, "  post <text>            Append a message")
	fmt.Fprintln(os.Stderr, "  edit <id> <text>       Edit a message")
	fmt.Fprintln(os.Stderr, "  delete <id>            Delete a message")
	fmt.Fprintln(os.Stderr, "  send <text>            Queue a message through the outbox")
	fmt.Fprintln(os.Stderr, "  load [--anchor ms] [--prev N] [--next N]")
	fmt.Fprintln(os.Stderr, "                         Load the window and print engine events")
	fmt.Fprintln(os.Stderr, "  sync                   Load, then reconcile the changelog once")
	fmt.Fprintln(os.Stderr, "  watch [--metrics-addr addr]")
	fmt.Fprintln(os.Stderr, "                         Load and follow the channel live")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "flags:")
	fmt.Fprint(os.Stderr, flagSet.FlagUsages())
}

func cmdStatus(ctx context.Context, e *env) error {
	resp, err := e.client.Session.GetStatus(ctx, &api.GetStatusRequest{})
	if err != nil {
		return err
	}
	if e.jsonOut {
		outputJSON(resp)
		return nil
	}
	fmt.Printf("Session:  %s\n", resp.Session)
	fmt.Printf("Status:   %s\n", resp.Status)
	if resp.StatusMessage != "" {
		fmt.Printf("Reason:   %s\n", resp.StatusMessage)
	}
	fmt.Printf("Uptime:   %dms\n", resp.UptimeMs)
	fmt.Printf("Schema:   v%d\n", resp.SchemaVersion)
	fmt.Printf("Channels: %d\n", resp.ChannelCount)
	return nil
}

func cmdChannels(ctx context.Context, e *env) error {
	resp, err := e.client.Channel.ListChannels(ctx, &api.ListChannelsRequest{})
	if err != nil {
		return err
	}
	if e.jsonOut {
		outputJSON(resp)
		return nil
	}
	if len(resp.Channels) == 0 {
		fmt.Println("No channels found.")
		return nil
	}
	for _, c := range resp.Channels {
		fmt.Printf("%-32s %-20s %s\n", c.URL, c.Name, formatTimestamp(c.LastMessageAt))
	}
	return nil
}

func cmdPost(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: chansyncctl post <text>")
	}
	resp, err := e.client.Message.AppendMessage(ctx, &api.AppendMessageRequest{
		Channel:  e.channel,
		SenderID: e.sender,
		Body:     strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	printMessage(e, resp.Message)
	return nil
}

func cmdEdit(ctx context.Context, e *env, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: chansyncctl edit <id> <text>")
	}
	resp, err := e.client.Message.UpdateMessage(ctx, &api.UpdateMessageRequest{
		Channel: e.channel,
		ID:      message.ID(args[0]),
		Body:    strings.Join(args[1:], " "),
	})
	if err != nil {
		return err
	}
	printMessage(e, resp.Message)
	return nil
}

func cmdDelete(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: chansyncctl delete <id>")
	}
	_, err := e.client.Message.DeleteMessage(ctx, &api.DeleteMessageRequest{
		Channel: e.channel,
		ID:      message.ID(args[0]),
	})
	return err
}

func cmdSend(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: chansyncctl send <text>")
	}
	resp, err := e.client.Message.QueueMessage(ctx, &api.QueueMessageRequest{
		Channel:  e.channel,
		SenderID: e.sender,
		Body:     strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	if e.jsonOut {
		outputJSON(resp)
		return nil
	}
	fmt.Printf("Queued: %s\n", resp.ClientMsgID)
	return nil
}

func printMessage(e *env, m *message.Message) {
	if e.jsonOut {
		outputJSON(m)
		return
	}
	fmt.Printf("%s  %s  %-12s %s\n", m.ID, formatTimestamp(m.CreatedAt), m.SenderID, m.Body)
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format(time.DateTime)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
