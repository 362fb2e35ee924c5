package main

import (
	"fmt"
	"os"

	"github.com/matheus3301/chansync/internal/daemon"
	"github.com/matheus3301/chansync/internal/session"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

func main() {
	flagSet := pflag.NewFlagSet("chansyncd", pflag.ContinueOnError)
	sessionFlag := flagSet.String("session", "", "session name (overrides config default)")
	metricsAddr := flagSet.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: sessionName, MetricsAddr: *metricsAddr}),
	)

	app.Run()
}
