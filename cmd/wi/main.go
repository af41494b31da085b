package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/matt-kaep/WI-frontend/internal/config"
	"github.com/matt-kaep/WI-frontend/notice"
)

var (
	cli        *app
	noBanner   bool
	cmdTimeout time.Duration
)

// rootCmd is the wi command line, one subcommand per page of the web client.
var rootCmd = &cobra.Command{
	Use:           "wi",
	Short:         "Find prospects through your LinkedIn connections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !noBanner {
			displayAppname(config.New().GetAppName())
		}
		ctx := cmd.Context()
		if cmdTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cmdTimeout)
			cobra.OnFinalize(cancel)
		}
		cmd.SetContext(ctx)

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		cli = a
		return a.start(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "Do not print the banner")
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 0, "Give up after this long (0 waits forever)")

	rootCmd.AddCommand(loginCmd, signupCmd, magicLinkCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(sessionsCmd, dashboardCmd, connectionsCmd, prospectsCmd)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() {
		if cli != nil {
			printNotices(os.Stderr, cli.notices)
			cli.close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func printNotices(w io.Writer, board *notice.Board) {
	for _, n := range board.Active() {
		fmt.Fprintf(w, "[%s] %s\n", n.Kind, n.Message)
	}
	board.Dismiss()
}
