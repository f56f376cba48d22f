package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chaintetris/internal/chain"
	"chaintetris/internal/config"
	"chaintetris/internal/game"
	"chaintetris/internal/logging"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		configPath string
		room       uint64
	)
	cmd := &cobra.Command{
		Use:          "watch --room N",
		Short:        "Follow one room in the terminal and play from the keyboard",
		SilenceUsage: true,
		PreRunE: func(*cobra.Command, []string) error {
			return checkRoom(room)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath, room, in, out)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("TETRIS_CONFIG"), "YAML config file")
	cmd.Flags().Uint64VarP(&room, "room", "r", 0, "room id")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func checkRoom(room uint64) error {
	if room > math.MaxInt64 {
		return fmt.Errorf("room id %d is out of range", room)
	}
	return nil
}

func run(ctx context.Context, configPath string, room uint64, in io.Reader, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := chain.Dial(ctx, cfg.ChainConfig(), logger, nil)
	if err != nil {
		return err
	}
	defer client.Close()
	fmt.Fprintf(out, "account %s (chain %s)\n", client.Account().Hex(), client.ChainID().String())
	fmt.Fprintln(out, help)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := game.NewStore(ctx, client, cfg.GameOptions(), logger, nil)
	defer store.Close()

	events := make(chan chain.Event, 64)
	go func() {
		if err := client.Watch(ctx, events); err != nil && ctx.Err() == nil {
			logger.Warn("event stream ended; relying on periodic resync", "err", err)
		}
	}()
	go store.Run(ctx, events)

	store.Room(room)
	hub := store.Broadcaster(room)
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	lines := make(chan string)
	go readLines(ctx, in, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub:
			if !ok {
				return nil
			}
			drain(sub)
			printSnapshot(out, store.Snapshot(room))
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep printing updates until interrupted.
				lines = nil
				continue
			}
			if err := handleLine(ctx, store, room, line, out, logger); errors.Is(err, errQuit) {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, a Actions, room uint64, line string, out io.Writer, logger *slog.Logger) error {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Fprintln(out, err)
		return nil
	}
	res, err := execute(ctx, a, room, cmd)
	switch {
	case errors.Is(err, errQuit):
		return err
	case err != nil:
		fmt.Fprintf(out, "%s failed: %v\n", cmd.name, err)
	default:
		logger.Debug("action mined", "action", cmd.name, "tx", res.Hash.Hex(), "block", res.Block)
	}
	return nil
}

// drain coalesces queued change notifications into one redraw.
func drain(sub chan string) {
	for {
		select {
		case <-sub:
		default:
			return
		}
	}
}

func readLines(ctx context.Context, in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return
		}
	}
}
