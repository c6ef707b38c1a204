package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/turnocall/internal/config"
	"github.com/hammamikhairi/turnocall/internal/console"
	"github.com/hammamikhairi/turnocall/internal/display"
	"github.com/hammamikhairi/turnocall/internal/domain"
	"github.com/hammamikhairi/turnocall/internal/views"
)

// newDisplayCmd creates the "turnocall display" subcommand.
func newDisplayCmd() *cobra.Command {
	var consoleMode, headless bool

	cmd := &cobra.Command{
		Use:   "display",
		Short: "Run a waiting-room display",
		Long: "Runs one display: it listens for broadcast calls and the ticket change feed,\n" +
			"shows each call on the board (and on SockJS screens when --addr is set)\n" +
			"and speaks it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.startTelemetry(ctx)

			return runDisplay(ctx, a, consoleMode, headless)
		},
	}

	cmd.Flags().BoolVar(&consoleMode, "console", false, "accept operator commands (call, recall, redirect, done)")
	cmd.Flags().BoolVar(&headless, "headless", false, "print calls as lines instead of drawing the board")
	return cmd
}

func runDisplay(ctx context.Context, a *app, consoleMode, headless bool) error {
	if !headless && !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		a.log.Info("stdout is not a terminal, running headless")
		headless = true
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	cache := views.New(store, a.log.Named("views"))
	speaker, engine := a.openSpeaker(ctx)

	var (
		op    *console.Operator
		board *display.Board
		sinks display.Fanout
		out   = console.NewPrinter(a.log.Named("console"), nil)
	)

	if headless {
		sinks = append(sinks, out)
	} else {
		opts := []display.BoardOption{
			display.WithTitle(a.cfg.Display.Title),
			display.WithHistory(a.cfg.Display.History),
			display.WithLists(func(ctx context.Context) ([]domain.Ticket, []domain.Ticket, error) {
				serving, err := cache.Serving(ctx)
				if err != nil {
					return nil, nil, err
				}
				waiting, err := cache.Waiting(ctx)
				return serving, waiting, err
			}),
		}
		if consoleMode {
			opts = append(opts, display.WithPrompt(func(line string) { op.Run(ctx, line) }))
		}
		if engine != nil && a.cfg.Display.PauseOnBlur {
			opts = append(opts, display.WithVisibility(engine.SetVisible))
		}
		board = display.NewBoard(a.log.Named("board"), opts...)
		cache.OnInvalidate(board.Refresh)
		out = console.NewPrinter(a.log.Named("console"), board.Printf)
		sinks = append(sinks, board)
	}

	g, ctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Display.Addr; addr != "" {
		gw := display.NewGateway(a.log.Named("gateway"))
		sinks = append(sinks, gw)
		g.Go(func() error {
			if err := gw.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("gateway: %w", err)
			}
			return nil
		})
	}

	if a.cfgPath != "" {
		g.Go(func() error {
			if err := config.Watch(ctx, a.cfgPath, 0, a.log.Named("config"), a.reload); err != nil {
				a.log.Warn("%v (config reload disabled)", err)
			}
			return nil
		})
	}

	pipeline, resolver, err := a.openPipeline(ctx, store, pipelineParts{
		display:  sinks,
		toaster:  sinks,
		speaker:  speaker,
		listener: true,
		views:    cache,
	})
	if err != nil {
		stop()
		_ = g.Wait()
		return err
	}
	op = console.NewOperator(store, resolver, pipeline, out, a.log.Named("console"))

	if board == nil {
		if consoleMode {
			go readLines(ctx, op)
		}
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
		return g.Wait()
	}

	fmt.Println(display.RenderBanner(0, "  "+a.cfg.Display.Title))
	if consoleMode {
		fmt.Println(display.BannerStyle.Render("  Type 'help' for commands, Esc to exit."))
	}
	g.Go(func() error {
		defer stop()
		return board.Run(ctx)
	})
	return g.Wait()
}

// readLines feeds stdin to the operator in headless console mode.
func readLines(ctx context.Context, op *console.Operator) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		op.Run(ctx, sc.Text())
	}
}
