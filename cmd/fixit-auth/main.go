package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/fixit-auth/internal/config"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const usage = `usage: fixit-auth [-link <url>] <command> [args]

commands:
  signin [provider]       sign in with a federated provider (default google)
  signout [local|global]  end the session (default local)
  status                  show the current session
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fixit-auth: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		return err
	}

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, c, opts.initialURL, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{Addr: c.GetCallbackListenAddr(), Handler: a.callbackServer, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	cmdCtx, cmdDone := context.WithCancel(gctx)
	defer cmdDone()

	g.Go(func() error {
		return listenAndServe(server)
	})
	g.Go(func() error {
		<-cmdCtx.Done()
		return shutdown(server)
	})
	g.Go(func() error {
		a.sweepLedger(cmdCtx, time.Hour)
		return nil
	})
	g.Go(func() error {
		defer cmdDone()
		if _, err := a.resume(cmdCtx); err != nil {
			log.Warn().Err(err).Msg("could not resume session")
		}
		return a.dispatch(cmdCtx, opts.command, opts.args)
	})
	return g.Wait()
}

func listenAndServe(server *http.Server) error {
	log.Debug().Str("addr", server.Addr).Msg("callback server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
