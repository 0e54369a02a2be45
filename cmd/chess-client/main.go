package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/park285/phonechess-client/internal/config"
	"github.com/park285/phonechess-client/internal/msgcat"
	"github.com/park285/phonechess-client/internal/obslog"
	"github.com/park285/phonechess-client/internal/rules"
	"github.com/park285/phonechess-client/internal/session"
	"github.com/park285/phonechess-client/internal/transport"
)

func main() {
	_ = godotenv.Load()
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}
	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_error", zap.Error(err))
	}

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.WSOrigin != "" {
			h["Origin"] = cfg.WSOrigin
		}
		return h
	}
	dialer := transport.NewWebSocketDialer(cfg.ServerURL, transport.WebSocketOptions{
		HeaderProvider: headers,
		Logger:         logger.Named("ws"),
	})

	out := newPrinter(os.Stdout, catalog)
	sess, err := session.New(session.Options{
		Dialer:            dialer,
		Oracle:            rules.NewEngine(),
		Logger:            logger.Named("session"),
		Catalog:           catalog,
		InitData:          cfg.InitData,
		DebugUID:          cfg.DebugUID,
		TickInterval:      cfg.TickInterval,
		ReconnectInterval: cfg.ReconnectInterval,
		ResignConfirm:     cfg.ResignConfirm,
		PendingMoveTTL:    cfg.PendingMoveTTL,
		LowTimeThreshold:  cfg.LowTimeThreshold,
		Observer:          out.observe,
	})
	if err != nil {
		logger.Fatal("session_init_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		readCommands(ctx, os.Stdin, sess, out)
		stop()
	}()

	fmt.Println(helpText())
	if err := sess.Run(ctx); err != nil {
		logger.Error("session_run_error", zap.Error(err))
	}
}

// readCommands turns stdin lines into session events until EOF, quit or ctx ends.
func readCommands(ctx context.Context, in io.Reader, sess *session.Session, out *printer) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		cmd, err := parseCommand(line)
		if err != nil {
			if errors.Is(err, errUnknownCommand) {
				fmt.Println(err.Error() + " (try 'help')")
			} else {
				fmt.Println(err.Error())
			}
			continue
		}
		switch cmd.local {
		case cmdHelp:
			fmt.Println(helpText())
		case cmdStatus:
			out.printLatest()
		case cmdQuit:
			return
		default:
			sess.Post(cmd.event)
		}
	}
}
