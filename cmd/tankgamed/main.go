// Command tankgamed runs one game end to end: it spawns the rules engine,
// restores any saved log from Postgres, and processes raw log entries read
// as JSON lines from stdin, writing one result line per submission.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/TankGameOrg/ui-sub000/internal/cache"
	"github.com/TankGameOrg/ui-sub000/internal/config"
	"github.com/TankGameOrg/ui-sub000/internal/engine"
	"github.com/TankGameOrg/ui-sub000/internal/interactor"
	"github.com/TankGameOrg/ui-sub000/internal/logbook"
	"github.com/TankGameOrg/ui-sub000/internal/storage"
	"github.com/TankGameOrg/ui-sub000/internal/version"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("tankgamed exited")
	}
}

func run() error {
	gameFlag := flag.String("game", "", "game id to resume (new game when empty)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logrus.New()
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ruleset, err := version.Get(cfg.RulesetName)
	if err != nil {
		return err
	}

	eng, err := engine.Spawn(log, cfg.EngineTimeout, cfg.EngineBin, cfg.EngineArgs...)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Shutdown(context.Background()) }()

	opts := interactor.Options{Log: log, Engine: eng, Ruleset: ruleset}

	var store *storage.PGStore
	if cfg.DatabaseURL != "" {
		store, err = storage.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}
	if cfg.RedisAddr != "" {
		pub := cache.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword)
		defer pub.Close()
		opts.Publisher = pub
	}

	if *gameFlag != "" {
		id, err := uuid.Parse(*gameFlag)
		if err != nil {
			return fmt.Errorf("bad -game id %q: %w", *gameFlag, err)
		}
		if store == nil {
			return fmt.Errorf("resuming game %s requires DATABASE_URL", id)
		}
		initial, book, err := store.LoadGame(ctx, id)
		if err != nil {
			return err
		}
		opts.GameID = id
		opts.Initial = initial
		opts.Book = book
	}

	i, err := interactor.New(ctx, opts)
	if err != nil {
		return err
	}
	defer i.Close(context.Background())

	log.WithFields(logrus.Fields{
		"game":    i.ID(),
		"ruleset": ruleset.Name,
		"entries": i.Book().Len(),
	}).Info("accepting log entries on stdin")
	return serve(ctx, log, i, os.Stdin, os.Stdout)
}

// submissionResult is the stdout frame for one submission.
type submissionResult struct {
	Accepted bool           `json:"accepted"`
	Entry    *logbook.Entry `json:"entry,omitempty"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func serve(ctx context.Context, log *logrus.Logger, i *interactor.Interactor, in io.Reader, w io.Writer) error {
	// Reading happens on its own goroutine so a shutdown signal interrupts
	// the loop even while blocked on input.
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	out := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			var raw map[string]any
			if err := json.Unmarshal(line, &raw); err != nil {
				_ = out.Encode(submissionResult{Error: fmt.Sprintf("bad entry: %v", err)})
				continue
			}

			res, err := i.AddLogEntry(ctx, raw)
			if err != nil {
				_ = out.Encode(submissionResult{Error: err.Error()})
				continue
			}
			if res.PersistErr != nil {
				log.WithError(res.PersistErr).Warn("entry accepted but not persisted")
			}
			_ = out.Encode(submissionResult{Accepted: true, Entry: res.Entry, Message: res.Entry.Message})
		}
	}
}
