package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/matheus3301/chansync/internal/bus"
	"github.com/matheus3301/chansync/internal/client"
	"github.com/matheus3301/chansync/internal/message"
	"github.com/matheus3301/chansync/internal/metrics"
	intsync "github.com/matheus3301/chansync/internal/sync"
	"github.com/matheus3301/chansync/internal/window"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// engine is a coordinator over the daemon's channel store with its event
// subscription.
type engine struct {
	coord  *intsync.Coordinator
	store  *client.ChannelStore
	events <-chan bus.Event
	unsub  func()
	logger *zap.Logger
}

func newEngine(e *env, opts ...intsync.Option) *engine {
	b := bus.New()
	events, unsub := b.Subscribe("sync.", 256)
	store := e.client.Store(e.channel, e.cfg.Sync.ChangelogPageSize)
	opts = append([]intsync.Option{intsync.WithChannel(e.channel)}, opts...)
	coord := intsync.NewCoordinator(store, window.NewCache(e.cfg.Sync.CacheSize), b, e.logger, e.cfg.SyncConfig(), opts...)
	return &engine{coord: coord, store: store, events: events, unsub: unsub, logger: e.logger}
}

// run prints engine events while body drives the coordinator. Events
// queued when body returns are printed before run returns.
func (eng *engine) run(ctx context.Context, w io.Writer, body func(ctx context.Context) error) error {
	defer eng.unsub()
	printCtx, stopPrinting := context.WithCancel(context.Background())
	defer stopPrinting()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printEvents(printCtx, eng.events, w)
	})
	g.Go(func() error {
		defer stopPrinting()
		err := body(gctx)
		eng.coord.Close()
		return err
	})
	return g.Wait()
}

func cmdLoad(ctx context.Context, e *env, args []string) error {
	flagSet := pflag.NewFlagSet("load", pflag.ContinueOnError)
	anchorFlag := flagSet.Int64("anchor", 0, "load around this timestamp in ms (0 = live tail)")
	prevPages := flagSet.Int("prev", 0, "previous pages to load after the initial one")
	nextPages := flagSet.Int("next", 0, "next pages to load after the initial one")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var anchor *message.Timestamp
	if *anchorFlag > 0 {
		anchor = anchorFlag
	}

	eng := newEngine(e)
	return eng.run(ctx, os.Stdout, func(ctx context.Context) error {
		if err := eng.coord.LoadInitial(anchor, nil).Wait(ctx); err != nil {
			return err
		}
		for range *prevPages {
			snap := eng.coord.Snapshot()
			if !snap.HasPrevious || len(snap.Messages) == 0 {
				break
			}
			oldest := snap.Messages[0].CreatedAt
			if err := eng.coord.LoadPrevious(&oldest).Wait(ctx); err != nil {
				return err
			}
		}
		for range *nextPages {
			if !eng.coord.Snapshot().HasNext {
				break
			}
			if err := eng.coord.LoadNext().Wait(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func cmdSync(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return errors.New("usage: chansyncctl sync")
	}
	eng := newEngine(e)
	return eng.run(ctx, os.Stdout, func(ctx context.Context) error {
		if err := eng.coord.LoadInitial(nil, nil).Wait(ctx); err != nil {
			return err
		}
		return eng.coord.SyncChangelog().Wait(ctx)
	})
}

func cmdWatch(ctx context.Context, e *env, args []string) error {
	flagSet := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	metricsAddr := flagSet.String("metrics-addr", "", "serve engine metrics on this address")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	reg := metrics.NewRegistry()
	engineMetrics, err := intsync.NewMetrics(reg)
	if err != nil {
		return err
	}
	metricsSrv := metrics.NewServer(*metricsAddr, reg, e.logger)
	if err := metricsSrv.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = metricsSrv.Stop(stopCtx)
	}()

	eng := newEngine(e, intsync.WithMetrics(engineMetrics))
	changes, err := eng.store.Watch(ctx)
	if err != nil {
		return err
	}

	return eng.run(ctx, os.Stdout, func(ctx context.Context) error {
		if err := eng.coord.LoadInitial(nil, nil).Wait(ctx); err != nil {
			return err
		}
		follower := intsync.NewFollower(eng.coord, eng.logger)
		follower.Start(ctx, changes)
		defer follower.Stop()

		select {
		case <-ctx.Done():
			return nil
		case <-follower.Done():
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("daemon closed the watch stream")
		}
	})
}

// eventLine is the JSON shape of one printed engine event.
type eventLine struct {
	Kind        string            `json:"kind"`
	At          time.Time         `json:"at"`
	Channel     string            `json:"channel,omitempty"`
	Messages    []message.Message `json:"messages,omitempty"`
	DeletedIDs  []message.ID      `json:"deleted_ids,omitempty"`
	HasPrevious *bool             `json:"has_previous,omitempty"`
	HasNext     *bool             `json:"has_next,omitempty"`
	IsLive      *bool             `json:"is_live,omitempty"`
	Loading     *bool             `json:"loading,omitempty"`
	Op          string            `json:"op,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func toLine(evt bus.Event) eventLine {
	line := eventLine{Kind: evt.Kind, At: evt.Timestamp}
	switch p := evt.Payload.(type) {
	case intsync.Batch:
		line.Channel = p.Channel
		line.Messages = p.Messages
		line.HasPrevious = &p.HasPrevious
		line.HasNext = &p.HasNext
		line.IsLive = &p.IsLive
	case intsync.Deleted:
		line.Channel = p.Channel
		line.DeletedIDs = p.IDs
	case intsync.Loading:
		line.Channel = p.Channel
		line.Loading = &p.Loading
	case intsync.Failure:
		line.Channel = p.Channel
		line.Op = p.Op
		line.ErrorKind = string(p.Kind)
		if p.Err != nil {
			line.Error = p.Err.Error()
		}
	}
	return line
}

// printEvents writes one JSON line per event until ctx is done, then
// drains what is already buffered.
func printEvents(ctx context.Context, events <-chan bus.Event, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case evt := <-events:
			if err := enc.Encode(toLine(evt)); err != nil {
				return err
			}
		case <-ctx.Done():
			for {
				select {
				case evt := <-events:
					if err := enc.Encode(toLine(evt)); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}
