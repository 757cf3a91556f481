// Copyright 2025 Ricardo L. Olsen. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/riclolsen/go-combiscope/combiscope"
	"github.com/riclolsen/go-combiscope/sink"
	"github.com/riclolsen/go-combiscope/store"
	"github.com/riclolsen/go-combiscope/transport"
)

var stdout io.Writer = os.Stdout

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// simple adapts a no-argument session operation to a command.
func simple(op func(*combiscope.Client, context.Context) error) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		c, err := a.session(ctx)
		if err != nil {
			return err
		}
		return op(c, ctx)
	}
}

func runPorts(ctx context.Context, a *app, args []string) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(stdout, "no serial ports found")
		return nil
	}
	for i, p := range ports {
		fmt.Fprintf(stdout, "%2d  %s\n", i, p)
	}
	return nil
}

func runIdentify(ctx context.Context, a *app, args []string) error {
	c, err := a.session(ctx)
	if err != nil {
		return err
	}
	id := c.String()
	if id == "" {
		if id, err = c.Identify(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintln(stdout, strings.TrimRight(id, "\r\n"))
	return nil
}

func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, a.cfg.Store.Path)
}

func runWaveform(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("waveform")
	ch := fs.Int("ch", 1, "channel 0..9")
	reg := fs.Int("reg", 0, "memory register 0..9, 0 is the acquisition memory")
	count := fs.Int("count", 1, "number of reads, 0 reads until interrupted")
	interval := fs.Duration("interval", 0, "pause between reads")
	trigger := fs.Bool("trigger", false, "send a software trigger before each read")
	save := fs.Bool("save", false, "store each waveform in the database")
	publish := fs.Bool("publish", false, "publish each waveform to redis")
	plot := fs.Bool("plot", false, "draw the waveform")
	asJSON := fs.Bool("json", false, "print the waveform as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.session(ctx)
	if err != nil {
		return err
	}

	var db *store.Store
	if *save {
		if db, err = a.openStore(ctx); err != nil {
			return err
		}
		defer db.Close()
	}
	var pub *sink.RedisPublisher
	if *publish || a.cfg.Redis.Enabled {
		if pub, err = sink.NewRedisPublisher(ctx, a.cfg.SinkOptions(a.log)); err != nil {
			return err
		}
		defer pub.Close()
	}

	for n := 0; *count == 0 || n < *count; n++ {
		if n > 0 && *interval > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(*interval):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if *trigger {
			if err := c.SoftwareTrigger(ctx); err != nil {
				return err
			}
		}

		w, err := c.Acquire(ctx, *ch, *reg)
		if err != nil {
			return err
		}
		if w.Stale {
			a.log.Warnf("Read %d: reply rejected, showing previous waveform", n+1)
		}
		if db != nil {
			id, err := db.SaveWaveform(ctx, w)
			if err != nil {
				return err
			}
			a.log.Infof("Saved waveform #%d", id)
		}
		if pub != nil {
			if err := pub.Publish(ctx, w); err != nil {
				return err
			}
		}
		if err := printWaveform(w, *plot, *asJSON); err != nil {
			return err
		}
	}
	return nil
}

func printWaveform(w *combiscope.Waveform, plot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(stdout)
		return enc.Encode(w)
	}
	md := w.Metadata
	fmt.Fprintf(stdout, "%s ch%d reg%d  %d samples  %s %s", md.TraceName(), w.Channel, w.Register,
		len(w.Samples), md.Date(), md.Time())
	if w.Stale {
		fmt.Fprint(stdout, "  (stale)")
	}
	fmt.Fprintf(stdout, "\n  y: zero %s res %s %s  x: zero %s res %s %s\n",
		md.YZero(), md.YResolution(), md.YUnit(), md.XZero(), md.XResolution(), md.XUnit())
	if plot {
		fmt.Fprintln(stdout, renderPlot(w.Samples, plotWidth, plotHeight))
	}
	return nil
}

func runRecent(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("recent")
	limit := fs.Int("limit", 10, "number of waveforms")
	fromRedis := fs.Bool("redis", false, "read the redis backlog instead of the database")
	ch := fs.Int("ch", 1, "channel, with -redis")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fromRedis {
		pub, err := sink.NewRedisPublisher(ctx, a.cfg.SinkOptions(a.log))
		if err != nil {
			return err
		}
		defer pub.Close()
		list, err := pub.Recent(ctx, *ch, *limit)
		if err != nil {
			return err
		}
		for _, w := range list {
			if err := printWaveform(w, false, false); err != nil {
				return err
			}
		}
		return nil
	}

	db, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.RecentWaveforms(ctx, *limit)
	if err != nil {
		return err
	}
	for _, w := range list {
		stale := ""
		if w.Stale {
			stale = " stale"
		}
		fmt.Fprintf(stdout, "%5d  %s  ch%d reg%d  %6d samples  %s%s\n", w.ID,
			w.AcquiredAt.Local().Format(time.DateTime), w.Channel, w.Register,
			len(w.Samples), w.Metadata.TraceName(), stale)
	}
	return nil
}

func runShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("show")
	id := fs.Int64("id", 0, "waveform id")
	plot := fs.Bool("plot", true, "draw the waveform")
	asJSON := fs.Bool("json", false, "print the waveform as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	db, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := db.LoadWaveform(ctx, *id)
	if err != nil {
		return err
	}
	return printWaveform(w, *plot, *asJSON)
}

func runSetup(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errors.New("setup needs one of get, put, list, delete")
	}
	action := args[0]
	fs := newFlagSet("setup " + action)
	name := fs.String("name", "", "setup name in the database")
	file := fs.String("file", "", "read or write the blob from/to this file instead")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	switch action {
	case "get":
		c, err := a.session(ctx)
		if err != nil {
			return err
		}
		blob, err := c.GetSetup(ctx)
		if err != nil {
			return err
		}
		if *file != "" {
			return os.WriteFile(*file, blob, 0o644)
		}
		if *name == "" {
			return errors.New("setup get needs -name or -file")
		}
		db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveSetup(ctx, *name, strings.TrimRight(c.String(), "\r\n"), blob); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved setup %q (%d bytes, crc %04X)\n", *name, len(blob), store.Checksum(blob))
		return nil

	case "put":
		var blob []byte
		var err error
		switch {
		case *file != "":
			blob, err = os.ReadFile(*file)
		case *name != "":
			var db *store.Store
			if db, err = a.openStore(ctx); err != nil {
				return err
			}
			defer db.Close()
			blob, err = db.LoadSetup(ctx, *name)
		default:
			return errors.New("setup put needs -name or -file")
		}
		if err != nil {
			return err
		}
		c, err := a.session(ctx)
		if err != nil {
			return err
		}
		return c.ProgramSetup(ctx, blob)

	case "list":
		db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		list, err := db.ListSetups(ctx)
		if err != nil {
			return err
		}
		for _, s := range list {
			fmt.Fprintf(stdout, "%-20s %6d bytes  crc %04X  %s  %s\n", s.Name, s.Size, s.CRC,
				s.CreatedAt.Local().Format(time.DateTime), s.Identity)
		}
		return nil

	case "delete":
		if *name == "" {
			return errors.New("setup delete needs -name")
		}
		db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.DeleteSetup(ctx, *name)
	}
	return fmt.Errorf("unknown setup action %q", action)
}

func runText(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("text")
	clearText := fs.Bool("clear", false, "remove the text from the screen")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*clearText && fs.NArg() == 0 {
		return errors.New("text needs a message or -clear")
	}
	c, err := a.session(ctx)
	if err != nil {
		return err
	}
	if *clearText {
		return c.ClearText(ctx)
	}
	return c.DisplayText(ctx, strings.Join(fs.Args(), " "))
}

func runConfig(ctx context.Context, a *app, args []string) error {
	return a.cfg.WriteYAML(stdout)
}
