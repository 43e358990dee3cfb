package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/noahxzhu/broadcast-scheduler/internal/config"
	"github.com/noahxzhu/broadcast-scheduler/internal/logging"
	"github.com/noahxzhu/broadcast-scheduler/internal/model"
	"github.com/noahxzhu/broadcast-scheduler/internal/scheduler"
	"github.com/noahxzhu/broadcast-scheduler/internal/storage"
)

func next(c *cli.Context) error {
	cfg, err := config.LoadConfig(configPath(c))
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)

	store := storage.NewStore(afero.NewOsFs(), cfg.Storage.FilePath, nil, logger)
	store.Load()
	return printNext(os.Stdout, store.Active(), time.Now(), c.Int("upcoming"))
}

func printNext(w io.Writer, list []model.Schedule, now time.Time, upcoming int) error {
	occ, ok := scheduler.NextOccurrence(list, now)
	if !ok {
		_, err := fmt.Fprintln(w, "No upcoming broadcasts")
		return err
	}

	when := "today"
	switch occ.DaysAhead {
	case 0:
	case 1:
		when = "tomorrow"
	default:
		when = fmt.Sprintf("in %d days", occ.DaysAhead)
	}
	if _, err := fmt.Fprintf(w, "Next: %s at %s on %s (%s)\n",
		occ.Schedule.Name, occ.Time, occ.At.Format("Monday 2006-01-02"), when); err != nil {
		return err
	}

	if upcoming <= 0 {
		return nil
	}
	for _, sch := range list {
		times, err := scheduler.Upcoming(sch, now, upcoming)
		if err != nil {
			if _, err := fmt.Fprintf(w, "  %s: %v\n", sch.Name, err); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "  %s (%s):\n", sch.Name, model.FormatDuration(sch.DurationSeconds)); err != nil {
			return err
		}
		for _, t := range times {
			if _, err := fmt.Fprintf(w, "    %s\n", t.Format("Mon 2006-01-02 15:04")); err != nil {
				return err
			}
		}
	}
	return nil
}
