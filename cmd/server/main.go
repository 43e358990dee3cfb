package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "broadcast-scheduler: %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "broadcast-scheduler"
	app.HelpName = "broadcast-scheduler"
	app.Usage = "Plays audio files on a weekly schedule."
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path of the YAML config file",
			Value:  "configs/config.yaml",
			EnvVar: "BROADCAST_CONFIG",
		},
	}
	app.Action = serve
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the scheduler, player and web control surface (default)",
			Action: serve,
		},
		{
			Name:    "next",
			Aliases: []string{"n"},
			Usage:   "print the next scheduled broadcast and exit",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "upcoming, u",
					Usage: "also list this many fire times per schedule",
				},
			},
			Action: next,
		},
	}
	return app
}

// configPath reads --config whether it was given before or after the command.
func configPath(c *cli.Context) string {
	if p := c.GlobalString("config"); p != "" {
		return p
	}
	return c.String("config")
}
