package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"copytrader/cmd/apiserver"
	"copytrader/cmd/poller"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Copytrader CMD"
	app.Usage = "The copytrader command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		pollerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the copytrader API server`,
	}
	pollerCMD = cli.Command{
		Name:        "poller",
		Usage:       "run the trade poller",
		Action:      pollerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trade ingestion poller`,
	}
)

func serverAction(_ *cli.Context) error {
	logrus.Info("Starting server CMD")
	logrus.WithField("cmd", "server")

	srv := &apiserver.Server{}
	err := srv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func pollerAction(_ *cli.Context) error {
	logrus.Info("Starting poller CMD")
	logrus.WithField("cmd", "poller")

	p := &poller.Poller{}
	err := p.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
