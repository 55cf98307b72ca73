// Command tplus runs T+1 execution backtests: it downloads daily bars,
// builds price panels with a synthetic cash asset, prices order sets,
// runs strategy backtests and serves them over gRPC.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/config"
)

var configPath = flag.String("config", config.PathFromEnv(), "path to the YAML configuration file")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&fetchCmd{}, "data")
	commander.Register(&buildCmd{}, "data")
	commander.Register(&cashCmd{}, "data")
	commander.Register(&executeCmd{}, "backtest")
	commander.Register(&runCmd{}, "backtest")
	commander.Register(&runsCmd{}, "backtest")
	commander.Register(&serveCmd{}, "server")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}
