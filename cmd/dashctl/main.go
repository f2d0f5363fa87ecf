package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"go.uber.org/zap"
)

const DashctlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", 0)
}

func main() {
	usage := `Dashboard control.

The backend url defaults to $DASHBOARD_API or http://localhost:9090.
The session token is read from --token or $DASHBOARD_TOKEN.

Usage:
    dashctl resources [--catalog=<file>]
    dashctl login [--api=<url>] --email=<email>
    dashctl list <resource> [--api=<url>] [--token=<token>] [--catalog=<file>]
        [--filter=<kv>...] [--search=<q>] [--sort=<field>] [--desc]
        [--page=<n>] [--page-size=<n>]
    dashctl show <resource> <id> [--api=<url>] [--token=<token>] [--catalog=<file>]
    dashctl delete <resource> <id> [--api=<url>] [--token=<token>] [--catalog=<file>] --yes
    dashctl action <resource> <id> <action> [--api=<url>] [--token=<token>] [--catalog=<file>]
    dashctl -h | --help
    dashctl --version

Options:
    -h --help           Show this screen.
    --version           Show version.
    --api=<url>         Backend base url.
    --token=<token>     Backend access token, as printed by login.
    --catalog=<file>    Resource catalog; the embedded default when omitted.
    --email=<email>     Staff account email. The password is prompted for.
    --filter=<kv>       Equality filter field=value; repeatable.
    --search=<q>        Case-insensitive search over field values.
    --sort=<field>      Sort by field.
    --desc              Sort descending.
    --page=<n>          Page to show [default: 1].
    --page-size=<n>     Rows per page.
    --yes               Confirm the delete.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], DashctlVersion)
	if err != nil {
		panic(err)
	}

	// Library logging only reports errors, on stderr.
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	if logger, err := cfg.Build(); err == nil {
		zap.ReplaceGlobals(logger)
		defer logger.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if resources_, _ := opts.Bool("resources"); resources_ {
		err = listResources(opts)
	} else if login_, _ := opts.Bool("login"); login_ {
		err = login(ctx, opts)
	} else if list_, _ := opts.Bool("list"); list_ {
		err = list(ctx, opts)
	} else if show_, _ := opts.Bool("show"); show_ {
		err = show(ctx, opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		err = remove(ctx, opts)
	} else if action_, _ := opts.Bool("action"); action_ {
		err = runAction(ctx, opts)
	}
	if err != nil {
		Err.Printf("dashctl: %s\n", err)
		os.Exit(1)
	}
}
