// Command pactumd runs a standalone execution node: it opens a storage
// backend, starts the block builder and solution pool, and serves until
// interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	ucli "github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/pactum-chain/pactum"
	"github.com/pactum-chain/pactum/builder"
	"github.com/pactum-chain/pactum/node"
	"github.com/pactum-chain/pactum/pool"
	"github.com/pactum-chain/pactum/store"
	"github.com/pactum-chain/pactum/store/kv"
	"github.com/pactum-chain/pactum/store/memstore"
	"github.com/pactum-chain/pactum/validate"
	"github.com/pactum-chain/pactum/vm/refvm"
)

func main() {
	app := &ucli.App{
		Name:  "pactumd",
		Usage: "runs a pactum execution node",
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:  "db",
				Value: "memory",
				Usage: "storage backend: memory or bolt",
			},
			&ucli.StringFlag{
				Name:  "db-path",
				Usage: "bbolt database file path, required when --db=bolt",
			},
			&ucli.DurationFlag{
				Name:  "tick-period",
				Value: time.Second,
				Usage: "how often the builder attempts to assemble a block",
			},
			&ucli.IntFlag{
				Name:  "max-solutions-per-block",
				Usage: "cap on pool entries considered per tick, 0 for unbounded",
			},
			&ucli.Uint64Flag{
				Name:  "gas-ceiling",
				Value: 1_000_000,
				Usage: "gas ceiling enforced on every solution validation",
			},
			&ucli.Uint64Flag{
				Name:  "max-age-blocks",
				Value: 100,
				Usage: "blocks a solution may sit in the pool before eviction, 0 to disable",
			},
			&ucli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address to serve Prometheus metrics on, empty disables it",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		pactum.Logger.Err(err).Msg("pactumd exited with an error")
		os.Exit(1)
	}
}

func run(c *ucli.Context) error {
	backend, err := openBackend(c)
	if err != nil {
		return xerrors.Errorf("couldn't open backend: %v", err)
	}
	defer backend.Close()

	// refvm.Registry is the reference vm.Resolver every solution's
	// predicates are checked against until a real bytecode interpreter is
	// wired in.
	resolver := refvm.NewRegistry()

	gasCeiling := c.Uint64("gas-ceiling")

	p := pool.New(backend, resolver, pool.Config{
		MaxAgeBlocks: c.Uint64("max-age-blocks"),
		DryValidate:  validate.Config{GasCeiling: gasCeiling},
	})

	bcfg := builder.DefaultConfig()
	bcfg.TickPeriod = c.Duration("tick-period")
	bcfg.MaxSolutionsPerBlock = c.Int("max-solutions-per-block")
	bcfg.GasCeiling = gasCeiling

	b := builder.New(backend, resolver, p, bcfg)

	sup := node.New(backend, b, p, node.Config{
		AgingSweepInterval: bcfg.TickPeriod,
		MetricsAddr:        c.String("metrics-addr"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return xerrors.Errorf("couldn't start node: %v", err)
	}

	pactum.Logger.Info().Str("db", c.String("db")).Dur("tick-period", bcfg.TickPeriod).Msg("pactumd running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	pactum.Logger.Info().Msg("shutting down")
	cancel()

	return sup.Stop()
}

func openBackend(c *ucli.Context) (store.Backend, error) {
	switch c.String("db") {
	case "memory":
		return memstore.New(), nil
	case "bolt":
		path := c.String("db-path")
		if path == "" {
			return nil, xerrors.New("--db-path is required when --db=bolt")
		}

		return kv.Open(path)
	default:
		return nil, xerrors.Errorf("unknown storage backend %q", c.String("db"))
	}
}
