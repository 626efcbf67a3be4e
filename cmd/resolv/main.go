// Command resolv is a dig-like front end for the resolution engine. It
// reads the system resolver configuration by default and prints the answer
// sections of each query.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/semihalev/zlog/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/semihalev/resolv/config"
	"github.com/semihalev/resolv/hints"
	"github.com/semihalev/resolv/hosts"
	"github.com/semihalev/resolv/pool"
	"github.com/semihalev/resolv/resolver"
	"github.com/semihalev/resolv/wire"
)

var version = "0.1.0"

var (
	flagConfig    string
	flagServer    []string
	flagType      string
	flagClass     string
	flagRecurse   bool
	flagSmart     bool
	flagTCP       bool
	flagTimeout   time.Duration
	flagAttempts  int
	flagParallel  int
	flagRateLimit int
	flagDebug     bool
	flagShort     bool
)

func main() {
	root := &cobra.Command{
		Use:     "resolv [flags] name...",
		Short:   "resolve DNS names",
		Version: version,
		Args:    cobra.MinimumNArgs(1),
		RunE:    run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "TOML config file, system config when empty")
	root.Flags().StringArrayVarP(&flagServer, "server", "s", nil, "nameserver address, repeatable")
	root.Flags().StringVarP(&flagType, "type", "t", "A", "query type")
	root.Flags().StringVar(&flagClass, "class", "IN", "query class")
	root.Flags().BoolVarP(&flagRecurse, "recurse", "r", false, "resolve iteratively from the root servers")
	root.Flags().BoolVar(&flagSmart, "smart", false, "chase missing NS/MX/SRV target addresses")
	root.Flags().BoolVar(&flagTCP, "tcp", false, "query over TCP only")
	root.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-attempt timeout, config default when zero")
	root.Flags().IntVar(&flagAttempts, "attempts", 0, "retries per server, config default when zero")
	root.Flags().IntVarP(&flagParallel, "parallel", "p", 4, "concurrent queries")
	root.Flags().IntVar(&flagRateLimit, "rate", 0, "max queries per second, 0 unlimited")
	root.Flags().BoolVarP(&flagDebug, "debug", "d", false, "debug logging")
	root.Flags().BoolVar(&flagShort, "short", false, "print rdata only")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "resolv:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	qtype, ok := wire.StringToType[strings.ToUpper(flagType)]
	if !ok {
		return fmt.Errorf("unknown query type %q", flagType)
	}
	qclass := wire.ClassINET
	switch strings.ToUpper(flagClass) {
	case "IN":
	case "CH":
		qclass = wire.ClassCHAOS
	case "ANY":
		qclass = wire.ClassANY
	default:
		return fmt.Errorf("unknown query class %q", flagClass)
	}

	var limiter *rate.Limiter
	if flagRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(flagRateLimit), 1)
	}

	var ht *hosts.Table
	var db *hints.DB
	if cfg.Options.Recurse {
		ht, db = hosts.New(), hints.Root()
	} else {
		ht, db = hosts.Local(), hints.Local(cfg)
	}

	p := pool.New(pool.Config{
		HiWat: flagParallel,
		LoWat: flagParallel,
		Rate:  limiter,
		New:   func() *resolver.Resolver { return resolver.New(cfg, ht, db) },
	})
	defer p.Close()

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(flagParallel)

	results := make([]*wire.Packet, len(args))
	for i, name := range args {
		g.Go(func() error {
			pkt, err := p.Query(ctx, name, qtype, qclass)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = pkt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, pkt := range results {
		printAnswer(pkt)
	}
	return nil
}

func setupLogging() {
	logger := zlog.NewStructured()
	logger.SetWriter(zlog.StdoutTerminal())
	if flagDebug {
		logger.SetLevel(zlog.LevelDebug)
	} else {
		logger.SetLevel(zlog.LevelWarn)
	}
	zlog.SetDefault(logger)
}

func buildConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadTOML(flagConfig)
		if err != nil {
			return nil, err
		}
	} else if flagRecurse {
		cfg = config.Root()
	} else {
		cfg = config.Local()
	}

	if len(flagServer) > 0 {
		cfg.Nameservers = nil
		for _, s := range flagServer {
			ap, err := config.ParseNameserver(s)
			if err != nil {
				return nil, err
			}
			cfg.AddNameserver(ap)
		}
	}
	cfg.Options.Recurse = cfg.Options.Recurse || flagRecurse
	cfg.Options.Smart = cfg.Options.Smart || flagSmart
	if flagTCP {
		cfg.Options.TCP = config.TCPOnly
	}
	if flagTimeout > 0 {
		cfg.Options.Timeout.Duration = flagTimeout
	}
	if flagAttempts > 0 {
		cfg.Options.Attempts = flagAttempts
	}
	return cfg, nil
}

func printAnswer(pkt *wire.Packet) {
	if q, ok := pkt.Question(); ok && !flagShort {
		fmt.Printf(";; %s %s %s -> %s\n", strings.TrimSuffix(q.Name, "."),
			wire.ClassToString[q.Class], wire.TypeToString[q.Type],
			wire.RcodeToString[pkt.Rcode()])
	}
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAnswer | wire.SectionAuthority | wire.SectionAdditional})
	for it.Next() {
		rr := it.RR()
		if rr.Type == wire.TypeOPT {
			continue
		}
		if flagShort {
			fmt.Println(rr.Data.String())
			continue
		}
		fmt.Println(rr.String())
	}
}
