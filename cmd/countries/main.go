package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	altsrc "github.com/urfave/cli-altsrc/v3"
	altyaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"country-store/internal/cache"
	"country-store/internal/client"
	"country-store/internal/config"
	"country-store/internal/domain"
	mylog "country-store/internal/log"
	"country-store/internal/output"
	"country-store/internal/service"
	"country-store/internal/store"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	mylog.InitLogger("error")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, newFetcher: restCountries}
	if err := a.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// app builds the command tree. newFetcher is swapped out in tests.
type app struct {
	out        io.Writer
	newFetcher func(cfg config.Config) store.Fetcher
}

func restCountries(cfg config.Config) store.Fetcher {
	return client.NewRestCountriesClient(cfg.Upstream.Timeout)
}

// configFile is an altsrc sourcer for the --config value. It is read when
// subcommand flags resolve their sources, after the root flags are parsed.
type configFile struct {
	path *string
}

func (c configFile) SourceURI() string { return *c.path }

func (a *app) command() *cli.Command {
	cfgPath, _ := config.Path()
	src := configFile{path: &cfgPath}

	return &cli.Command{
		Name:   "countries",
		Usage:  "query the REST Countries listing",
		Writer: a.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the config file",
				Value:       cfgPath,
				Destination: &cfgPath,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list countries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "region",
						Aliases: []string{"r"},
						Usage:   "only countries of this region",
					},
					&cli.StringFlag{
						Name:    "sort",
						Aliases: []string{"s"},
						Usage:   "sort by name or population",
						Value:   service.SortByName,
						Sources: configSource(src, "cli.sort"),
						Validator: func(v string) error {
							if v != service.SortByName && v != service.SortByPopulation {
								return fmt.Errorf("invalid sort %q, must be %s or %s", v, service.SortByName, service.SortByPopulation)
							}
							return nil
						},
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "maximum number of countries, 0 for all",
					},
					outputFlag(src),
				},
				Action: a.list,
			},
			{
				Name:   "regions",
				Usage:  "summarize countries per region",
				Flags:  []cli.Flag{outputFlag(src)},
				Action: a.regions,
			},
			{
				Name:      "show",
				Usage:     "show one country, including native names",
				ArgsUsage: "NAME",
				Flags:     []cli.Flag{outputFlag(src)},
				Action:    a.show,
			},
		},
	}
}

func outputFlag(src configFile) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format (text, json, yaml)",
		Value:   output.FormatText,
		Sources: configSource(src, "cli.output"),
		Validator: func(v string) error {
			return output.ValidateFormat(v)
		},
	}
}

// configSource reads a flag default from the config file, if there is one.
// A missing or unreadable file yields no value.
func configSource(src altsrc.Sourcer, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(altyaml.YAML(key, src))
}

func (a *app) newService(cmd *cli.Command) (*service.Service, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	st := store.NewCountryStore(a.newFetcher(cfg))
	return service.NewCountryService(st, cache.NewInMemoryCache[domain.Country]()), nil
}

func (a *app) list(ctx context.Context, cmd *cli.Command) error {
	svc, err := a.newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	countries, err := svc.List(ctx, service.Filter{
		Region: cmd.String("region"),
		Sort:   cmd.String("sort"),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	return output.Countries(a.out, cmd.String("output"), countries)
}

func (a *app) regions(ctx context.Context, cmd *cli.Command) error {
	svc, err := a.newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	regions, err := svc.Regions(ctx)
	if err != nil {
		return err
	}
	return output.Regions(a.out, cmd.String("output"), regions)
}

func (a *app) show(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return errors.New("show requires a country NAME")
	}

	svc, err := a.newService(cmd)
	if err != nil {
		return err
	}
	defer svc.Close()

	country, err := svc.Search(ctx, name)
	if err != nil {
		return err
	}
	return output.Country(a.out, cmd.String("output"), *country)
}
