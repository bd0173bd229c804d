package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/rtm0/tempo/internal/csvout"
	"github.com/rtm0/tempo/internal/tempo"
	"github.com/rtm0/tempo/internal/vm"
)

var version = "dev"

var extractFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "TOML file with run settings; flags override it"},
	cli.StringFlag{Name: "input, i", Usage: "directory holding TEMPO L3 *.nc granules"},
	cli.StringFlag{Name: "output, o", Usage: "CSV file to write (default <product>_L3_merged.csv in the input directory)"},
	cli.StringFlag{Name: "product, p", Usage: "product family: hcho, no2 or o3"},
	cli.StringFlag{Name: "bbox", Usage: "lon_min,lat_min,lon_max,lat_max, or none (default NYC)"},
	cli.StringFlag{Name: "time", Usage: "timestamp strategy: interval or filename"},
	cli.StringFlag{Name: "group", Usage: "netCDF group holding the product variables"},
	cli.BoolFlag{Name: "keep-non-positive", Usage: "keep main-quantity values <= 0"},
	cli.StringFlag{Name: "vmInsertUrl", Usage: "optional Victoria Metrics insert API URL, e.g. http://localhost:8428/write"},
	cli.StringFlag{Name: "metricPrefix", Value: "tempo", Usage: "Victoria Metrics metric prefix"},
	cli.IntFlag{Name: "recsPerInsert", Value: 500, Usage: "number of records sent to VM in one batch"},
	cli.IntFlag{Name: "concurrency", Value: runtime.NumCPU(), Usage: "maximum connections to Victoria Metrics"},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	app := cli.NewApp()
	app.Name = "tempo-export"
	app.Usage = "Crop TEMPO L3 trace-gas granules to a region and merge them into one CSV"
	app.Version = version
	app.Commands = cli.Commands{
		cli.Command{
			Name:    "extract",
			Aliases: []string{"x"},
			Usage:   "Extract and merge the granules of a directory",
			Flags:   extractFlags,
			Action: func(c *cli.Context) error {
				return extractAction(logger, c)
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Error("Extraction failed", "err", err)
		os.Exit(1)
	}
}

func extractAction(logger *slog.Logger, c *cli.Context) error {
	cfg, err := configFromContext(c)
	if err != nil {
		return err
	}
	files, err := listGranules(cfg.InputDir)
	if err != nil {
		return err
	}
	logger.Info("run", "product", cfg.Product, "bbox", cfg.BBox, "time", cfg.TimeStrategy,
		"input", cfg.InputDir, "files", len(files))

	res, err := tempo.Run(logger, cfg, files, nil)
	if err != nil {
		if res != nil {
			for _, s := range res.Skips {
				logger.Error("skipped", "file", s.File, "err", s.Err)
			}
		}
		return err
	}

	if res.Table.Len() == 0 {
		logger.Warn("no rows survived filtering and cropping, writing header only", "output", cfg.Output)
	}
	if err := csvout.WriteFile(cfg.Output, res.Table); err != nil {
		return err
	}
	logger.Info("written", "output", cfg.Output, "rows", res.Table.Len(),
		"files", fmt.Sprintf("%d/%d", res.Table.Granules(), res.Files), "skipped", len(res.Skips))

	if u := c.String("vmInsertUrl"); u != "" {
		vmCli, err := vm.NewClient(logger, u, c.Int("concurrency"), c.String("metricPrefix"))
		if err != nil {
			return errors.Wrap(err, "could not create new VM client")
		}
		n, err := vmCli.InsertTable(res.Table, c.Int("recsPerInsert"))
		if err != nil {
			return errors.Wrapf(err, "inserted %d records before failing", n)
		}
		logger.Info("inserted", "records", n, "url", u)
	}
	return nil
}

func configFromContext(c *cli.Context) (tempo.Config, error) {
	cfg := tempo.DefaultConfig()
	var err error
	if path := c.String("config"); path != "" {
		if cfg, err = tempo.LoadConfig(path, cfg); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("input") {
		cfg.InputDir = c.String("input")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}
	if c.IsSet("product") {
		if cfg.Product, err = tempo.ParseKind(c.String("product")); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("bbox") {
		if cfg.BBox, err = tempo.ParseBBox(c.String("bbox")); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("time") {
		cfg.TimeStrategy = c.String("time")
	}
	if c.IsSet("group") {
		cfg.ProductGroup = c.String("group")
	}
	if c.Bool("keep-non-positive") {
		cfg.RemoveNonPositive = false
	}
	if cfg.Output == "" {
		cfg.Output = filepath.Join(cfg.InputDir, fmt.Sprintf("%s_L3_merged.csv", cfg.Product))
	}
	return cfg, cfg.Validate()
}

// listGranules returns the *.nc files of dir in lexical order.
func listGranules(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read input directory")
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".nc") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
