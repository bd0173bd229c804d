package tempo

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the explicit configuration of one extraction run.
type Config struct {
	Product Kind
	// BBox limits the output region; nil keeps the whole grid.
	BBox *BBox
	// TimeStrategy is StrategyInterval or StrategyFilename.
	TimeStrategy string
	// RemoveNonPositive masks main-quantity values <= 0.
	RemoveNonPositive bool
	// ProductGroup names the group holding the physical quantities.
	ProductGroup string

	// InputDir holds the *.nc granules and Output is the CSV path.
	InputDir string
	Output   string
}

// DefaultConfig returns the settings of a NYC NO2 export.
func DefaultConfig() Config {
	bbox := NYC
	return Config{
		Product:           NO2,
		BBox:              &bbox,
		TimeStrategy:      StrategyInterval,
		RemoveNonPositive: true,
		ProductGroup:      "product",
		InputDir:          ".",
	}
}

// Validate checks the configuration before a run.
func (c Config) Validate() error {
	if _, err := ProfileFor(c.Product); err != nil {
		return err
	}
	if c.TimeStrategy != StrategyInterval && c.TimeStrategy != StrategyFilename {
		return errors.Errorf("unknown time strategy %q", c.TimeStrategy)
	}
	if c.BBox != nil {
		if err := c.BBox.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type fileConfig struct {
	Product           string    `toml:"product"`
	BBox              []float64 `toml:"bbox"`
	NoBBox            bool      `toml:"no_bbox"`
	TimeStrategy      string    `toml:"time_strategy"`
	RemoveNonPositive *bool     `toml:"remove_non_positive"`
	ProductGroup      *string   `toml:"product_group"`
	InputDir          string    `toml:"input_dir"`
	Output            string    `toml:"output"`
}

// LoadConfig overlays the TOML file at path on base. Unknown keys are an
// error.
func LoadConfig(path string, base Config) (Config, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return base, errors.Wrapf(err, "config %s", path)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return base, errors.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	c := base
	if fc.Product != "" {
		if c.Product, err = ParseKind(fc.Product); err != nil {
			return base, errors.Wrapf(err, "config %s", path)
		}
	}
	switch {
	case fc.NoBBox:
		c.BBox = nil
	case fc.BBox != nil:
		if len(fc.BBox) != 4 {
			return base, errors.Errorf("config %s: bbox needs 4 values, got %d", path, len(fc.BBox))
		}
		c.BBox = &BBox{LonMin: fc.BBox[0], LatMin: fc.BBox[1], LonMax: fc.BBox[2], LatMax: fc.BBox[3]}
	}
	if fc.TimeStrategy != "" {
		c.TimeStrategy = fc.TimeStrategy
	}
	if fc.RemoveNonPositive != nil {
		c.RemoveNonPositive = *fc.RemoveNonPositive
	}
	if fc.ProductGroup != nil {
		c.ProductGroup = *fc.ProductGroup
	}
	if fc.InputDir != "" {
		c.InputDir = fc.InputDir
	}
	if fc.Output != "" {
		c.Output = fc.Output
	}
	return c, c.Validate()
}
