package tempo

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies a TEMPO L3 product family.
type Kind string

const (
	HCHO Kind = "hcho"
	NO2  Kind = "no2"
	O3   Kind = "o3"
)

// ParseKind converts a product name such as "NO2" or "o3tot" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hcho":
		return HCHO, nil
	case "no2":
		return NO2, nil
	case "o3", "o3tot":
		return O3, nil
	}
	return "", fmt.Errorf("unknown product %q, want one of hcho, no2, o3", s)
}

// Role is a logical field of a product together with the names it may go by
// inside the product group.
type Role struct {
	// Column is the output column name.
	Column string
	// Candidates are tried in order, exact match first, then substring.
	Candidates []string
	// Keywords is the last resort: the first variable whose lowercased name
	// contains every keyword of a group wins. Groups are tried in order.
	Keywords [][]string
}

// Profile is the extraction recipe of one product family.
type Profile struct {
	Kind Kind
	Main Role
	Aux  []Role
	// EmitKind adds the product_kind discriminator column.
	EmitKind bool
	// Token extracts the compact timestamp from a granule file name.
	Token *regexp.Regexp
}

var (
	// 8-digit date, 'T', 4 or 6 digit time, optionally followed by Z or _.
	looseToken = regexp.MustCompile(`(?i)^.*?(\d{8}T\d{4,6})(?:Z|_)?`)
	// TEMPO_O3TOT_L3_V03_20250601T103345Z_S001.nc
	strictToken = regexp.MustCompile(`(?i)_(\d{8}T\d{6})Z`)
)

var profiles = map[Kind]Profile{
	HCHO: {
		Kind: HCHO,
		Main: Role{
			Column:     "hcho",
			Candidates: []string{"vertical_column", "hcho_vertical_column", "hcho_column"},
			Keywords:   [][]string{{"hcho", "column"}, {"hcho"}, {"column"}},
		},
		Aux: []Role{
			{
				Column:     "vertical_column_uncertainty",
				Candidates: []string{"vertical_column_uncertainty", "vertical_column_precision", "hcho_vertical_column_uncertainty"},
			},
			{
				Column:     "cloud_fraction",
				Candidates: []string{"eff_cloud_fraction", "effective_cloud_fraction", "cloud_fraction", "cloud_frac"},
				Keywords:   [][]string{{"cloud", "fraction"}},
			},
			{
				Column:     "main_data_quality_flag",
				Candidates: []string{"main_data_quality_flag", "qa_value", "quality_flag"},
			},
		},
		Token: looseToken,
	},
	NO2: {
		Kind: NO2,
		Main: Role{
			Column: "vertical_column_troposphere",
			Candidates: []string{
				"vertical_column_troposphere",
				"tropospheric_vertical_column",
				"no2_tropospheric_vertical_column",
				"no2_vertical_column_troposphere",
				"no2_column_troposphere",
			},
			Keywords: [][]string{{"no2", "column"}, {"no2", "vertical"}, {"no2"}, {"column"}},
		},
		Aux: []Role{
			{
				Column: "cloud_fraction",
				Candidates: []string{
					"cloud_fraction", "effective_cloud_fraction", "cloud_radiance_fraction",
					"cloud_frac", "scene_cloud_fraction", "cloudfrac",
				},
				Keywords: [][]string{{"cloud", "fraction"}},
			},
			{
				Column: "vertical_column_troposphere_precision",
				Candidates: []string{
					"vertical_column_troposphere_precision", "tropospheric_vertical_column_precision",
					"no2_tropospheric_vertical_column_precision", "precision_trop",
				},
			},
			{
				Column:     "qa_value",
				Candidates: []string{"qa_value", "qa", "quality_flag", "quality", "quality_value"},
			},
			{
				Column:     "air_mass_factor_troposphere",
				Candidates: []string{"air_mass_factor_troposphere", "amf_troposphere", "tropospheric_amf"},
			},
		},
		EmitKind: true,
		Token:    looseToken,
	},
	O3: {
		Kind: O3,
		Main: Role{
			Column: "total_ozone_column",
			Candidates: []string{
				"column_amount_o3",
				"total_ozone_column", "ozone_total_column", "ozone_column_total",
				"o3_total_column", "o3_column_total", "tco", "ozone_total",
			},
			Keywords: [][]string{{"ozone", "column"}, {"o3", "column"}, {"ozone"}},
		},
		Aux: []Role{
			{
				Column: "total_ozone_column_precision",
				Candidates: []string{
					"total_ozone_column_precision", "total_ozone_column_uncertainty",
					"ozone_total_column_precision", "ozone_total_column_uncertainty",
					"o3_total_column_precision", "o3_total_column_uncertainty",
					"precision_total_ozone", "uncertainty_total_ozone",
				},
			},
			{
				Column:     "effective_cloud_fraction",
				Candidates: []string{"effective_cloud_fraction", "fc", "cloud_fraction", "cloud_frac", "cloud_radiance_fraction"},
			},
			{
				Column:     "radiative_cloud_fraction",
				Candidates: []string{"radiative_cloud_fraction", "radiative_cloud_frac"},
			},
			{
				Column:     "cloud_optical_centroid_pressure",
				Candidates: []string{"cloud_optical_centroid_pressure", "ocp"},
			},
			{
				Column:     "solar_zenith_angle",
				Candidates: []string{"solar_zenith_angle", "sza"},
			},
			{
				Column:     "viewing_zenith_angle",
				Candidates: []string{"viewing_zenith_angle", "vza"},
			},
			{
				Column:     "qa_value",
				Candidates: []string{"qa_value", "quality_flag", "quality_value", "qa"},
			},
		},
		EmitKind: true,
		Token:    strictToken,
	},
}

// ProfileFor returns the extraction recipe for the given product.
func ProfileFor(k Kind) (Profile, error) {
	p, ok := profiles[k]
	if !ok {
		return Profile{}, fmt.Errorf("no profile for product %q", k)
	}
	return p, nil
}
