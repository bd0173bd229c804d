package tempo

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"
	"github.com/relvacode/iso8601"
)

const (
	microLayout  = "2006-01-02T15:04:05.000000Z"
	secondLayout = "2006-01-02T15:04:05Z"
)

// Time strategy names accepted by NewTimeResolver.
const (
	StrategyInterval = "interval"
	StrategyFilename = "filename"
)

// Column is a named, already formatted output value.
type Column struct {
	Name  string
	Value string
}

// Stamp is the observation time shared by every row of a granule.
type Stamp struct {
	// At is the representative instant: the interval midpoint or the file
	// name time.
	At      time.Time
	Columns []Column
}

// TimeResolver derives the granule timestamp from its file name and root
// group.
type TimeResolver interface {
	Resolve(fileName string, root api.Group) (Stamp, error)
}

// NewTimeResolver returns the strategy registered under name. The filename
// strategy uses the token pattern of the product profile.
func NewTimeResolver(name string, p Profile) (TimeResolver, error) {
	switch name {
	case StrategyInterval, "":
		return IntervalMidpoint{}, nil
	case StrategyFilename:
		return FilenameToken{Pattern: p.Token}, nil
	}
	return nil, errors.Errorf("unknown time strategy %q, want %s or %s", name, StrategyInterval, StrategyFilename)
}

// IntervalMidpoint uses the time_coverage_{start,end}_since_epoch root
// attributes, falling back to the first value of a root time coordinate.
type IntervalMidpoint struct{}

var timeCoordNames = []string{"time", "Time", "scan_time"}

func (IntervalMidpoint) Resolve(_ string, root api.Group) (Stamp, error) {
	var t0, t1, tm time.Time
	attrs := root.Attributes()
	s0, ok0 := epochAttr(attrs, "time_coverage_start_since_epoch")
	s1, ok1 := epochAttr(attrs, "time_coverage_end_since_epoch")
	if ok0 && ok1 {
		t0, t1 = epochTime(s0), epochTime(s1)
		tm = t0.Add(t1.Sub(t0) / 2)
	} else {
		t, err := firstTimeCoord(root)
		if err != nil {
			return Stamp{}, errors.Wrapf(ErrTimestamp, "%v", err)
		}
		t0, t1, tm = t, t, t
	}
	return Stamp{
		At: tm,
		Columns: []Column{
			{Name: "time_start_utc", Value: t0.UTC().Format(microLayout)},
			{Name: "time_end_utc", Value: t1.UTC().Format(microLayout)},
			{Name: "time_mid_utc", Value: tm.UTC().Format(microLayout)},
		},
	}, nil
}

func epochAttr(am api.AttributeMap, key string) (float64, bool) {
	if am == nil {
		return 0, false
	}
	if v, ok := attrFloat(am, key); ok {
		return v, true
	}
	if s, ok := attrString(am, key); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return v, err == nil
	}
	return 0, false
}

// epochTime converts fractional epoch seconds, rounded to the microsecond.
func epochTime(secs float64) time.Time {
	return time.UnixMicro(int64(math.Round(secs * 1e6))).UTC()
}

func firstTimeCoord(root api.Group) (time.Time, error) {
	have := map[string]bool{}
	for _, v := range root.ListVariables() {
		have[v] = true
	}
	for _, name := range timeCoordNames {
		if !have[name] {
			continue
		}
		vr, err := root.GetVariable(name)
		if err != nil {
			return time.Time{}, err
		}
		vals, _, _, err := flatten(vr.Values)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "time coordinate %s", name)
		}
		if len(vals) == 0 {
			return time.Time{}, errors.Errorf("time coordinate %s is empty", name)
		}
		units := ""
		if vr.Attributes != nil {
			units, _ = attrString(vr.Attributes, "units")
		}
		return decodeCFTime(vals[0], units)
	}
	return time.Time{}, errors.New("no coverage attributes and no time coordinate")
}

var cfUnits = map[string]time.Duration{
	"microseconds": time.Microsecond,
	"milliseconds": time.Millisecond,
	"seconds":      time.Second,
	"second":       time.Second,
	"secs":         time.Second,
	"sec":          time.Second,
	"s":            time.Second,
	"minutes":      time.Minute,
	"minute":       time.Minute,
	"mins":         time.Minute,
	"min":          time.Minute,
	"hours":        time.Hour,
	"hour":         time.Hour,
	"hrs":          time.Hour,
	"h":            time.Hour,
	"days":         24 * time.Hour,
	"day":          24 * time.Hour,
	"d":            24 * time.Hour,
}

// decodeCFTime decodes a CF "<unit> since <reference>" value. Without units
// the value is taken as seconds since the Unix epoch.
func decodeCFTime(v float64, units string) (time.Time, error) {
	if strings.TrimSpace(units) == "" {
		return epochTime(v), nil
	}
	unit, ref, found := strings.Cut(strings.TrimSpace(units), " since ")
	if !found {
		return time.Time{}, errors.Errorf("time units %q: missing reference date", units)
	}
	step, ok := cfUnits[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return time.Time{}, errors.Errorf("time units %q: unknown unit %q", units, unit)
	}
	base, err := parseReference(ref)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "time units %q", units)
	}
	offset := time.Duration(math.Round(v*float64(step)/1e3)) * time.Microsecond
	return base.Add(offset).UTC(), nil
}

func parseReference(ref string) (time.Time, error) {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimSuffix(ref, " UTC")
	if i := strings.IndexByte(ref, ' '); i > 0 {
		ref = ref[:i] + "T" + ref[i+1:]
	}
	if t, err := iso8601.ParseString(ref); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", ref)
}

// FilenameToken reads a compact YYYYMMDDThhmm[ss] token from the file name.
// A four digit time means zero seconds.
type FilenameToken struct {
	Pattern *regexp.Regexp
}

func (s FilenameToken) Resolve(fileName string, _ api.Group) (Stamp, error) {
	t, err := ParseFilenameTime(fileName, s.Pattern)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{
		At:      t,
		Columns: []Column{{Name: "time_utc", Value: t.Format(secondLayout)}},
	}, nil
}

// ParseFilenameTime extracts the first capture group of pattern from name and
// parses it as a UTC timestamp.
func ParseFilenameTime(name string, pattern *regexp.Regexp) (time.Time, error) {
	if pattern == nil {
		pattern = looseToken
	}
	m := pattern.FindStringSubmatch(name)
	if len(m) < 2 {
		return time.Time{}, errors.Wrap(ErrTimestamp, "no timestamp token in file name")
	}
	tok := strings.ToUpper(m[1])
	var layout string
	switch len(tok) {
	case len("20060102T150405"):
		layout = "20060102T150405"
	case len("20060102T1504"):
		layout = "20060102T1504"
	default:
		return time.Time{}, errors.Wrapf(ErrTimestamp, "token %q is neither hhmm nor hhmmss", tok)
	}
	t, err := time.Parse(layout, tok)
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrTimestamp, "token %q: %v", tok, err)
	}
	return t.UTC(), nil
}
