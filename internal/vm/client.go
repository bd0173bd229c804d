package vm

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/tempo/internal/tempo"
)

// Client is a Victoria Metrics client capable of inserting TEMPO records via
// various protocols.
type Client struct {
	logger       *slog.Logger
	httpCli      *http.Client
	insertURL    *url.URL
	metricPrefix string
	apiParams    apiParamsFunc
	recToText    recToTextFunc
	workers      int
}

const metricPrefixRE = "^[a-zA-Z0-9]+$"

// NewClient creates a new VM client.
func NewClient(logger *slog.Logger, insertURL string, maxConns int, metricPrefix string) (*Client, error) {
	u, err := url.Parse(insertURL)
	if err != nil {
		return nil, err
	}

	matches, err := regexp.MatchString(metricPrefixRE, metricPrefix)
	if err != nil {
		return nil, err
	}
	if !matches {
		return nil, fmt.Errorf("metric prefix %q does not match %q regular expression", metricPrefix, metricPrefixRE)
	}

	apiParams := apiParamsFuncs[u.Path]
	recToText := recToTextFuncs[u.Path]
	if apiParams == nil || recToText == nil {
		return nil, fmt.Errorf("inserting into %q is not supported", insertURL)
	}

	workers := maxConns
	if workers < 1 {
		workers = 1
	}

	return &Client{
		logger: logger,
		httpCli: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        maxConns,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: maxConns,
				MaxConnsPerHost:     maxConns,
			},
		},
		insertURL:    u,
		metricPrefix: metricPrefix,
		apiParams:    apiParams,
		recToText:    recToText,
		workers:      workers,
	}, nil
}

// Insert inserts records into Victoria Metrics. All records must come from
// the same granule, i.e. share their metric columns.
func (c *Client) Insert(recs []tempo.Record) error {
	if len(recs) == 0 {
		return nil
	}
	u := *c.insertURL
	q := u.Query()
	for name, value := range c.apiParams(c.metricPrefix, &recs[0]) {
		q.Add(name, value)
	}
	u.RawQuery = q.Encode()

	res, err := c.httpCli.Post(u.String(), "text/plain", recsToText(recs, c.metricPrefix, c.recToText))
	if err != nil {
		return errors.Wrap(err, "could not post data")
	}
	defer res.Body.Close()
	if _, err := io.Copy(io.Discard, res.Body); err != nil {
		c.logger.Error("Failed to drain response body", "err", err)
	}
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", res.StatusCode)
	}
	return nil
}

// InsertTable sends the table in chunks of at most batch records, never
// mixing granules within one request. Up to maxConns chunks are in flight
// at once. It stops queueing after the first failed request and returns the
// number of records accepted.
func (c *Client) InsertTable(t *tempo.Table, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	var (
		mu       sync.Mutex
		inserted int
		firstErr error
	)
	failed := func() error {
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}

	batchCh := make(chan []tempo.Record)
	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recs := range batchCh {
				err := c.Insert(recs)
				mu.Lock()
				if err == nil {
					inserted += len(recs)
				} else if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	var pending []tempo.Record
	_ = t.Records(func(r *tempo.Record) error {
		if len(pending) > 0 && (len(pending) == batch || pending[0].SourceFile != r.SourceFile) {
			if err := failed(); err != nil {
				return err
			}
			batchCh <- pending
			pending = nil
		}
		pending = append(pending, *r)
		return nil
	})
	if len(pending) > 0 && failed() == nil {
		batchCh <- pending
	}
	close(batchCh)
	wg.Wait()
	return inserted, firstErr
}

type apiParamsFunc func(string, *tempo.Record) map[string]string

var apiParamsFuncs = map[string]apiParamsFunc{
	"/influx/write":        influxDBAPIParams,
	"/influx/api/v2/write": influxDBAPIParams,
	"/write":               influxDBAPIParams,
	"/api/v2/write":        influxDBAPIParams,
	"/api/v1/import/csv":   csvAPIParams,
}

func influxDBAPIParams(string, *tempo.Record) map[string]string {
	return map[string]string{"precision": "ms"}
}

// csvAPIParams describes the columns written by recToCSV.
func csvAPIParams(metricPrefix string, r *tempo.Record) map[string]string {
	cols := []string{
		"1:time:unix_ms",
		"2:label:la",
		"3:label:lo",
		"4:label:file",
		fmt.Sprintf("5:metric:%s_%s", metricPrefix, r.Main.Name),
	}
	for i, a := range r.Aux {
		cols = append(cols, fmt.Sprintf("%d:metric:%s_%s", 6+i, metricPrefix, a.Name))
	}
	return map[string]string{"format": strings.Join(cols, ",")}
}

type recToTextFunc func(*strings.Builder, *tempo.Record, string)

// recsToText converts multiple records to text.
func recsToText(recs []tempo.Record, metricPrefix string, recToText recToTextFunc) io.Reader {
	var sb strings.Builder
	for i := range recs {
		recToText(&sb, &recs[i], metricPrefix)
		sb.WriteString("\n")
	}
	return strings.NewReader(sb.String())
}

var recToTextFuncs = map[string]recToTextFunc{
	"/influx/write":        recToInfluxDB,
	"/influx/api/v2/write": recToInfluxDB,
	"/write":               recToInfluxDB,
	"/api/v2/write":        recToInfluxDB,
	"/api/v1/import/csv":   recToCSV,
}

// recToInfluxDB converts a record into InfluxDB line protocol v2 and appends
// it to the string builder. Empty auxiliary values are left out.
func recToInfluxDB(sb *strings.Builder, r *tempo.Record, metricPrefix string) {
	fmt.Fprintf(sb, "%s,la=%s,lo=%s %s=%s", metricPrefix,
		coord(r.Latitude), coord(r.Longitude), r.Main.Name, metric(r.Main.V))
	for _, a := range r.Aux {
		if math.IsNaN(a.V) {
			continue
		}
		fmt.Fprintf(sb, ",%s=%s", a.Name, metric(a.V))
	}
	fmt.Fprintf(sb, " %d", r.At.UnixMilli())
}

// recToCSV converts a record into a CSV line and appends it to the string
// builder.
func recToCSV(sb *strings.Builder, r *tempo.Record, _ string) {
	fmt.Fprintf(sb, "%d,%s,%s,%s,%s", r.At.UnixMilli(),
		coord(r.Latitude), coord(r.Longitude), r.SourceFile, metric(r.Main.V))
	for _, a := range r.Aux {
		sb.WriteString(",")
		if !math.IsNaN(a.V) {
			sb.WriteString(metric(a.V))
		}
	}
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func metric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
