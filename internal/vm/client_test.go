package vm

import (
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/tempo/internal/tempo"
)

type request struct {
	path  string
	query string
	body  string
}

func server(t *testing.T, status int) (*httptest.Server, func() []request) {
	t.Helper()
	var mu sync.Mutex
	var reqs []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, request{path: r.URL.Path, query: r.URL.Query().Get("format") + r.URL.Query().Get("precision"), body: string(b)})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), reqs...)
	}
}

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(file string, lat float64, cloud float64) tempo.Record {
	return tempo.Record{
		At:         time.UnixMilli(1748773800000).UTC(),
		Latitude:   lat,
		Longitude:  -74.00001,
		Main:       tempo.Value{Name: "vertical_column_troposphere", V: 3e15},
		Aux:        []tempo.Value{{Name: "cloud_fraction", V: cloud}},
		SourceFile: file,
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(logger(), "http://localhost:8428/write", 1, "tempo")
	assert.NoError(t, err)
	_, err = NewClient(logger(), "http://localhost:8428/write", 1, "tempo_no2")
	assert.Error(t, err)
	_, err = NewClient(logger(), "http://localhost:8428/api/v1/import", 1, "tempo")
	assert.Error(t, err)
	_, err = NewClient(logger(), "://bad", 1, "tempo")
	assert.Error(t, err)
}

func TestInsertInfluxDB(t *testing.T) {
	srv, reqs := server(t, http.StatusNoContent)
	c, err := NewClient(logger(), srv.URL+"/write", 2, "tempo")
	require.NoError(t, err)

	require.NoError(t, c.Insert([]tempo.Record{record("a.nc", 40.5, 0.25), record("a.nc", 40.75, math.NaN())}))
	require.NoError(t, c.Insert(nil))

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "/write", got[0].path)
	assert.Equal(t, "ms", got[0].query)
	assert.Equal(t,
		"tempo,la=40.5000,lo=-74.0000 vertical_column_troposphere=3e+15,cloud_fraction=0.25 1748773800000\n"+
			"tempo,la=40.7500,lo=-74.0000 vertical_column_troposphere=3e+15 1748773800000\n",
		got[0].body)
}

func TestInsertCSV(t *testing.T) {
	srv, reqs := server(t, http.StatusOK)
	c, err := NewClient(logger(), srv.URL+"/api/v1/import/csv", 2, "tempo")
	require.NoError(t, err)

	require.NoError(t, c.Insert([]tempo.Record{record("a.nc", 40.5, math.NaN())}))
	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "1:time:unix_ms,2:label:la,3:label:lo,4:label:file,"+
		"5:metric:tempo_vertical_column_troposphere,6:metric:tempo_cloud_fraction", got[0].query)
	assert.Equal(t, "1748773800000,40.5000,-74.0000,a.nc,3e+15,\n", got[0].body)
}

func TestInsertTable(t *testing.T) {
	srv, reqs := server(t, http.StatusNoContent)
	c, err := NewClient(logger(), srv.URL+"/api/v2/write", 2, "tempo")
	require.NoError(t, err)

	var tbl tempo.Table
	tbl.Append([]tempo.Record{record("a.nc", 40.5, 0.1), record("a.nc", 40.75, 0.2), record("a.nc", 41, 0.3)})
	tbl.Append(nil)
	tbl.Append([]tempo.Record{record("b.nc", 40.5, 0.4)})

	n, err := c.InsertTable(&tbl, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Requests may arrive in any order.
	bodies := map[string]int{}
	for _, r := range reqs() {
		bodies[r.body] = strings.Count(r.body, "\n")
	}
	require.Len(t, bodies, 3)
	var sizes []int
	for body, lines := range bodies {
		sizes = append(sizes, lines)
		if strings.Contains(body, "la=41.0000") {
			assert.Equal(t, 1, lines, "the third a.nc record is sent on its own")
		}
		if strings.Contains(body, "cloud_fraction=0.4") {
			assert.Equal(t, 1, lines, "b.nc is never batched with a.nc")
		}
	}
	sort.Ints(sizes)
	assert.Equal(t, []int{1, 1, 2}, sizes)
}

func TestInsertTableConcurrent(t *testing.T) {
	var inFlight, peak int32
	gate := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n >= 2 {
			once.Do(func() { close(gate) })
		}
		// A sequential client would never open the gate.
		select {
		case <-gate:
		case <-time.After(5 * time.Second):
		}
		atomic.AddInt32(&inFlight, -1)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(logger(), srv.URL+"/write", 2, "tempo")
	require.NoError(t, err)

	var tbl tempo.Table
	for _, f := range []string{"a.nc", "b.nc", "c.nc", "d.nc"} {
		tbl.Append([]tempo.Record{record(f, 40.5, 0.1)})
	}
	n, err := c.InsertTable(&tbl, 500)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestInsertTableFailure(t *testing.T) {
	srv, _ := server(t, http.StatusBadRequest)
	c, err := NewClient(logger(), srv.URL+"/influx/write", 1, "tempo")
	require.NoError(t, err)

	var tbl tempo.Table
	tbl.Append([]tempo.Record{record("a.nc", 40.5, 0.1)})
	n, err := c.InsertTable(&tbl, 0)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}
