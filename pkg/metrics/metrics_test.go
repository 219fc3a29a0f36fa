package metrics

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CollectionsIndexedTotal.WithLabelValues("created").Inc()
	m.DocsIndexedTotal.Add(2)
	m.CollectionTerms.WithLabelValues("books.json").Set(17)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CollectionsIndexedTotal.WithLabelValues("created")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, float64(17), testutil.ToFloat64(m.CollectionTerms.WithLabelValues("books.json")))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SearchQueriesTotal.WithLabelValues("hit").Inc()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `invx_search_queries_total{result_type="hit"} 1`))
}

func TestStartServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).CacheHitsTotal.Inc()

	shutdown, err := StartServer(0, reg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	_, err = StartServer(ln.Addr().(*net.TCPAddr).Port, reg)
	assert.Error(t, err)
}
