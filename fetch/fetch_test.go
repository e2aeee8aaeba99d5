package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"synthsite/fetch"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedMatcher(body []byte) (string, bool) {
	if strings.Contains(string(body), "<feed") {
		return "xml", true
	}
	return "", false
}

func server(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestStrategiesPickTheOnlyValidSource(t *testing.T) {
	strategies := map[string]fetch.Strategy{
		"race":       fetch.Race,
		"sequential": fetch.Sequential,
	}

	for name, strategy := range strategies {
		t.Run(name, func(t *testing.T) {
			failing := server(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})
			valid := server(t, func(w http.ResponseWriter, r *http.Request) {
				// arrives late on purpose, the race must still pick it
				time.Sleep(50 * time.Millisecond)
				w.Write([]byte(`<?xml version="1.0"?><feed></feed>`))
			})
			slow := server(t, func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				w.Write([]byte("<feed>too late</feed>"))
			})

			client := fetch.NewClient(300*time.Millisecond, fetch.WithStrategy(strategy))
			result, ok := client.Resolve(context.Background(), []string{failing.URL, valid.URL, slow.URL}, feedMatcher)
			require.True(t, ok)
			assert.Equal(t, valid.URL, result.Source)
			assert.Equal(t, "xml", result.Format)
			assert.Contains(t, string(result.Body), "<feed>")
		})
	}
}

func TestRaceRejectsUnrecognizedContent(t *testing.T) {
	html := server(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>captcha</html>"))
	})

	client := fetch.NewClient(time.Second)
	result, ok := client.Resolve(context.Background(), []string{html.URL, "http://127.0.0.1:1/unreachable"}, feedMatcher)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestRaceWithNoSources(t *testing.T) {
	result, ok := fetch.Race(context.Background(), fetch.NewClient(0), nil, feedMatcher)
	assert.False(t, ok)
	assert.Nil(t, result)
}

func TestTimeoutAbortsRequest(t *testing.T) {
	aborted := make(chan struct{})
	hanging := server(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(aborted)
	})

	client := fetch.NewClient(50 * time.Millisecond)
	_, ok := client.Resolve(context.Background(), []string{hanging.URL}, feedMatcher)
	assert.False(t, ok)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not aborted by the timeout")
	}
}

func TestFetchSetsUserAgent(t *testing.T) {
	var agent string
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		w.Write([]byte("[]"))
	})

	client := fetch.NewClient(time.Second, fetch.WithUserAgent("synthsite-test"))
	body, err := client.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "synthsite-test", agent)
}

func TestFetchRejectsErrorStatus(t *testing.T) {
	srv := server(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := fetch.NewClient(time.Second).Fetch(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestStrategyByName(t *testing.T) {
	assert.NotNil(t, fetch.StrategyByName("sequential"))
	assert.NotNil(t, fetch.StrategyByName("anything"))
}
