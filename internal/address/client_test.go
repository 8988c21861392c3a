package address

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.Client())
}

func TestLookupMapsFields(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cep":"01001-000","logradouro":"Praça da Sé","bairro":"Sé","localidade":"São Paulo","uf":"SP"}`))
	})

	addr, err := c.Lookup(context.Background(), "01001-000")
	require.NoError(t, err)
	assert.Equal(t, "/ws/01001000/json/", gotPath)
	assert.Equal(t, Address{
		Zip:          "01001000",
		State:        "SP",
		City:         "São Paulo",
		Street:       "Praça da Sé",
		Neighborhood: "Sé",
	}, addr)
}

func TestLookupNotFound(t *testing.T) {
	for _, body := range []string{`{"erro": true}`, `{"erro": "true"}`} {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		addr, err := c.Lookup(context.Background(), "99999999")
		assert.ErrorIs(t, err, ErrZipNotFound)
		assert.Equal(t, Address{}, addr)
	}
}

func TestLookupInvalidZipNeverCallsOut(t *testing.T) {
	called := false
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	for _, zip := range []string{"", "1234", "123456789", "abcdefgh"} {
		_, err := c.Lookup(context.Background(), zip)
		assert.ErrorIs(t, err, ErrInvalidZip, zip)
	}
	assert.False(t, called)
}

func TestLookupUpstreamFailures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		addr, err := c.Lookup(context.Background(), "01001000")
		assert.ErrorIs(t, err, ErrLookupUnavailable)
		assert.Equal(t, Address{}, addr)
	})

	t.Run("garbage body", func(t *testing.T) {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		})
		_, err := c.Lookup(context.Background(), "01001000")
		assert.ErrorIs(t, err, ErrLookupUnavailable)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(srv.Close)

		c := NewClient(srv.URL, &http.Client{Timeout: 50 * time.Millisecond})
		_, err := c.Lookup(context.Background(), "01001000")
		assert.ErrorIs(t, err, ErrLookupUnavailable)
	})
}

func TestNormalizeZip(t *testing.T) {
	assert.Equal(t, "01001000", NormalizeZip(" 01.001-000 "))
	assert.Equal(t, "", NormalizeZip("cep"))
}
