package klaviyo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAllFollowsBothCursorEncodings(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page[cursor]") {
		case "":
			// Raw cursor form in the next link.
			fmt.Fprintf(w, `{"data": [{"id": "1"}], "links": {"next": "%s/events?page[cursor]=abc"}}`, srv.URL)
		case "abc":
			// Percent-encoded cursor form.
			fmt.Fprintf(w, `{"data": [{"id": "2"}], "links": {"next": "%s/events?page%%5Bcursor%%5D=def"}}`, srv.URL)
		case "def":
			fmt.Fprint(w, `{"data": [{"id": "3"}], "links": {"next": null}}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("page[cursor]"))
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	records, err := c.FetchAll(context.Background(), "events", map[string]string{"filter": "x"})
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFetchAllStopsOnUnrecognizedCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page[cursor]") != "" {
			t.Error("pagination must not continue past an unrecognized link")
			return
		}
		fmt.Fprint(w, `{"data": [{"id": "1"}], "links": {"next": "https://api.example.com/events?offset=50"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err, "best-effort mode keeps the partial collection")
	assert.Len(t, records, 1)
}

func TestFetchAllStrictModeFailsOnUnrecognizedCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": [{"id": "1"}], "links": {"next": "https://api.example.com/events?offset=50"}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.cfg.StrictPagination = true
	records, err := c.FetchAll(context.Background(), "events", nil)
	assert.ErrorIs(t, err, ErrBadCursor)
	assert.Len(t, records, 1, "records collected up to the failure are returned")
}

func TestFetchAllMissingDataArrayTerminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"links": {"next": null}}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchAllKeepsPartialOnMidPaginationFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page[cursor]") == "" {
			fmt.Fprintf(w, `{"data": [{"id": "1"}], "links": {"next": "%s/events?page[cursor]=p2"}}`, srv.URL)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	records, err := c.FetchAll(context.Background(), "events", nil)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchAllFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	records, err := c.FetchAll(context.Background(), "events", nil)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Empty(t, records)
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name    string
		next    string
		want    string
		wantErr bool
	}{
		{name: "raw", next: "https://a.klaviyo.com/api/events?page[cursor]=abc", want: "abc"},
		{name: "encoded", next: "https://a.klaviyo.com/api/events?page%5Bcursor%5D=def&filter=x", want: "def"},
		{name: "no cursor param", next: "https://a.klaviyo.com/api/events?offset=10", wantErr: true},
		{name: "empty query", next: "https://a.klaviyo.com/api/events", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCursor(tt.next)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
