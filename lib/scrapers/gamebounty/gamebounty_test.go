package gamebounty

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/telemetry"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const homepageTemplate = `
<html><body>
	<div id="__next">storefront</div>
	<script id="__NEXT_DATA__" type="application/json">%s</script>
</body></html>`

func homepagePayload(t *testing.T) string {
	payload, err := json.Marshal(map[string]any{
		"buildId": "abc123",
		"props": map[string]any{
			"pageProps": map[string]any{
				"initialGames": []map[string]any{
					{
						"Title":           "Foo Bar",
						"Slug":            "foo-bar",
						"Banner":          "http://x/img.png",
						"version":         "1.2",
						"MiniDescription": "a short pitch",
					},
					{
						"Title":  "Unrelated Game",
						"Slug":   "unrelated-game",
						"Banner": "http://x/other.png",
					},
				},
			},
		},
	})
	require.NoError(t, err)
	return string(payload)
}

type bountyFixture struct {
	server        *httptest.Server
	client        *Client
	homepageCalls atomic.Int64

	detailBody string
}

func newFixture(t *testing.T, cache *badger.DB) *bountyFixture {
	f := &bountyFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		f.homepageCalls.Add(1)
		fmt.Fprintf(w, homepageTemplate, homepagePayload(t))
	})
	mux.HandleFunc("/_next/data/abc123/default/download/foo-bar.json", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "foo-bar", r.URL.Query().Get("slug"))
		fmt.Fprint(w, f.detailBody)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client, err := NewClient(ClientOptions{BaseUrl: f.server.URL, Cache: cache})
	require.NoError(t, err)
	f.client = client
	return f
}

func TestSearch(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/gamebounty")
	defer cleanup()

	f := newFixture(t, nil)

	stubs, err := f.client.Search(context.Background(), "foo")
	require.NoError(t, err)
	require.Len(t, stubs, 1)
	require.Empty(t, cmp.Diff(catalog.Stub{
		Title:      "Foo Bar",
		Source:     catalog.SourceGameBounty,
		Href:       f.server.URL + "/download/foo-bar",
		Slug:       "foo-bar",
		BuildId:    "abc123",
		CoverImage: "http://x/img.png",
		Version:    "1.2",
		Overview:   "a short pitch",
	}, stubs[0]))

	require.Equal(
		t,
		"/_next/data/abc123/default/download/foo-bar.json?slug=foo-bar",
		DetailEndpoint(stubs[0].BuildId, stubs[0].Slug),
	)

	again, err := f.client.Search(context.Background(), "foo")
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(stubs, again))
}

func TestSearchMissingHydration(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no hydration here</body></html>")
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "foo")
	require.Error(t, err)
}

func TestSearchHomepageCache(t *testing.T) {
	cache, err := badger.Open(badger.DefaultOptions("").WithInMemory(true))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	f := newFixture(t, cache)

	_, err = f.client.Search(context.Background(), "foo")
	require.NoError(t, err)
	_, err = f.client.Search(context.Background(), "bar")
	require.NoError(t, err)

	require.Equal(t, int64(1), f.homepageCalls.Load())
}

func detailStub(f *bountyFixture) catalog.Stub {
	return catalog.Stub{
		Title:      "Foo Bar",
		Source:     catalog.SourceGameBounty,
		Href:       f.server.URL + "/download/foo-bar",
		Slug:       "foo-bar",
		BuildId:    "abc123",
		CoverImage: "http://x/img.png",
		Version:    "1.2",
	}
}

func TestFetchDetail(t *testing.T) {
	f := newFixture(t, nil)
	f.detailBody = `{
		"pageProps": {
			"post": {
				"minidescription": "a short pitch",
				"developer": "Foo Studio",
				"publisher": "Bar Publishing",
				"created_at": "2024-03-12",
				"updated_at": "2024-05-01",
				"genres": ["Adventure", "Casual"],
				"steam_shop": "https://store.steampowered.com/app/123",
				"system_requirements": "{\"minimum\":\"<p><strong>OS:</strong> Windows 10</p>\",\"recommended\":\"<p><strong>OS:</strong> Windows 11</p>\"}"
			},
			"customContainerInfo": {
				"mirrors": [
					{"name": "GoFile", "links": [{"url": "https://gofile.io/d/x", "status": "online"}]},
					{"name": "Pixeldrain", "links": [{"url": "https://pixeldrain.com/u/y", "status": "unknown"}]}
				]
			}
		}
	}`

	record, err := f.client.FetchDetail(context.Background(), detailStub(f))
	require.NoError(t, err)

	require.Equal(t, "Foo Bar", record.Title)
	require.Equal(t, f.server.URL+"/download/foo-bar", record.Url)
	require.Equal(t, "http://x/img.png", record.Image)

	require.NotNil(t, record.Metadata.Bounty)
	require.Equal(t, "Foo Studio", record.Metadata.Bounty.Developer)
	require.Equal(t, []string{"Adventure", "Casual"}, record.Metadata.Bounty.Genres)
	require.Equal(t, "1.2", record.Metadata.Bounty.Version)

	require.Equal(t, map[string]string{
		"minimum":     "OS: Windows 10",
		"recommended": "OS: Windows 11",
	}, record.SystemRequirements.Tiers)

	require.Equal(t, []catalog.DownloadLink{
		{Host: "GoFile", Url: "https://gofile.io/d/x", Resolved: true, Status: "online"},
		{Host: "Pixeldrain", Url: "https://pixeldrain.com/u/y", Resolved: true, Status: "unknown"},
	}, record.Downloads)
}

func TestFetchDetailAlternativeKeys(t *testing.T) {
	f := newFixture(t, nil)
	// the older schema: serverPostData + containerInfo, genres as a
	// comma-separated string, links inside the html description
	f.detailBody = `{
		"pageProps": {
			"serverPostData": {
				"developer": "Foo Studio",
				"genres": "Adventure, Casual",
				"description": "<p><a href='https://store.steampowered.com/app/123'>Steam</a><a href='https://gofile.io/d/z'>Mirror</a></p>"
			},
			"containerInfo": {"mirrors": []}
		}
	}`

	record, err := f.client.FetchDetail(context.Background(), detailStub(f))
	require.NoError(t, err)

	require.Equal(t, []string{"Adventure", "Casual"}, record.Metadata.Bounty.Genres)
	// storefront links are excluded from the description fallback
	require.Equal(t, []catalog.DownloadLink{
		{Host: "External", Url: "https://gofile.io/d/z", Resolved: true},
	}, record.Downloads)
}

func TestFetchDetailUnparsableRequirements(t *testing.T) {
	f := newFixture(t, nil)
	f.detailBody = `{
		"pageProps": {
			"post": {"system_requirements": "not json at all"}
		}
	}`

	record, err := f.client.FetchDetail(context.Background(), detailStub(f))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"raw": "not json at all"}, record.SystemRequirements.Tiers)
}

func TestFetchDetailMissingPost(t *testing.T) {
	f := newFixture(t, nil)
	f.detailBody = `{"pageProps": {}}`

	_, err := f.client.FetchDetail(context.Background(), detailStub(f))
	require.Error(t, err)
}
