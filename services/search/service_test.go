package search

import (
	"context"
	"fmt"
	"testing"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

// fakeAdapter scripts one source's behavior per test case.
type fakeAdapter struct {
	source      catalog.Source
	stubs       []catalog.Stub
	searchErr   error
	detailErr   error
	searchPanic bool
	detailPanic bool
}

func (f fakeAdapter) Search(ctx context.Context, query string) ([]catalog.Stub, error) {
	if f.searchPanic {
		panic("scripted search panic")
	}
	return f.stubs, f.searchErr
}

func (f fakeAdapter) FetchDetail(ctx context.Context, stub catalog.Stub) (catalog.Record, error) {
	if f.detailPanic {
		panic("scripted detail panic")
	}
	if f.detailErr != nil {
		return catalog.Record{}, f.detailErr
	}
	record := catalog.FallbackRecord(stub)
	record.Url = "detail:" + stub.Href
	return record, nil
}

func stubsFor(source catalog.Source, titles ...string) []catalog.Stub {
	stubs := []catalog.Stub{}
	for _, title := range titles {
		stubs = append(stubs, catalog.Stub{
			Title:  title,
			Source: source,
			Href:   "https://example.com/" + title,
		})
	}
	return stubs
}

func newFakeService(steam, anker, bounty Adapter) Service {
	return Service{pipelines: []pipeline{
		{source: catalog.SourceSteamUnderground, adapter: steam},
		{source: catalog.SourceAnkerGames, adapter: anker},
		{source: catalog.SourceGameBounty, adapter: bounty},
	}}
}

func TestSearchMergesInSourceOrder(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:services/search")
	defer cleanup()

	service := newFakeService(
		fakeAdapter{source: catalog.SourceSteamUnderground, stubs: stubsFor(catalog.SourceSteamUnderground, "s1", "s2")},
		fakeAdapter{source: catalog.SourceAnkerGames, stubs: stubsFor(catalog.SourceAnkerGames, "a1")},
		fakeAdapter{source: catalog.SourceGameBounty, stubs: stubsFor(catalog.SourceGameBounty, "b1", "b2")},
	)

	records := service.Search(context.Background(), "query")
	require.Len(t, records, 5)

	titles := []string{}
	for _, r := range records {
		require.Contains(t, []catalog.Source{
			catalog.SourceSteamUnderground,
			catalog.SourceAnkerGames,
			catalog.SourceGameBounty,
		}, r.Source)
		titles = append(titles, r.Title)
	}
	// source-major order, stub order within a source
	require.Equal(t, []string{"s1", "s2", "a1", "b1", "b2"}, titles)

	// an unchanged setup yields the same order again
	again := service.Search(context.Background(), "query")
	require.Equal(t, records, again)
}

func TestSearchNeverReturnsNil(t *testing.T) {
	service := newFakeService(fakeAdapter{}, fakeAdapter{}, fakeAdapter{})

	records := service.Search(context.Background(), "")
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestSearchFailedSourceDoesNotPoisonOthers(t *testing.T) {
	service := newFakeService(
		fakeAdapter{source: catalog.SourceSteamUnderground, searchErr: fmt.Errorf("upstream 500")},
		fakeAdapter{source: catalog.SourceAnkerGames, stubs: stubsFor(catalog.SourceAnkerGames, "a1")},
		fakeAdapter{source: catalog.SourceGameBounty, stubs: stubsFor(catalog.SourceGameBounty, "b1")},
	)

	records := service.Search(context.Background(), "query")
	require.Len(t, records, 2)
	for _, r := range records {
		require.NotEqual(t, catalog.SourceSteamUnderground, r.Source)
	}
}

func TestSearchDetailFailureDegradesToStub(t *testing.T) {
	service := newFakeService(
		fakeAdapter{
			source:    catalog.SourceSteamUnderground,
			stubs:     stubsFor(catalog.SourceSteamUnderground, "s1"),
			detailErr: fmt.Errorf("detail page unreachable"),
		},
		fakeAdapter{},
		fakeAdapter{},
	)

	records := service.Search(context.Background(), "query")
	require.Len(t, records, 1)
	require.Equal(t, "s1", records[0].Title)
	require.NotNil(t, records[0].Downloads)
	require.Empty(t, records[0].Downloads)
	require.NotNil(t, records[0].Metadata.Steam)
}

func TestSearchPanickingSourceIsContained(t *testing.T) {
	service := newFakeService(
		fakeAdapter{source: catalog.SourceSteamUnderground, searchPanic: true},
		fakeAdapter{source: catalog.SourceAnkerGames, stubs: stubsFor(catalog.SourceAnkerGames, "a1")},
		fakeAdapter{},
	)

	records := service.Search(context.Background(), "query")
	require.Len(t, records, 1)
	require.Equal(t, catalog.SourceAnkerGames, records[0].Source)
}

func TestSearchPanickingDetailDegradesToStub(t *testing.T) {
	service := newFakeService(
		fakeAdapter{
			source:      catalog.SourceSteamUnderground,
			stubs:       stubsFor(catalog.SourceSteamUnderground, "s1", "s2"),
			detailPanic: true,
		},
		fakeAdapter{},
		fakeAdapter{},
	)

	records := service.Search(context.Background(), "query")
	require.Len(t, records, 2)
	require.Equal(t, "s1", records[0].Title)
	require.Equal(t, "s2", records[1].Title)
	for _, r := range records {
		require.Empty(t, r.Downloads)
	}
}

func TestNewFillsLiveClients(t *testing.T) {
	service, err := New(Options{})
	require.NoError(t, err)
	require.Len(t, service.pipelines, 3)
	require.Equal(t, catalog.SourceSteamUnderground, service.pipelines[0].source)
	require.Equal(t, catalog.SourceAnkerGames, service.pipelines[1].source)
	require.Equal(t, catalog.SourceGameBounty, service.pipelines[2].source)
}
