// Package search runs the three source adapters' pipelines concurrently
// and joins their outputs into one normalized result list. It is the
// engine's only caller-facing surface.
package search

import (
	"context"
	"log/slog"
	"sync"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/scrapers/ankergames"
	"gamedex-backend/lib/scrapers/gamebounty"
	"gamedex-backend/lib/scrapers/steamunderground"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("services/search")

// Adapter is the two-phase contract every source implements: one round
// trip to list stubs, then one round trip per stub for the full record.
type Adapter interface {
	Search(ctx context.Context, query string) ([]catalog.Stub, error)
	FetchDetail(ctx context.Context, stub catalog.Stub) (catalog.Record, error)
}

type pipeline struct {
	source  catalog.Source
	adapter Adapter
}

type Service struct {
	// fixed source order, it decides result order
	pipelines []pipeline
}

type Options struct {
	// adapter overrides, nil fields get a live-site client
	Steam  Adapter
	Anker  Adapter
	Bounty Adapter

	// optional badger db handed to the gamebounty client's homepage
	// cache, ignored when Bounty is set
	BountyCache *badger.DB
}

func New(opts Options) (Service, error) {
	if opts.Steam == nil {
		client, err := steamunderground.NewClient(steamunderground.ClientOptions{})
		if err != nil {
			return Service{}, err
		}
		opts.Steam = client
	}
	if opts.Anker == nil {
		client, err := ankergames.NewClient(ankergames.ClientOptions{})
		if err != nil {
			return Service{}, err
		}
		opts.Anker = client
	}
	if opts.Bounty == nil {
		client, err := gamebounty.NewClient(gamebounty.ClientOptions{Cache: opts.BountyCache})
		if err != nil {
			return Service{}, err
		}
		opts.Bounty = client
	}

	return Service{
		pipelines: []pipeline{
			{source: catalog.SourceSteamUnderground, adapter: opts.Steam},
			{source: catalog.SourceAnkerGames, adapter: opts.Anker},
			{source: catalog.SourceGameBounty, adapter: opts.Bounty},
		},
	}, nil
}

// Search never fails: a source that errors or panics anywhere in its
// pipeline contributes zero records, the others are unaffected. The
// returned list is source-major in the fixed source order and stub-minor
// within a source. A caller deadline on ctx cancels in-flight requests.
func (s Service) Search(ctx context.Context, query string) []catalog.Record {
	ctx, span := tracer.Start(ctx, "service:Search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	perSource := make([][]catalog.Record, len(s.pipelines))
	wg := sync.WaitGroup{}
	for i, p := range s.pipelines {
		wg.Add(1)
		go func(i int, p pipeline) {
			defer wg.Done()
			// the pipeline boundary is the blast radius of a source
			// misbehaving
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "source pipeline panicked", "source", p.source, "panic", r)
				}
			}()
			perSource[i] = s.runPipeline(ctx, p, query)
		}(i, p)
	}
	wg.Wait()

	results := []catalog.Record{}
	for _, records := range perSource {
		results = append(results, records...)
	}
	span.SetAttributes(attribute.Int("results", len(results)))
	return results
}

func (s Service) runPipeline(ctx context.Context, p pipeline, query string) []catalog.Record {
	stubs, err := p.adapter.Search(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "source search failed", "source", p.source, "err", err)
		return nil
	}
	slog.DebugContext(ctx, "source search finished", "source", p.source, "stubs", len(stubs))
	if len(stubs) == 0 {
		return nil
	}

	// indexed writes keep stub order regardless of completion order.
	// stub counts stay small (well under 30 per query), so all detail
	// fetches go out at once.
	records := make([]catalog.Record, len(stubs))
	wg := sync.WaitGroup{}
	for i, stub := range stubs {
		wg.Add(1)
		go func(i int, stub catalog.Stub) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(ctx, "detail fetch panicked", "source", p.source, "title", stub.Title, "panic", r)
					records[i] = catalog.FallbackRecord(stub)
				}
			}()

			record, err := p.adapter.FetchDetail(ctx, stub)
			if err != nil {
				// degrade to the stub, never drop the item
				slog.WarnContext(ctx, "detail fetch failed", "source", p.source, "title", stub.Title, "err", err)
				records[i] = catalog.FallbackRecord(stub)
				return
			}
			records[i] = record
		}(i, stub)
	}
	wg.Wait()

	return records
}
