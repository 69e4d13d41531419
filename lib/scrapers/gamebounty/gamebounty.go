package gamebounty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/htmlutil"
	"gamedex-backend/lib/telemetry"
	"gamedex-backend/lib/textutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/dgraph-io/badger/v4"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/gamebounty")

const DefaultBaseUrl = "https://gamebounty.world"

type Client struct {
	http    *resty.Client
	baseUrl string
	cache   pageCache
}

type ClientOptions struct {
	// overrides the live site, used by tests
	BaseUrl string
	// optional homepage cache, nil disables caching so the engine
	// stays stateless between calls
	Cache *badger.DB
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	parsedBase, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	client.SetHeader("referer", DefaultBaseUrl+"/")
	client.SetHeader("x-requested-with", "XMLHttpRequest")
	client.SetTimeout(time.Second * 30)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Millisecond * 500)
	client.SetRetryMaxWaitTime(time.Second * 3)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		return err != nil || res.StatusCode() >= 500
	})

	telemetry.InstrumentResty(client, "scrapers/gamebounty/http")
	instrumentClient(client)

	return &Client{
		http:    client,
		baseUrl: baseUrl,
		cache:   pageCache{db: opts.Cache, baseUrl: parsedBase},
	}, nil
}

// hydratedGame mirrors one entry of the homepage hydration payload's
// all-games array.
type hydratedGame struct {
	Title           string `json:"Title"`
	Slug            string `json:"Slug"`
	Banner          string `json:"Banner"`
	Version         string `json:"version"`
	MiniDescription string `json:"MiniDescription"`
}

type hydrationData struct {
	BuildId string `json:"buildId"`
	Props   struct {
		PageProps struct {
			InitialGames []hydratedGame `json:"initialGames"`
		} `json:"pageProps"`
	} `json:"props"`
}

// Search mines the homepage's framework hydration payload instead of
// executing the framework: it carries the deployment's buildId and the
// full games array, so matching happens locally.
func (c *Client) Search(ctx context.Context, query string) ([]catalog.Stub, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()

	body, err := c.homepage(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch homepage")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	payload := doc.Find("script#__NEXT_DATA__").First().Text()
	if payload == "" {
		err = fmt.Errorf("homepage has no hydration payload")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing __NEXT_DATA__")
		return nil, err
	}

	var data hydrationData
	err = json.Unmarshal([]byte(payload), &data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal hydration payload")
		return nil, err
	}
	if data.BuildId == "" {
		err = fmt.Errorf("hydration payload has no buildId")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing buildId")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("build_id", data.BuildId),
		attribute.Int("games", len(data.Props.PageProps.InitialGames)),
	)

	stubs := []catalog.Stub{}
	for _, game := range data.Props.PageProps.InitialGames {
		if game.Slug == "" || !textutil.ContainsFold(game.Title, query) {
			continue
		}
		stubs = append(stubs, catalog.Stub{
			Title:      game.Title,
			Source:     catalog.SourceGameBounty,
			Href:       fmt.Sprintf("%s/download/%s", c.baseUrl, game.Slug),
			Slug:       game.Slug,
			BuildId:    data.BuildId,
			CoverImage: game.Banner,
			Version:    game.Version,
			Overview:   textutil.CollapseWhitespace(game.MiniDescription),
		})
	}

	return stubs, nil
}

func (c *Client) homepage(ctx context.Context) ([]byte, error) {
	body, err := c.cache.get(ctx, "/")
	if err == nil {
		return body, nil
	}

	res, err := c.http.R().
		SetContext(ctx).
		Get("/")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("homepage returned status %d", res.StatusCode())
	}

	c.cache.set(ctx, "/", res.Body())
	return res.Body(), nil
}

// DetailEndpoint builds the build-scoped path of the internal json api
// serving a game's detail document.
func DetailEndpoint(buildId, slug string) string {
	return fmt.Sprintf("/_next/data/%s/default/download/%s.json?slug=%s", buildId, slug, slug)
}

type bountyPost struct {
	MiniDescription    string          `json:"minidescription"`
	Developer          string          `json:"developer"`
	Publisher          string          `json:"publisher"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
	Genres             json.RawMessage `json:"genres"`
	SteamShop          string          `json:"steam_shop"`
	SystemRequirements string          `json:"system_requirements"`
	Description        string          `json:"description"`
}

type mirrorContainer struct {
	Mirrors []struct {
		Name  string `json:"name"`
		Links []struct {
			Url    string `json:"url"`
			Status string `json:"status"`
		} `json:"links"`
	} `json:"mirrors"`
}

type detailDocument struct {
	PageProps struct {
		// the schema has flip-flopped between these key pairs over
		// time, both must be checked
		Post                *bountyPost      `json:"post"`
		ServerPostData      *bountyPost      `json:"serverPostData"`
		CustomContainerInfo *mirrorContainer `json:"customContainerInfo"`
		ContainerInfo       *mirrorContainer `json:"containerInfo"`
	} `json:"pageProps"`
}

func (c *Client) FetchDetail(ctx context.Context, stub catalog.Stub) (catalog.Record, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDetail")
	defer span.End()
	span.SetAttributes(attribute.String("slug", stub.Slug))

	res, err := c.http.R().
		SetContext(ctx).
		Get(DetailEndpoint(stub.BuildId, stub.Slug))
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return catalog.Record{}, err
	}
	if res.IsError() {
		err = fmt.Errorf("detail api returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return catalog.Record{}, err
	}

	var doc detailDocument
	err = json.Unmarshal(res.Body(), &doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal detail document")
		return catalog.Record{}, err
	}

	post := doc.PageProps.Post
	if post == nil {
		post = doc.PageProps.ServerPostData
	}
	if post == nil {
		err = fmt.Errorf("detail document carries no post object")
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing post")
		return catalog.Record{}, err
	}
	container := doc.PageProps.CustomContainerInfo
	if container == nil {
		container = doc.PageProps.ContainerInfo
	}

	record := catalog.FallbackRecord(stub)
	record.Metadata.Bounty = &catalog.BountyMetadata{
		Description: post.MiniDescription,
		Developer:   post.Developer,
		Publisher:   post.Publisher,
		ReleaseDate: post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
		Genres:      normalizeGenres(post.Genres),
		Version:     stub.Version,
		SteamUrl:    post.SteamShop,
	}
	record.SystemRequirements = systemRequirements(post.SystemRequirements)
	record.Downloads = downloads(container, post.Description)

	return record, nil
}

// normalizeGenres accepts the two shapes the api has shipped: a proper
// list, or a single comma-separated string.
func normalizeGenres(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil || joined == "" {
		return nil
	}
	genres := []string{}
	for _, g := range strings.Split(joined, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// the requirements arrive as a json-encoded string whose tier values
// contain raw markup
func systemRequirements(raw string) catalog.SystemRequirements {
	if raw == "" {
		return catalog.SystemRequirements{}
	}

	var parsed map[string]string
	err := json.Unmarshal([]byte(raw), &parsed)
	if err != nil {
		return catalog.SystemRequirements{Tiers: map[string]string{"raw": raw}}
	}

	tiers := map[string]string{}
	for tier, markup := range parsed {
		tiers[tier] = htmlutil.StripMarkup(markup)
	}
	return catalog.SystemRequirements{Tiers: tiers}
}

func downloads(container *mirrorContainer, descriptionHtml string) []catalog.DownloadLink {
	links := []catalog.DownloadLink{}
	if container != nil {
		for _, mirror := range container.Mirrors {
			host := mirror.Name
			if host == "" {
				host = "Unknown"
			}
			for _, link := range mirror.Links {
				if link.Url == "" {
					continue
				}
				links = append(links, catalog.DownloadLink{
					Host:     host,
					Url:      link.Url,
					Resolved: true,
					Status:   link.Status,
				})
			}
		}
	}
	if len(links) > 0 {
		return links
	}

	// older posts keep their links inside the html description instead
	// of the mirrors array; storefront links are not downloads
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(descriptionHtml))
	if err != nil {
		return links
	}
	for _, anchor := range htmlutil.GetAnchors(doc.Find("a[href]")) {
		if anchor.Href == "" || strings.Contains(anchor.Href, "steam") {
			continue
		}
		links = append(links, catalog.DownloadLink{
			Host:     "External",
			Url:      anchor.Href,
			Resolved: true,
		})
	}
	return links
}
