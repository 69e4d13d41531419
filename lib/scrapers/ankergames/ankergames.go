package ankergames

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"regexp"
	"strings"
	"time"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/htmlutil"
	"gamedex-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/ankergames")

const DefaultBaseUrl = "https://ankergames.net"

type Client struct {
	http    *resty.Client
	baseUrl string
}

type ClientOptions struct {
	// overrides the live site, used by tests
	BaseUrl string
}

func NewClient(opts ClientOptions) (*Client, error) {
	baseUrl := opts.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	client.SetHeader("referer", DefaultBaseUrl+"/")
	client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	client.SetTimeout(time.Second * 30)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Millisecond * 500)
	client.SetRetryMaxWaitTime(time.Second * 3)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		return err != nil || res.StatusCode() >= 500
	})

	telemetry.InstrumentResty(client, "scrapers/ankergames/http")
	instrumentClient(client)

	return &Client{http: client, baseUrl: baseUrl}, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]catalog.Stub, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get("/search/" + query)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	if res.IsError() {
		err = fmt.Errorf("search returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	stubs := []catalog.Stub{}
	// the :not filter skips the skeleton placeholder cards
	doc.Find(".relative.group.cursor-pointer:not(.animate-pulse)").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find("a[href]").First().Attr("href")
		title := htmlutil.CleanText(card.Find("h3").First().Text())
		if !ok || href == "" || title == "" {
			return
		}
		stubs = append(stubs, catalog.Stub{
			Title:  title,
			Href:   href,
			Source: catalog.SourceAnkerGames,
		})
	})

	return stubs, nil
}

func (c *Client) FetchDetail(ctx context.Context, stub catalog.Stub) (catalog.Record, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDetail")
	defer span.End()
	span.SetAttributes(attribute.String("url", stub.Href))

	res, err := c.http.R().
		SetContext(ctx).
		Get(stub.Href)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch")
		return catalog.Record{}, err
	}
	if res.IsError() {
		err = fmt.Errorf("detail page returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return catalog.Record{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return catalog.Record{}, err
	}

	record := catalog.FallbackRecord(stub)
	record.Image = htmlutil.AbsoluteUrl(
		doc.Find(`.max-w-\[16rem\] picture img`).First().AttrOr("src", ""),
	)
	record.Metadata.Anker = metadata(doc)
	record.SystemRequirements = systemRequirements(doc)
	record.Downloads = c.downloads(ctx, doc)

	return record, nil
}

const maxGenres = 3

func metadata(doc *goquery.Document) *catalog.AnkerMetadata {
	meta := &catalog.AnkerMetadata{
		Size:        catalog.PlaceholderValue,
		ReleaseDate: catalog.PlaceholderValue,
		Publisher:   catalog.PlaceholderValue,
	}

	// the download size only appears in the header stat strip
	doc.Find(".flex.items-center.text-xs span").EachWithBreak(func(_ int, stat *goquery.Selection) bool {
		txt := stat.Text()
		if strings.Contains(txt, "GB") || strings.Contains(txt, "MB") {
			meta.Size = strings.TrimSpace(txt)
			return false
		}
		return true
	})

	doc.Find(`.grid.sm\:flex.gap-x-3`).Each(func(_ int, grid *goquery.Selection) {
		label := strings.TrimSpace(grid.Find(`div.min-w-\[150px\]`).First().Text())
		if label == "" {
			return
		}
		value := grid.Find("div.font-medium").First()
		switch {
		case strings.Contains(label, "Genre"):
			value.Find("a").EachWithBreak(func(i int, a *goquery.Selection) bool {
				if i >= maxGenres {
					return false
				}
				meta.Genres = append(meta.Genres, htmlutil.CleanText(a.Text()))
				return true
			})
		case strings.Contains(label, "Released"):
			meta.ReleaseDate = htmlutil.CleanText(value.Text())
		case strings.Contains(label, "Publisher"):
			meta.Publisher = htmlutil.CleanText(value.Text())
		}
	})

	return meta
}

func systemRequirements(doc *goquery.Document) catalog.SystemRequirements {
	reqs := catalog.SystemRequirements{}

	var header *goquery.Selection
	doc.Find("h2").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		text := strings.ToLower(h.Text())
		if strings.Contains(text, "system") && strings.Contains(text, "requirements") {
			header = h
			return false
		}
		return true
	})
	if header == nil {
		return reqs
	}

	card := header.ParentsFiltered("div.shadow-xl").First()
	card.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		key := strings.TrimSpace(strings.ReplaceAll(htmlutil.CleanText(dt.Text()), "*", ""))
		dd := dt.NextFiltered("dd")
		if key == "" || dd.Length() == 0 {
			return
		}
		reqs.Lines = append(reqs.Lines, fmt.Sprintf("%s: %s", key, htmlutil.CleanText(dd.Text())))
	})

	return reqs
}

var downloadIdRegex = regexp.MustCompile(`generateDownloadUrl\((\d+)\)`)

// downloads walks the download modal, building the negotiation endpoint
// for every listed host. Only the "Direct" host is worth the multi-hop
// resolution, the rest stay as browser-followable endpoint links.
func (c *Client) downloads(ctx context.Context, doc *goquery.Document) []catalog.DownloadLink {
	downloads := []catalog.DownloadLink{}
	csrfToken := doc.Find(`meta[name="csrf-token"]`).First().AttrOr("content", "")

	doc.Find("#download-modal li").Each(func(_ int, item *goquery.Selection) {
		host := htmlutil.CleanText(item.Find("div").First().Text())
		if host == "" {
			host = "Direct"
		}

		id := downloadId(item)
		if id == "" {
			return
		}
		endpoint := fmt.Sprintf("%s/generate-download-url/%s", c.baseUrl, id)

		link := catalog.DownloadLink{Host: host, Url: endpoint}
		// resolution fails closed without a csrf token
		if strings.Contains(host, "Direct") && csrfToken != "" {
			finalUrl, err := c.resolveDownload(ctx, endpoint, csrfToken)
			if err == nil && finalUrl != "" {
				link.Url = finalUrl
				link.Resolved = true
			}
		}
		downloads = append(downloads, link)
	})

	return downloads
}

// the modal buttons carry their numeric download id inside an alpine
// click handler attribute
func downloadId(item *goquery.Selection) string {
	for _, a := range item.Find("a").Nodes {
		for _, attr := range a.Attr {
			if attr.Key != "@click.prevent" {
				continue
			}
			groups := downloadIdRegex.FindStringSubmatch(attr.Val)
			if len(groups) == 2 {
				return groups[1]
			}
		}
	}
	return ""
}
