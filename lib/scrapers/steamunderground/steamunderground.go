package steamunderground

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"strings"
	"time"

	"gamedex-backend/lib/catalog"
	"gamedex-backend/lib/htmlutil"
	"gamedex-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/steamunderground")

const DefaultBaseUrl = "https://steamunderground.net"

const searchAction = "bk_ajax_search"

type Client struct {
	http *resty.Client
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

	telemetry.InstrumentResty(client, "scrapers/steamunderground/http")
	instrumentClient(client)

	return &Client{http: client}, nil
}

func (c *Client) Search(ctx context.Context, query string) ([]catalog.Stub, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"action": searchAction,
			"s":      query,
		}).
		Post("/wp-admin/admin-ajax.php")
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

	// the search endpoint answers with a json envelope whose `content`
	// field is an html fragment of result cards
	var envelope struct {
		Content string `json:"content"`
	}
	err = json.Unmarshal(res.Body(), &envelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal search envelope")
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(envelope.Content))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html fragment")
		return nil, err
	}

	stubs := []catalog.Stub{}
	doc.Find("li.small-post").Each(func(_ int, item *goquery.Selection) {
		title := item.Find("h4.title a").First()
		href, ok := title.Attr("href")
		if !ok || href == "" {
			return
		}
		stubs = append(stubs, catalog.Stub{
			Title:  htmlutil.CleanText(title.Text()),
			Href:   href,
			Source: catalog.SourceSteamUnderground,
		})
	})

	return stubs, nil
}

func (c *Client) FetchDetail(ctx context.Context, stub catalog.Stub) (catalog.Record, error) {
	ctx, span := tracer.Start(ctx, "client:FetchDetail")
	defer span.End()

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
	record.Image = coverImage(doc)
	record.Metadata.Steam = &catalog.SteamMetadata{
		Version:      labeledValue(doc, ".gameVersionValue"),
		ReleaseGroup: labeledValue(doc, ".releaseGroupValue"),
	}
	record.SystemRequirements = systemRequirements(doc)
	record.Downloads = downloadButtons(doc)

	return record, nil
}

// wordpress frequently leaves a placeholder in the eager `src` and puts
// the real image behind a lazy-load attribute
func coverImage(doc *goquery.Document) string {
	img := doc.Find(".s-feat-img img").First()
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v, ok := img.Attr(attr); ok && v != "" {
			return htmlutil.AbsoluteUrl(v)
		}
	}
	return ""
}

func labeledValue(doc *goquery.Document, selector string) string {
	value := htmlutil.CleanText(doc.Find(selector).First().Text())
	if value == "" {
		return catalog.PlaceholderValue
	}
	return value
}

const maxRequirementLines = 5

func systemRequirements(doc *goquery.Document) catalog.SystemRequirements {
	reqs := catalog.SystemRequirements{}

	var header *goquery.Selection
	doc.Find("h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.Contains(h.Text(), "System requirements") {
			header = h
			return false
		}
		return true
	})
	if header == nil {
		return reqs
	}

	list := header.NextAllFiltered("ul").First()
	if list.Length() == 0 {
		list = header.Parent().Find("ul").First()
	}
	list.Find("li").EachWithBreak(func(i int, li *goquery.Selection) bool {
		if i >= maxRequirementLines {
			return false
		}
		line := htmlutil.CleanText(li.Text())
		if line != "" {
			reqs.Lines = append(reqs.Lines, line)
		}
		return true
	})

	return reqs
}

func downloadButtons(doc *goquery.Document) []catalog.DownloadLink {
	downloads := []catalog.DownloadLink{}
	doc.Find(".DownloadButtonContainer a").Each(func(_ int, btn *goquery.Selection) {
		href, ok := btn.Attr("href")
		if !ok || href == "" {
			return
		}
		host := htmlutil.CleanText(btn.Text())
		if host == "" {
			host = "Download"
		}
		downloads = append(downloads, catalog.DownloadLink{
			Host: host,
			Url:  href,
			// steam exposes direct or quasi-direct urls, nothing to negotiate
			Resolved: true,
		})
	})
	return downloads
}
