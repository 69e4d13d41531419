package ankergames

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// the generation endpoint wants a recaptcha response but accepts this
// static challenge value
const recaptchaPlaceholder = "development-mode"

// finalLinkStrategy is one way of digging the final download url out of
// the waiting-room page. Strategies run in order, first hit wins; new
// ones get appended without touching the resolution flow.
type finalLinkStrategy struct {
	name    string
	extract func(page string) (string, bool)
}

var downloadPageRegex = regexp.MustCompile(`downloadPage\('([^']+)'`)

var finalLinkStrategies = []finalLinkStrategy{
	{
		name: "downloadPage script call",
		extract: func(page string) (string, bool) {
			groups := downloadPageRegex.FindStringSubmatch(page)
			if len(groups) != 2 {
				return "", false
			}
			decoded, err := url.QueryUnescape(groups[1])
			if err != nil {
				return "", false
			}
			return decoded, true
		},
	},
	{
		name: "download-now anchor",
		extract: func(page string) (string, bool) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
			if err != nil {
				return "", false
			}
			href, ok := doc.Find(`a[aria-label="Download Now"]`).First().Attr("href")
			return href, ok && href != ""
		},
	},
}

// resolveDownload runs the multi-hop negotiation for a single download
// item: generate a download url with the page's csrf token, fetch the
// waiting-room page it points at, then extract the final link from it.
func (c *Client) resolveDownload(ctx context.Context, endpoint, csrfToken string) (string, error) {
	ctx, span := tracer.Start(ctx, "client:resolveDownload")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-csrf-token", csrfToken).
		SetHeader("x-requested-with", "XMLHttpRequest").
		SetHeader("content-type", "application/json").
		SetBody(map[string]string{"g-recaptcha-response": recaptchaPlaceholder}).
		Post(endpoint)
	if err != nil {
		span.SetStatus(codes.Error, "failed to generate download url")
		return "", err
	}
	if res.StatusCode() != 200 {
		err = fmt.Errorf("generation endpoint returned status %d", res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad status")
		return "", err
	}

	var generated struct {
		Success     bool   `json:"success"`
		DownloadUrl string `json:"download_url"`
	}
	err = json.Unmarshal(res.Body(), &generated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal generation response")
		return "", err
	}
	if !generated.Success {
		err = fmt.Errorf("generation endpoint refused the request")
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation refused")
		return "", err
	}

	res, err = c.http.R().
		SetContext(ctx).
		Get(generated.DownloadUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch waiting-room page")
		return "", err
	}

	page := res.String()
	for _, strategy := range finalLinkStrategies {
		finalUrl, ok := strategy.extract(page)
		if !ok {
			continue
		}
		span.SetAttributes(attribute.String("strategy", strategy.name))
		return finalUrl, nil
	}

	err = fmt.Errorf("no extraction strategy matched the waiting-room page")
	span.RecordError(err)
	span.SetStatus(codes.Error, "extraction failed")
	return "", err
}
