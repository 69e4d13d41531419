package catalog

import "net/url"

// PlaceholderValue is the literal used for metadata fields the source
// does not expose. Titles fall back to it too, so a Record.Title is
// never empty.
const PlaceholderValue = "not available"

type Source string

const (
	SourceSteamUnderground Source = "SteamUnderground"
	SourceAnkerGames       Source = "AnkerGames"
	SourceGameBounty       Source = "GameBounty"
)

// Stub is a minimal search hit, consumed once by the matching detail
// fetch and never persisted beyond a single aggregation run.
//
// Href locates steam/anker items. Bounty items are addressed through a
// build-scoped JSON api path instead, so their stubs carry Slug+BuildId.
type Stub struct {
	Title  string
	Source Source

	Href    string
	Slug    string
	BuildId string

	// extras the bounty hydration payload exposes at search time,
	// kept so a failed detail fetch still has something to show
	CoverImage string
	Version    string
	Overview   string
}

type DownloadLink struct {
	Host     string
	Url      string
	Resolved bool
	// mirror health as reported by gamebounty, empty elsewhere
	Status string
}

// SystemRequirements is either a flat list of lines (steam, anker) or a
// tier name -> text mapping (gamebounty's minimum/recommended). The two
// shapes are preserved as-is, never merged.
type SystemRequirements struct {
	Lines []string
	Tiers map[string]string
}

func (s SystemRequirements) IsZero() bool {
	return len(s.Lines) == 0 && len(s.Tiers) == 0
}

type SteamMetadata struct {
	Version      string
	ReleaseGroup string
}

type AnkerMetadata struct {
	Size        string
	ReleaseDate string
	Publisher   string
	Genres      []string
}

type BountyMetadata struct {
	Description string
	Developer   string
	Publisher   string
	ReleaseDate string
	UpdatedAt   string
	Genres      []string
	Version     string
	SteamUrl    string
}

// Metadata is a per-source variant, exactly one field is non-nil on a
// fully scraped Record. Downstream formatting switches on the source
// instead of probing an open map.
type Metadata struct {
	Steam  *SteamMetadata
	Anker  *AnkerMetadata
	Bounty *BountyMetadata
}

// Record is the normalized output unit. Immutable once constructed,
// owned by the caller after an aggregation run returns.
type Record struct {
	Title              string
	Source             Source
	Url                string
	Image              string
	Metadata           Metadata
	SystemRequirements SystemRequirements
	Downloads          []DownloadLink
}

// FallbackRecord builds the degraded Record used when a detail fetch
// fails irrecoverably: populated from the stub alone, empty downloads,
// placeholder metadata. Items degrade, they never drop.
func FallbackRecord(stub Stub) Record {
	title := stub.Title
	if title == "" {
		title = PlaceholderValue
	}

	meta := Metadata{}
	switch stub.Source {
	case SourceSteamUnderground:
		meta.Steam = &SteamMetadata{
			Version:      PlaceholderValue,
			ReleaseGroup: PlaceholderValue,
		}
	case SourceAnkerGames:
		meta.Anker = &AnkerMetadata{
			Size:        PlaceholderValue,
			ReleaseDate: PlaceholderValue,
			Publisher:   PlaceholderValue,
		}
	case SourceGameBounty:
		bounty := &BountyMetadata{
			Description: PlaceholderValue,
			Developer:   PlaceholderValue,
			Publisher:   PlaceholderValue,
			ReleaseDate: PlaceholderValue,
			UpdatedAt:   PlaceholderValue,
			Version:     PlaceholderValue,
			SteamUrl:    PlaceholderValue,
		}
		// the hydration payload hands out a few fields at search time,
		// those survive the degraded path
		if stub.Version != "" {
			bounty.Version = stub.Version
		}
		if stub.Overview != "" {
			bounty.Description = stub.Overview
		}
		meta.Bounty = bounty
	}

	return Record{
		Title:     title,
		Source:    stub.Source,
		Url:       stub.Href,
		Image:     absoluteImage(stub.CoverImage),
		Metadata:  meta,
		Downloads: []DownloadLink{},
	}
}

// a Record surfaces an image only when the source hands out a full url,
// relative paths stay off the record
func absoluteImage(href string) string {
	link, err := url.Parse(href)
	if err != nil || !link.IsAbs() {
		return ""
	}
	return href
}
