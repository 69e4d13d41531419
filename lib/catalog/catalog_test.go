package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFallbackRecordNeverEmpty(t *testing.T) {
	record := FallbackRecord(Stub{Source: SourceSteamUnderground})
	require.Equal(t, PlaceholderValue, record.Title)
	require.NotNil(t, record.Downloads)
	require.Len(t, record.Downloads, 0)
	require.NotNil(t, record.Metadata.Steam)
	require.Nil(t, record.Metadata.Anker)
	require.Nil(t, record.Metadata.Bounty)
}

func TestFallbackRecordKeepsStubFields(t *testing.T) {
	record := FallbackRecord(Stub{
		Title:      "Foo Bar",
		Source:     SourceGameBounty,
		Href:       "https://gamebounty.world/download/foo-bar",
		CoverImage: "http://x/img.png",
		Version:    "1.2",
	})
	require.Equal(t, "Foo Bar", record.Title)
	require.Equal(t, SourceGameBounty, record.Source)
	require.Equal(t, "https://gamebounty.world/download/foo-bar", record.Url)
	require.Equal(t, "http://x/img.png", record.Image)
	require.NotNil(t, record.Metadata.Bounty)
	require.Equal(t, "1.2", record.Metadata.Bounty.Version)
}

func TestFallbackRecordDropsRelativeImage(t *testing.T) {
	record := FallbackRecord(Stub{
		Title:      "Foo Bar",
		Source:     SourceGameBounty,
		CoverImage: "/uploads/banner.png",
	})
	require.Equal(t, "", record.Image)

	record = FallbackRecord(Stub{
		Title:      "Foo Bar",
		Source:     SourceGameBounty,
		CoverImage: "https://cdn.gamebounty.world/banner.png",
	})
	require.Equal(t, "https://cdn.gamebounty.world/banner.png", record.Image)
}

func TestFallbackRecordBountyPlaceholders(t *testing.T) {
	record := FallbackRecord(Stub{Title: "Foo Bar", Source: SourceGameBounty})
	bounty := record.Metadata.Bounty
	require.NotNil(t, bounty)
	require.Equal(t, PlaceholderValue, bounty.Description)
	require.Equal(t, PlaceholderValue, bounty.Developer)
	require.Equal(t, PlaceholderValue, bounty.Publisher)
	require.Equal(t, PlaceholderValue, bounty.ReleaseDate)
	require.Equal(t, PlaceholderValue, bounty.UpdatedAt)
	require.Equal(t, PlaceholderValue, bounty.Version)
	require.Equal(t, PlaceholderValue, bounty.SteamUrl)
	require.Nil(t, bounty.Genres)

	record = FallbackRecord(Stub{
		Title:    "Foo Bar",
		Source:   SourceGameBounty,
		Version:  "1.2",
		Overview: "a short pitch",
	})
	require.Equal(t, "1.2", record.Metadata.Bounty.Version)
	require.Equal(t, "a short pitch", record.Metadata.Bounty.Description)
}

func TestFallbackRecordAnkerPlaceholders(t *testing.T) {
	record := FallbackRecord(Stub{Title: "Some Game", Source: SourceAnkerGames})
	require.NotNil(t, record.Metadata.Anker)
	require.Equal(t, PlaceholderValue, record.Metadata.Anker.Size)
	require.Equal(t, PlaceholderValue, record.Metadata.Anker.ReleaseDate)
	require.Equal(t, PlaceholderValue, record.Metadata.Anker.Publisher)
}
