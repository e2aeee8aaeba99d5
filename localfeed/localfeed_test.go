package localfeed_test

import (
	"synthsite/localfeed"
	"synthsite/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyedDocument(t *testing.T) {
	body := `{
	  "items": [
	    {"source": "youtube", "link": "https://www.youtube.com/watch?v=AAAAAAAAAAA", "title": "Studio diary"},
	    {"source": "bandcamp", "url": "https://x.bandcamp.com/album/a", "cover": "https://x/cover.jpg", "caption": "New  album"}
	  ],
	  "instagram": [
	    {"url": "https://www.instagram.com/p/A/", "thumbnail": "assets/ig-covers/A.jpg", "published": 1700000000000},
	    {"url": "https://www.instagram.com/p/B/"}
	  ],
	  "tiktok": [
	    {"url": "https://www.tiktok.com/@x/video/1", "thumbnail": "assets/tiktok-covers/1.jpg", "description": "dance", "published": "2024-01-02T03:04:05Z"}
	  ]
	}`

	items, err := localfeed.Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, models.SourceYouTube, items[0].Source)
	assert.Equal(t, "https://i.ytimg.com/vi/AAAAAAAAAAA/hqdefault.jpg", items[0].Thumbnail)
	assert.Equal(t, "Studio diary", items[0].Title)

	assert.Equal(t, models.SourceOther, items[1].Source)
	assert.Equal(t, "https://x/cover.jpg", items[1].Thumbnail)
	assert.Equal(t, "New album", items[1].Description)
	assert.Equal(t, "New album", items[1].Title)

	assert.Equal(t, models.SourceInstagram, items[2].Source)
	assert.Equal(t, "Instagram Post", items[2].Title)
	assert.Equal(t, int64(1700000000000), items[2].Published)

	assert.Equal(t, models.SourceTikTok, items[3].Source)
	assert.Equal(t, "dance", items[3].Title)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli(), items[3].Published)
}

func TestParseFlatArray(t *testing.T) {
	body := `[
	  {"source": "tiktok", "url": "https://t/1", "thumbnail": "https://t/1.jpg"},
	  {"source": "tiktok", "url": "", "thumbnail": "https://t/2.jpg"},
	  null,
	  {"source": "instagram", "url": "https://i/1", "thumbnail": "  "}
	]`

	items, err := localfeed.Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "TikTok Video", items[0].Title)
}

func TestParseEmptyAndInvalid(t *testing.T) {
	items, err := localfeed.Parse([]byte("   "))
	assert.NoError(t, err)
	assert.Empty(t, items)

	items, err = localfeed.Parse([]byte(`{"items": []}`))
	assert.NoError(t, err)
	assert.Empty(t, items)

	items, err = localfeed.Parse([]byte(`{"items": "nope"}`))
	assert.NoError(t, err)
	assert.Empty(t, items)

	_, err = localfeed.Parse([]byte(`{{{`))
	assert.Error(t, err)
	_, err = localfeed.Parse([]byte(`"just a string"`))
	assert.Error(t, err)
}

func TestMalformedEntriesAreSkipped(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "keyed section",
			body: `{"tiktok": [42, {"url": "https://t/1", "thumbnail": "https://t/1.jpg"}, "oops"]}`,
		},
		{
			name: "flat array",
			body: `[{"source": "tiktok", "url": "https://t/1", "thumbnail": "https://t/1.jpg"}, "oops", [1, 2]]`,
		},
		{
			name: "broken section next to a good one",
			body: `{"items": {"not": "an array"}, "tiktok": [{"url": "https://t/1", "thumbnail": "https://t/1.jpg"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := localfeed.Parse([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, models.SourceTikTok, items[0].Source)
			assert.Equal(t, "https://t/1", items[0].Url)
		})
	}
}

func TestDecodeTagsBySection(t *testing.T) {
	raws, err := localfeed.Decode([]byte(`{"tiktok":[{"source":"youtube","url":"u","thumbnail":"t"}]}`))
	require.NoError(t, err)
	require.Len(t, raws, 1)
	// the section wins over the entry's own tag
	assert.Equal(t, models.SourceTikTok, raws[0].Source)
}

func TestNormalizeYouTubeShortLink(t *testing.T) {
	item, ok := localfeed.Normalize(localfeed.RawItem{
		Source: models.SourceYouTube,
		Fields: map[string]any{"url": "https://youtu.be/CCCCCCCCCCC"},
	})
	require.True(t, ok)
	assert.Equal(t, "https://i.ytimg.com/vi/CCCCCCCCCCC/hqdefault.jpg", item.Thumbnail)
	assert.Equal(t, "YouTube Video", item.Title)
}
