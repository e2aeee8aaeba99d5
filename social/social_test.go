package social_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synthsite/localfeed"
	"synthsite/social"
)

const user = "iamb.synthmusic"

func tiktokPage(base string) string {
	return fmt.Sprintf(`<html><head>
<script id="SIGI_STATE" type="application/json">{"ItemModule":{
  "111":{"id":"111","desc":"New  track\nout now","author":"iamb.synthmusic","createTime":"1700000001","video":{"cover":"%[1]s/img/111.jpg"}},
  "222":{"id":"222","desc":"not ours","author":"someone.else","createTime":"1700000002","video":{"cover":"%[1]s/img/222.jpg"}}
}}</script>
<script>var ignored = {"ItemModule":{}};</script>
</head><body></body></html>`, base)
}

// platform fakes Instagram, TikTok and their image hosts
func platform(t *testing.T, instagramUp bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		if !instagramUp {
			http.Error(w, "blocked", http.StatusForbidden)
			return
		}
		assert.Equal(t, "936619743392459", r.Header.Get("X-IG-App-ID"))
		fmt.Fprint(w, `{"data":{"user":{"id":"42"}}}`)
	})
	mux.HandleFunc("/feed/42", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("max_id") == "" {
			fmt.Fprintf(w, `{"items":[
			  {"code":"AAA","media_type":1,"taken_at":1700000100,"caption":{"text":"First  post"},"image_versions2":{"candidates":[{"url":"%[1]s/img/AAA.jpg"}]}},
			  {"code":"BBB","media_type":8,"taken_at":1700000050,"carousel_media":[{"thumbnail_url":"%[1]s/img/BBB.jpg"}]}
			],"more_available":true,"next_max_id":"m2"}`, srv.URL)
			return
		}
		fmt.Fprintf(w, `{"items":[
		  {"code":"AAA","media_type":1,"image_versions2":{"candidates":[{"url":"%[1]s/img/AAA.jpg"}]}},
		  {"code":"CCC","media_type":1,"taken_at":1700000010,"thumbnail_url":"%[1]s/img/text.jpg"},
		  {"media_type":1,"thumbnail_url":"%[1]s/img/nocode.jpg"}
		],"more_available":false}`, srv.URL)
	})
	mux.HandleFunc("/@iamb.synthmusic", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tiktokPage(srv.URL))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "text.jpg") {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html>login</html>")
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "jpeg:"+r.URL.Path)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func exporter(t *testing.T, srv *httptest.Server, dir string) *social.Exporter {
	t.Helper()
	return social.NewExporter(social.Settings{
		InstagramUser:       user,
		InstagramAppID:      "936619743392459",
		InstagramProfileURL: srv.URL + "/profile?username={username}",
		InstagramFeedURL:    srv.URL + "/feed/{id}?count=50",
		TikTokUser:          user,
		TikTokProfileURL:    srv.URL + "/@{user}",
		Output:              filepath.Join(dir, "social-feed.json"),
		InstagramCovers:     filepath.Join(dir, "ig-covers"),
		TikTokCovers:        filepath.Join(dir, "tiktok-covers"),
		Workers:             2,
	}, social.NewClient(srv.Client(), "", 0, 0))
}

func urls(entries []map[string]any) []string {
	var result []string
	for _, entry := range entries {
		result = append(result, entry["url"].(string))
	}
	return result
}

func TestExtractTikTokItems(t *testing.T) {
	items := social.ExtractTikTokItems(tiktokPage("https://cdn"), user)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "111", item.ID)
	assert.Equal(t, "https://cdn/img/111.jpg", item.CoverURL)
	assert.Equal(t, "https://www.tiktok.com/@iamb.synthmusic/video/111", item.URL)
	assert.Equal(t, int64(1700000001), item.Published)
}

func TestExtractTikTokRehydrationData(t *testing.T) {
	page := `<script id="__UNIVERSAL_DATA_FOR_REHYDRATION__">{"__DEFAULT_SCOPE__":{"webapp":[{"itemModule":{
	  "9":{"itemStruct":{"itemId":9,"shareUrl":"https://www.tiktok.com/@x/video/9","author":{"uniqueId":"IAMB.Synthmusic"},"createTime":1700000000,"video":{"originCover":"//cdn/9.jpg"}}},
	  "10":{"itemStruct":{"itemId":10,"createTime":1700000000,"video":{}}}
	}}]}}}</script>`

	items := social.ExtractTikTokItems(page, user)
	require.Len(t, items, 1)
	assert.Equal(t, "9", items[0].ID)
	assert.Equal(t, "https://cdn/9.jpg", items[0].CoverURL)
	assert.Equal(t, "https://www.tiktok.com/@x/video/9", items[0].URL)
}

func TestExtractTikTokItemsWithoutState(t *testing.T) {
	assert.Empty(t, social.ExtractTikTokItems("<html><body>captcha</body></html>", user))
	assert.Empty(t, social.ExtractTikTokItems(`<script id="SIGI_STATE">not json</script>`, user))
}

func TestMergeEntries(t *testing.T) {
	merged := social.MergeEntries(
		[]map[string]any{{"url": "a", "title": "scraped"}, {"title": "no url"}},
		[]map[string]any{{"url": "a", "title": "manual"}, {"url": "b"}},
	)
	assert.Equal(t, []string{"a", "b"}, urls(merged))
	assert.Equal(t, "scraped", merged[0]["title"])
}

func TestRunExportsBothPlatforms(t *testing.T) {
	dir := t.TempDir()
	srv := platform(t, true)
	e := exporter(t, srv, dir)

	manual := &localfeed.Document{
		TikTok: []map[string]any{
			{"url": "https://www.tiktok.com/@iamb.synthmusic/video/111", "title": "stale"},
			{"url": "https://www.tiktok.com/@iamb.synthmusic/video/5", "title": "manual", "thumbnail": "assets/tiktok-covers/5.jpg"},
		},
		Items: []map[string]any{{"url": "https://example.com/x", "source": "other", "thumbnail": "assets/x.jpg"}},
	}
	require.NoError(t, social.WriteDocument(filepath.Join(dir, "social-feed.json"), manual))

	doc, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://www.instagram.com/p/AAA/",
		"https://www.instagram.com/p/BBB/",
	}, urls(doc.Instagram), "duplicate, coverless and non-image posts are dropped")
	assert.Equal(t, "First post", doc.Instagram[0]["title"])
	assert.Equal(t, int64(1700000100000), doc.Instagram[0]["published"])

	assert.Equal(t, []string{
		"https://www.tiktok.com/@iamb.synthmusic/video/111",
		"https://www.tiktok.com/@iamb.synthmusic/video/5",
	}, urls(doc.TikTok))
	assert.Equal(t, "New track out now", doc.TikTok[0]["title"])
	assert.Equal(t, manual.Items, doc.Items)

	cover, err := os.ReadFile(filepath.Join(dir, "ig-covers", "AAA.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg:/img/AAA.jpg", string(cover))
	assert.NoFileExists(t, filepath.Join(dir, "ig-covers", "CCC.jpg"))
	assert.FileExists(t, filepath.Join(dir, "tiktok-covers", "111.jpg"))

	// the written document is readable by the page
	written, err := os.ReadFile(filepath.Join(dir, "social-feed.json"))
	require.NoError(t, err)
	items, err := localfeed.Parse(written)
	require.NoError(t, err)
	assert.Len(t, items, 5)
}

func TestRunKeepsInstagramEntriesOnFailure(t *testing.T) {
	dir := t.TempDir()
	srv := platform(t, false)
	e := exporter(t, srv, dir)

	previous := &localfeed.Document{
		Instagram: []map[string]any{{"url": "https://www.instagram.com/p/OLD/", "thumbnail": "assets/ig-covers/OLD.jpg"}},
	}
	require.NoError(t, social.WriteDocument(filepath.Join(dir, "social-feed.json"), previous))

	doc, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.instagram.com/p/OLD/"}, urls(doc.Instagram))
	assert.Len(t, doc.TikTok, 1)
	assert.NotNil(t, doc.Items)
}

func TestRunRebuildsInstagramFromCovers(t *testing.T) {
	dir := t.TempDir()
	srv := platform(t, false)
	e := exporter(t, srv, dir)

	covers := filepath.Join(dir, "ig-covers")
	require.NoError(t, os.MkdirAll(covers, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(covers, "ZZZ.jpg"), []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(covers, "notes.txt"), []byte("x"), 0o644))

	doc, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Instagram, 1)
	assert.Equal(t, "https://www.instagram.com/p/ZZZ/", doc.Instagram[0]["url"])
	assert.Equal(t, "Instagram Post", doc.Instagram[0]["title"])
	assert.Equal(t, filepath.ToSlash(filepath.Join(covers, "ZZZ.jpg")), doc.Instagram[0]["thumbnail"])
}

func TestMaxItems(t *testing.T) {
	dir := t.TempDir()
	srv := platform(t, true)
	e := social.NewExporter(social.Settings{
		InstagramUser:       user,
		InstagramProfileURL: srv.URL + "/profile?username={username}",
		InstagramFeedURL:    srv.URL + "/feed/{id}?count=50",
		InstagramAppID:      "936619743392459",
		TikTokUser:          user,
		TikTokProfileURL:    srv.URL + "/@{user}",
		MaxItems:            1,
		Output:              filepath.Join(dir, "feed.json"),
		InstagramCovers:     filepath.Join(dir, "ig"),
		TikTokCovers:        filepath.Join(dir, "tt"),
	}, social.NewClient(srv.Client(), "", 0, 0))

	doc, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Instagram, 1)
}

func TestClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	e := social.NewExporter(social.Settings{
		InstagramUser:       user,
		InstagramProfileURL: srv.URL + "/profile?username={username}",
		TikTokUser:          user,
		TikTokProfileURL:    srv.URL + "/@{user}",
		Output:              filepath.Join(dir, "feed.json"),
		InstagramCovers:     filepath.Join(dir, "ig"),
		TikTokCovers:        filepath.Join(dir, "tt"),
	}, social.NewClient(srv.Client(), "", 0, 3))

	doc, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Instagram)
	assert.Empty(t, doc.TikTok)
}

func TestLoadDocumentKeepsValidManualEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "items": [{"url": "https://example.com/a"}, 7],
	  "tiktok": "broken",
	  "instagram": [null, {"url": "https://www.instagram.com/p/OLD/"}]
	}`), 0o644))

	doc := social.LoadDocument(path)
	assert.Equal(t, []string{"https://example.com/a"}, urls(doc.Items))
	assert.Empty(t, doc.TikTok)
	assert.Equal(t, []string{"https://www.instagram.com/p/OLD/"}, urls(doc.Instagram))
}
