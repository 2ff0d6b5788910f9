package parser

import (
	"testing"

	"m3u-server/work/config"

	"github.com/stretchr/testify/require"
)

func testSource() *config.SourceConfig {
	return &config.SourceConfig{
		Name:    "test-source",
		Locator: "http://example.com/playlist.m3u",
		Rank:    1,
	}
}

func TestParseValidPlaylist(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1 tvg-id="cnn.us" tvg-logo="http://logo/cnn.png" group-title="News",CNN
http://stream.example.com/cnn
#EXTINF:-1 tvg-id="bbc.uk" group-title="News",BBC One
http://stream.example.com/bbc
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Equal(t, 0, res.Dropped)

	first := res.Entries[0]
	require.Equal(t, "CNN", first.Name)
	require.Equal(t, "http://stream.example.com/cnn", first.URI)
	require.Equal(t, "News", first.Group)
	require.Equal(t, "cnn.us", first.Attributes["tvg-id"])
	require.Equal(t, "http://logo/cnn.png", first.Attributes["tvg-logo"])
	require.Equal(t, "test-source", first.SourceName)
	require.Equal(t, 1, first.SourceRank)

	require.Equal(t, "BBC One", res.Entries[1].Name)
}

func TestParseMissingHeaderIsHardError(t *testing.T) {
	raw := []byte(`#EXTINF:-1 tvg-id="cnn.us",CNN
http://stream.example.com/cnn
`)

	res, err := Parse(raw, testSource())
	require.Nil(t, res)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Reason, "#EXTM3U")
	require.Equal(t, 1, perr.Line)
}

func TestParseEmptyInputIsHardError(t *testing.T) {
	res, err := Parse(nil, testSource())
	require.Nil(t, res)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseToleratesMissingURI(t *testing.T) {
	// the first entry never gets a URI line, the second does
	raw := []byte(`#EXTM3U
#EXTINF:-1,Broken Channel
#EXTINF:-1,Working Channel
http://stream.example.com/ok
#EXTINF:-1,Trailing Broken
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "Working Channel", res.Entries[0].Name)
	require.Equal(t, 2, res.Dropped)
}

func TestParseIgnoresBareURIs(t *testing.T) {
	raw := []byte(`#EXTM3U
http://stream.example.com/orphan
#EXTINF:-1,Real Channel
http://stream.example.com/real
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "http://stream.example.com/real", res.Entries[0].URI)
}

func TestParseStripsBOM(t *testing.T) {
	raw := []byte("\uFEFF#EXTM3U\n#EXTINF:-1,One\nhttp://stream.example.com/one\n")

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
}

func TestParseAttributesWithSpacesAndDuplicates(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1 tvg-id="first" tvg-id="second" group-title="Late Night Movies",Channel
http://stream.example.com/ch
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	entry := res.Entries[0]
	// last occurrence of a duplicate key wins
	require.Equal(t, "second", entry.Attributes["tvg-id"])
	// quoted values keep embedded spaces
	require.Equal(t, "Late Night Movies", entry.Group)
}

func TestParseNameAfterLastUnquotedComma(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1 tvg-name="News, Sports & More" group-title="Mixed",Display Name
http://stream.example.com/ch
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)

	entry := res.Entries[0]
	require.Equal(t, "Display Name", entry.Name)
	require.Equal(t, "News, Sports & More", entry.Attributes["tvg-name"])
}

func TestParseNameFallbacks(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1 tvg-name="From Attribute",
http://stream.example.com/a
#EXTINF:-1,
http://stream.example.com/b
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "From Attribute", res.Entries[0].Name)
	require.Equal(t, "Unknown", res.Entries[1].Name)
}

func TestParseUnicodePassthrough(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1 group-title="Новости",Первый канал
http://stream.example.com/one
#EXTINF:-1,中文頻道
http://stream.example.com/two
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "Первый канал", res.Entries[0].Name)
	require.Equal(t, "Новости", res.Entries[0].Group)
	require.Equal(t, "中文頻道", res.Entries[1].Name)
}

func TestParseEXTGRPDirective(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1,Grouped By Directive
#EXTGRP:Documentaries
http://stream.example.com/doc
#EXTINF:-1 group-title="Attr Wins",Grouped By Attribute
#EXTGRP:Ignored
http://stream.example.com/attr
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.Equal(t, "Documentaries", res.Entries[0].Group)
	// group-title attribute takes precedence over the directive
	require.Equal(t, "Attr Wins", res.Entries[1].Group)
}

func TestParseOrderPreserved(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1,Zebra
http://stream.example.com/z
#EXTINF:-1,Alpha
http://stream.example.com/a
#EXTINF:-1,Mango
http://stream.example.com/m
`)

	res, err := Parse(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	require.Equal(t, "Zebra", res.Entries[0].Name)
	require.Equal(t, "Alpha", res.Entries[1].Name)
	require.Equal(t, "Mango", res.Entries[2].Name)
}

func TestParseSourceExpandsHLSMaster(t *testing.T) {
	src := &config.SourceConfig{
		Name:    "hls-source",
		Locator: "http://cdn.example.com/live/master.m3u8",
		Rank:    2,
	}

	raw := []byte(`#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
720/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1920x1080
http://cdn.example.com/live/1080/index.m3u8
`)

	res, err := ParseSource(raw, src)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)

	// relative variant URI resolved against the master locator
	require.Equal(t, "http://cdn.example.com/live/720/index.m3u8", res.Entries[0].URI)
	require.Equal(t, "http://cdn.example.com/live/1080/index.m3u8", res.Entries[1].URI)

	require.Equal(t, "1280000", res.Entries[0].Attributes["bandwidth"])
	require.Equal(t, "1280x720", res.Entries[0].Attributes["resolution"])
	require.Equal(t, "hls-source", res.Entries[0].SourceName)
}

func TestParseSourceDispatchesPlainM3U(t *testing.T) {
	raw := []byte(`#EXTM3U
#EXTINF:-1,Plain
http://stream.example.com/plain
`)

	res, err := ParseSource(raw, testSource())
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Equal(t, "Plain", res.Entries[0].Name)
}
