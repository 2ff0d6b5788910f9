package parser

import (
	"bytes"
	"fmt"
	"net/url"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/logger"

	"github.com/grafov/m3u8"
)

// parseMaster expands an HLS master playlist into one catalog entry per
// variant using the grafov decoder. Relative variant URIs are resolved
// against the source locator so downstream players get something playable.
func parseMaster(raw []byte, src *config.SourceConfig) (*Result, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(raw), true)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("HLS master decode failed: %v", err), Line: 1}
	}

	res := &Result{}

	switch listType {
	case m3u8.MEDIA:
		// a plain media playlist is a single playable stream, represent the
		// source itself as one entry
		res.Entries = append(res.Entries, catalog.ChannelEntry{
			URI:        src.Locator,
			Name:       src.Name,
			Attributes: map[string]string{},
			SourceName: src.Name,
			SourceRank: src.Rank,
		})

	case m3u8.MASTER:
		masterpl := playlist.(*m3u8.MasterPlaylist)
		for _, variant := range masterpl.Variants {
			if variant == nil || variant.URI == "" {
				res.Dropped++
				continue
			}

			name := variant.Name
			if name == "" && variant.Resolution != "" {
				name = fmt.Sprintf("%s %s", src.Name, variant.Resolution)
			} else if name == "" {
				name = fmt.Sprintf("%s %d", src.Name, variant.Bandwidth)
			}

			entry := catalog.ChannelEntry{
				URI:        resolveVariantURI(src.Locator, variant.URI),
				Name:       name,
				Attributes: map[string]string{},
				SourceName: src.Name,
				SourceRank: src.Rank,
			}
			if variant.Bandwidth > 0 {
				entry.Attributes["bandwidth"] = fmt.Sprintf("%d", variant.Bandwidth)
			}
			if variant.Resolution != "" {
				entry.Attributes["resolution"] = variant.Resolution
			}

			res.Entries = append(res.Entries, entry)
		}
	}

	logger.Debug("{parser/hls - parseMaster} Expanded %d variants from source %s", len(res.Entries), src.Name)
	return res, nil
}

// resolveVariantURI makes a variant URI absolute relative to the master
// playlist locator. Already-absolute URIs and unparseable inputs pass
// through unchanged.
func resolveVariantURI(locator, uri string) string {
	base, err := url.Parse(locator)
	if err != nil || base.Scheme == "" {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
