package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"m3u-server/work/catalog"
	"m3u-server/work/config"
	"m3u-server/work/logger"
)

// ParseError is the hard failure of a playlist parse. Individual malformed
// entries are tolerated and counted; a ParseError means the input is not an
// extended M3U playlist at all.
type ParseError struct {
	Reason string // what was wrong with the input
	Line   int    // 1-based line where the problem was detected
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("playlist parse error at line %d: %s", e.Line, e.Reason)
}

// Result carries the parsed entries of one source playlist plus the count of
// malformed entries that were skipped under the tolerant-parsing policy.
type Result struct {
	Entries []catalog.ChannelEntry
	Dropped int // entries skipped for a missing or empty URI
}

// line classification states for the scan below
const (
	stateHeader = iota // nothing consumed yet, #EXTM3U required next
	stateMeta          // between entries, expecting #EXTINF metadata
	stateURI           // metadata pending, expecting the stream URI line
)

// ParseSource parses raw playlist bytes from a source into channel entries.
// HLS master playlists are expanded into one entry per variant; everything
// else goes through the extended-M3U scan.
func ParseSource(raw []byte, src *config.SourceConfig) (*Result, error) {
	if bytes.Contains(raw, []byte("#EXT-X-STREAM-INF")) {
		return parseMaster(raw, src)
	}
	return Parse(raw, src)
}

// Parse scans an extended M3U playlist line by line. The scan is a small
// state machine over three line classes: the #EXTM3U header, #EXTINF entry
// metadata, and the URI line that completes an entry.
//
// A missing header is a hard *ParseError. Entries whose URI line is missing
// or empty are dropped and counted but do not fail the parse. key="value"
// attribute tokens are parsed with last-occurrence-wins semantics, entry
// order is preserved exactly as encountered, and non-ASCII content passes
// through untouched.
func Parse(raw []byte, src *config.SourceConfig) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	state := stateHeader
	lineNum := 0

	var pending *extinfMeta
	var pendingGroup string

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// strip a UTF-8 BOM on the very first line
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}

		if line == "" {
			continue
		}

		if state == stateHeader {
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, &ParseError{Reason: "missing #EXTM3U header", Line: lineNum}
			}
			state = stateMeta
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			if state == stateURI {
				// previous entry never got its URI line
				res.Dropped++
				logger.Debug("{parser/m3u - Parse} Dropping entry without URI before line %d (source %s)", lineNum, src.Name)
			}
			pending = parseEXTINF(line)
			pendingGroup = ""
			state = stateURI

		case strings.HasPrefix(line, "#EXTGRP:"):
			// group directive applies to the entry being assembled
			if state == stateURI {
				pendingGroup = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			}

		case strings.HasPrefix(line, "#"):
			// other directives and comments are ignored

		default:
			if state != stateURI {
				// bare URI with no preceding metadata, nothing to attach it to
				continue
			}
			res.Entries = append(res.Entries, buildEntry(line, pending, pendingGroup, src))
			pending = nil
			pendingGroup = ""
			state = stateMeta
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &ParseError{Reason: err.Error(), Line: lineNum}
	}

	if state == stateHeader {
		// empty input never produced a header line
		return nil, &ParseError{Reason: "missing #EXTM3U header", Line: lineNum}
	}

	if state == stateURI {
		// trailing metadata with no URI line
		res.Dropped++
		logger.Debug("{parser/m3u - Parse} Dropping trailing entry without URI (source %s)", src.Name)
	}

	return res, nil
}

// buildEntry assembles a ChannelEntry from a URI line and its pending
// metadata.
func buildEntry(uri string, meta *extinfMeta, extgrp string, src *config.SourceConfig) catalog.ChannelEntry {
	name := meta.name
	if name == "" {
		name = meta.attrs["tvg-name"]
	}
	if name == "" {
		name = "Unknown"
	}

	group := meta.attrs["group-title"]
	if group == "" {
		group = extgrp
	}

	return catalog.ChannelEntry{
		URI:        strings.TrimSpace(uri),
		Name:       name,
		Group:      group,
		Attributes: meta.attrs,
		SourceName: src.Name,
		SourceRank: src.Rank,
	}
}
