package parser

import (
	"strings"
)

// extinfMeta holds the pieces of one parsed #EXTINF line: the key="value"
// attribute map and the display name following the last unquoted comma.
type extinfMeta struct {
	attrs map[string]string
	name  string
}

// parseEXTINF splits an #EXTINF line into attributes and display name.
//
// The display name is everything after the last comma that is not inside a
// quoted attribute value, so names containing commas inside quotes survive.
// Attribute values may contain spaces when quoted; duplicate keys keep the
// last occurrence.
func parseEXTINF(line string) *extinfMeta {
	meta := &extinfMeta{attrs: make(map[string]string)}

	line = strings.TrimPrefix(line, "#EXTINF:")

	// find the last comma that separates attributes from the channel name
	lastComma := -1
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '"' {
			inQuotes = !inQuotes
		} else if line[i] == ',' && !inQuotes {
			lastComma = i
			break
		}
	}

	attrPart := line
	if lastComma != -1 {
		attrPart = strings.TrimSpace(line[:lastComma])
		meta.name = strings.TrimSpace(line[lastComma+1:])
	}

	// skip the leading duration token, the rest is key="value" pairs
	if idx := strings.IndexAny(attrPart, " \t"); idx != -1 {
		parseAttributes(attrPart[idx+1:], meta.attrs)
	}

	return meta
}

// parseAttributes scans key=value tokens into attrs. Quoted values keep
// their embedded spaces; bare values end at the next space. Later
// occurrences of a key overwrite earlier ones.
func parseAttributes(s string, attrs map[string]string) {
	i := 0
	for i < len(s) {
		// skip separators
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			return
		}

		// scan the key up to '=' or a separator
		start := i
		for i < len(s) && s[i] != '=' && s[i] != ' ' && s[i] != '\t' {
			i++
		}
		if i >= len(s) || s[i] != '=' {
			// stray token without a value, skip it
			continue
		}
		key := s[start:i]
		i++ // consume '='

		var value string
		if i < len(s) && s[i] == '"' {
			i++
			vstart := i
			for i < len(s) && s[i] != '"' {
				i++
			}
			value = s[vstart:i]
			if i < len(s) {
				i++ // consume closing quote
			}
		} else {
			vstart := i
			for i < len(s) && s[i] != ' ' && s[i] != '\t' {
				i++
			}
			value = s[vstart:i]
		}

		if key != "" {
			attrs[key] = value
		}
	}
}
