// Package frontmatter reads and writes the metadata header that prefixes
// every document:
//
//	---
//	title: Setup
//	tags: [ops, onboarding]
//	---
//	# Setup
//
// Values are typed from their literal syntax and kept in header order.
// Decode never fails: entries it cannot represent are kept as strings.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const marker = "---"

// Decode splits raw into its header metadata and body.
func Decode(raw string) (*Metadata, string) {
	meta := NewMetadata()
	header, body, ok := split(raw)
	if !ok {
		return meta, raw
	}
	if strings.TrimSpace(header) == "" {
		return meta, body
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(header), &root); err == nil &&
		len(root.Content) == 1 && root.Content[0].Kind == yaml.MappingNode {
		pairs := root.Content[0].Content
		for i := 0; i+1 < len(pairs); i += 2 {
			meta.Set(pairs[i].Value, valueFromNode(pairs[i+1]))
		}
		return meta, body
	}

	decodeLines(header, meta)
	return meta, body
}

// Encode renders meta and body back into document text.
func Encode(meta *Metadata, body string) (string, error) {
	if meta.Len() == 0 {
		if _, _, ok := split(body); ok {
			return marker + "\n" + marker + "\n" + body, nil
		}
		return body, nil
	}

	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range meta.Keys() {
		v, _ := meta.Get(k)
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			valueToNode(v),
		)
	}

	var buf bytes.Buffer
	buf.WriteString(marker + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	buf.WriteString(marker + "\n")
	buf.WriteString(body)
	return buf.String(), nil
}

// ReadHeader decodes only the metadata of raw, ignoring the body.
func ReadHeader(raw string) *Metadata {
	meta, _ := Decode(headerOnly(raw))
	return meta
}

// headerOnly trims raw right after the closing marker so large bodies are
// not carried around when only metadata is needed.
func headerOnly(raw string) string {
	header, _, ok := split(raw)
	if !ok {
		return ""
	}
	return marker + "\n" + header + marker + "\n"
}

// split returns the text between the opening and closing marker lines and
// everything after the closing line.
func split(raw string) (header, body string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(raw, marker+"\n"):
		rest = raw[len(marker)+1:]
	case strings.HasPrefix(raw, marker+"\r\n"):
		rest = raw[len(marker)+2:]
	default:
		return "", "", false
	}

	idx := 0
	for {
		nl := strings.IndexByte(rest[idx:], '\n')
		end := len(rest)
		if nl >= 0 {
			end = idx + nl
		}
		if strings.TrimRight(rest[idx:end], "\r") == marker {
			header = rest[:idx]
			if nl >= 0 {
				body = rest[end+1:]
			}
			return header, body, true
		}
		if nl < 0 {
			return "", "", false
		}
		idx = end + 1
	}
}

// decodeLines is the fallback for headers that are not valid YAML as a
// whole. Each top-level "key: value" entry, plus its indented continuation
// lines, is parsed on its own.
func decodeLines(header string, meta *Metadata) {
	var key string
	var buf []string
	flush := func() {
		if key != "" {
			meta.Set(key, decodeFragment(strings.Join(buf, "\n")))
		}
		key, buf = "", nil
	}

	for _, line := range strings.Split(header, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' || line[0] == '-' {
			if key != "" {
				buf = append(buf, line)
			}
			continue
		}
		flush()
		k, v, found := strings.Cut(line, ":")
		key = strings.TrimSpace(k)
		if found {
			buf = []string{v}
		}
	}
	flush()
}

func decodeFragment(text string) Value {
	if strings.TrimSpace(text) == "" {
		return String("")
	}
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(text), &n); err == nil && len(n.Content) == 1 {
		return valueFromNode(n.Content[0])
	}
	return String(strings.TrimSpace(text))
}
