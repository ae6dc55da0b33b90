package memory

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

// Memory files are markdown with a YAML frontmatter block:
//
//	---
//	title: OAuth2 Decision
//	type: decision
//	tags: [auth, architecture]
//	created: 2026-08-30T10:00:00Z
//	updated: 2026-08-30T10:00:00Z
//	---
//
//	body text
//
// Required keys on write: title, type, tags, created, updated.
// Unknown keys round-trip untouched through Memory.Extra.

const frontmatterDelim = "---"

var knownKeys = map[string]bool{
	"title": true, "type": true, "tags": true,
	"created": true, "updated": true,
	"severity": true, "source": true, "links": true,
}

// ParseFile decodes a memory file into a Memory. The id is not stored
// in the frontmatter; callers supply it from the filename.
func ParseFile(id string, data []byte) (*Memory, error) {
	header, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindCorruption, "memory.parse",
			fmt.Sprintf("memory file for %q has no frontmatter block", id), err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return nil, memerr.Wrap(memerr.KindCorruption, "memory.parse",
			fmt.Sprintf("frontmatter for %q is not valid YAML", id), err)
	}

	m := &Memory{ID: id, Content: body}
	for key, val := range raw {
		switch key {
		case "title":
			m.Title = asString(val)
		case "type":
			t, err := ParseType(asString(val))
			if err != nil {
				return nil, err
			}
			m.Type = t
		case "tags":
			m.Tags = asStringSlice(val)
		case "links":
			m.Links = asStringSlice(val)
		case "severity":
			m.Severity = asString(val)
		case "source":
			m.Source = asString(val)
		case "created":
			m.Created = asTime(val)
		case "updated":
			m.Updated = asTime(val)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[key] = val
		}
	}
	return m, nil
}

// EncodeFile serializes a Memory back to its on-disk form. Known keys
// are written in a fixed order, extra keys follow sorted, so encoding
// is deterministic.
func (m *Memory) EncodeFile() ([]byte, error) {
	var node yaml.Node
	node.Kind = yaml.MappingNode

	appendPair := func(key string, value any) error {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			return fmt.Errorf("failed to encode frontmatter key %q: %w", key, err)
		}
		node.Content = append(node.Content, keyNode, valNode)
		return nil
	}

	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}

	pairs := []struct {
		key string
		val any
	}{
		{"title", m.Title},
		{"type", string(m.Type)},
		{"tags", tags},
		{"created", m.Created.UTC().Format(time.RFC3339)},
		{"updated", m.Updated.UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if err := appendPair(p.key, p.val); err != nil {
			return nil, err
		}
	}
	if m.Severity != "" {
		if err := appendPair("severity", m.Severity); err != nil {
			return nil, err
		}
	}
	if m.Source != "" {
		if err := appendPair("source", m.Source); err != nil {
			return nil, err
		}
	}
	if len(m.Links) > 0 {
		links := append([]string(nil), m.Links...)
		sort.Strings(links)
		if err := appendPair("links", links); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if err := appendPair(k, m.Extra[k]); err != nil {
			return nil, err
		}
	}

	header, err := yaml.Marshal(&node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterDelim + "\n")
	buf.Write(header)
	buf.WriteString(frontmatterDelim + "\n\n")
	buf.WriteString(m.Content)
	if !strings.HasSuffix(m.Content, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// splitFrontmatter separates the YAML header from the body.
func splitFrontmatter(data []byte) (header []byte, body string, err error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontmatterDelim+"\n") {
		return nil, "", fmt.Errorf("missing opening delimiter")
	}
	rest := text[len(frontmatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontmatterDelim+"\n")
	if end < 0 {
		// Header may close at EOF without a trailing body.
		if strings.HasSuffix(rest, "\n"+frontmatterDelim) {
			return []byte(rest[:len(rest)-len(frontmatterDelim)-1]), "", nil
		}
		return nil, "", fmt.Errorf("missing closing delimiter")
	}
	header = []byte(rest[:end+1])
	body = strings.TrimPrefix(rest[end+len(frontmatterDelim)+2:], "\n")
	return header, strings.TrimSuffix(body, "\n"), nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asStringSlice(v any) []string {
	switch vals := v.(type) {
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, asString(item))
		}
		return out
	case []string:
		return vals
	case nil:
		return nil
	case string:
		if vals == "" {
			return nil
		}
		return []string{vals}
	}
	return nil
}

// asTime accepts both RFC3339 strings and the time.Time values the
// YAML decoder produces for canonical timestamps.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}
