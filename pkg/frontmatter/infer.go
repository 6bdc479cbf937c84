package frontmatter

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	numberPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Accepted date-time spellings. Fractional seconds are accepted by all of
// them when parsing.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// inferScalar types a scalar by its literal syntax. Quoted scalars are
// always strings.
func inferScalar(text string, quoted bool) Value {
	if quoted {
		return String(text)
	}
	switch text {
	case "true", "True", "TRUE":
		return Value{kind: KindBoolean, b: true, raw: text}
	case "false", "False", "FALSE":
		return Value{kind: KindBoolean, b: false, raw: text}
	}
	if numberPattern.MatchString(text) {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return Value{kind: KindNumber, num: f, raw: text}
		}
	}
	if datePattern.MatchString(text) {
		if t, err := time.Parse(dateLayout, text); err == nil {
			return Value{kind: KindDate, t: t, raw: text}
		}
	}
	if len(text) >= len("2006-01-02 15:04") && datePattern.MatchString(text[:10]) {
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, text); err == nil {
				return Value{kind: KindDateTime, t: t, raw: text}
			}
		}
	}
	return String(text)
}

// valueFromNode converts a parsed YAML value node. Anything that is not a
// scalar or a flat list of scalars is kept as its YAML text.
func valueFromNode(n *yaml.Node) Value {
	switch n.Kind {
	case yaml.ScalarNode:
		quoted := n.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle|yaml.LiteralStyle|yaml.FoldedStyle) != 0
		if n.Style&yaml.TaggedStyle != 0 && n.Tag == "!!str" {
			quoted = true
		}
		if n.ShortTag() == "!!null" && !quoted {
			return String("")
		}
		return inferScalar(n.Value, quoted)
	case yaml.SequenceNode:
		items := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return opaque(n)
			}
			items = append(items, c.Value)
		}
		return StringList(items...)
	case yaml.AliasNode:
		return String(n.Value)
	default:
		return opaque(n)
	}
}

func opaque(n *yaml.Node) Value {
	out, err := yaml.Marshal(n)
	if err != nil {
		return String(n.Value)
	}
	return String(strings.TrimSpace(string(out)))
}

// valueToNode converts a Value into a node for encoding. Strings that would
// read back as another kind are forced into quotes.
func valueToNode(v Value) *yaml.Node {
	switch v.Kind() {
	case KindString:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.str}
		if inferScalar(v.str, false).Kind() != KindString || needsEscapes(v.str) {
			n.Style = yaml.DoubleQuotedStyle
		}
		return n
	case KindNumber, KindBoolean, KindDate, KindDateTime:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.literal()}
	case KindStringList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, item := range v.list {
			n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item}
			if needsEscapes(item) || strings.Contains(item, "\n") {
				n.Style = yaml.DoubleQuotedStyle
			}
			seq.Content = append(seq.Content, n)
		}
		return seq
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Text()}
}

// needsEscapes reports whether s only survives a round trip as a double
// quoted scalar: block scalars drop a leading newline and cannot carry
// control characters.
func needsEscapes(s string) bool {
	if strings.HasPrefix(s, "\n") {
		return true
	}
	for _, r := range s {
		if r == '\n' {
			continue
		}
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
