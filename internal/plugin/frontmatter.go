package plugin

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontMatter is a decoded YAML header. Declaration files are written by
// hand, so values are looked up leniently: a "tools" entry may be a YAML
// list or a comma-separated string.
type frontMatter map[string]interface{}

// splitFrontMatter separates a "---" fenced YAML header from the body.
// Returns a nil map when the file has no header; returns an error string
// (empty means ok) when the header exists but will not decode.
func splitFrontMatter(content string) (frontMatter, string, string) {
	if !strings.HasPrefix(content, "---") {
		return nil, content, ""
	}
	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return nil, content, ""
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return nil, parts[2], "unparsable front-matter: " + err.Error()
	}
	return fm, parts[2], ""
}

func (fm frontMatter) str(key string) string {
	if fm == nil {
		return ""
	}
	if v, ok := fm[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// list reads a key that may be a YAML sequence or a comma-separated string.
func (fm frontMatter) list(key string) []string {
	if fm == nil {
		return nil
	}
	switch v := fm[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return nil
}
