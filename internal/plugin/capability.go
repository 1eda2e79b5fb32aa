package plugin

import (
	"encoding/json"
	"fmt"
	"os"
)

// capabilitiesFile mirrors the two schemas found in the wild: "domain" may
// be a plain string or an object, and "capabilities" may be an array or a
// keyed object.
type capabilitiesFile struct {
	Name             string          `json:"name"`
	Domain           json.RawMessage `json:"domain"`
	CollaboratesWith []string        `json:"collaborates_with"`
	Capabilities     json.RawMessage `json:"capabilities"`
}

type domainObject struct {
	Primary          string   `json:"primary"`
	Subdomains       []string `json:"subdomains"`
	CollaboratesWith []string `json:"collaborates_with"`
}

type capabilityEntry struct {
	ID        string   `json:"id"`
	Verb      string   `json:"verb"`
	Artifacts []string `json:"artifacts"`
	Keywords  []string `json:"keywords"`
	Skill     string   `json:"skill"`
	Priority  int      `json:"priority"`

	// Alternative object-schema fields.
	Description  string   `json:"description"`
	Triggers     []string `json:"triggers"`
	Technologies []string `json:"technologies"`
	Patterns     []string `json:"patterns"`
}

const defaultPriority = 5

// ParseCapabilitiesFile parses a capabilities.json, returning the declared
// domain and its capability triples.
func ParseCapabilitiesFile(path string) (*Domain, []*Capability, *ParseError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, parseErrorf(path, "read: %v", err)
	}

	var file capabilitiesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, nil, parseErrorf(path, "invalid JSON: %v", err)
	}

	domain := parseDomain(&file)
	if domain.Name == "" {
		return nil, nil, parseErrorf(path, "missing required key %q", "domain")
	}

	caps, err := parseCapabilityEntries(file.Capabilities, domain.Name)
	if err != nil {
		return nil, nil, parseErrorf(path, "capabilities: %v", err)
	}
	return domain, caps, nil
}

func parseDomain(file *capabilitiesFile) *Domain {
	d := &Domain{CollaboratesWith: file.CollaboratesWith}

	var name string
	if json.Unmarshal(file.Domain, &name) == nil && name != "" {
		d.Name = name
		return d
	}

	var obj domainObject
	if json.Unmarshal(file.Domain, &obj) == nil {
		d.Name = obj.Primary
		d.Subdomains = obj.Subdomains
		if len(d.CollaboratesWith) == 0 {
			d.CollaboratesWith = obj.CollaboratesWith
		}
	}
	if d.Name == "" {
		d.Name = file.Name
	}
	return d
}

func parseCapabilityEntries(raw json.RawMessage, domain string) ([]*Capability, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []capabilityEntry
	if json.Unmarshal(raw, &list) == nil {
		caps := make([]*Capability, 0, len(list))
		for _, e := range list {
			priority := e.Priority
			if priority == 0 {
				priority = defaultPriority
			}
			caps = append(caps, &Capability{
				ID:        e.ID,
				Verb:      e.Verb,
				Domain:    domain,
				Artifacts: e.Artifacts,
				Keywords:  e.Keywords,
				Skill:     e.Skill,
				Priority:  priority,
			})
		}
		return caps, nil
	}

	var keyed map[string]capabilityEntry
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("neither array nor object schema: %w", err)
	}
	var caps []*Capability
	for id, e := range keyed {
		keywords := e.Triggers
		if len(keywords) == 0 && e.Description != "" {
			keywords = []string{e.Description}
		}
		artifacts := e.Technologies
		if len(artifacts) == 0 {
			artifacts = e.Patterns
		}
		caps = append(caps, &Capability{
			ID:        domain + "." + id,
			Verb:      "create",
			Domain:    domain,
			Artifacts: artifacts,
			Keywords:  keywords,
			Skill:     "/" + id,
			Priority:  defaultPriority,
		})
	}
	return caps, nil
}
