// Package website mines company websites for contact details: homepage
// plus discovered contact pages, tel:/mailto: links, contact-section
// text, with a per-domain lookup table for sites that render their
// contact info client-side.
package website

import (
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// KnownEntry is the curated contact set for one domain.
type KnownEntry struct {
	Phones []KnownPhone `yaml:"phones"`
	Email  string       `yaml:"email"`
}

// KnownPhone is one curated phone number with its role description.
type KnownPhone struct {
	Number string `yaml:"number"`
	Kind   string `yaml:"kind"`
}

// KnownContacts maps domains (without www) to curated contact details.
// It covers sites whose contact pages are rendered entirely in the
// browser and yield nothing to plain HTTP extraction.
type KnownContacts struct {
	entries map[string]KnownEntry
}

// defaultKnown ships the entries the engine has needed so far. A YAML
// file loaded at startup extends or overrides it.
var defaultKnown = map[string]KnownEntry{
	"kai.id": {
		Phones: []KnownPhone{
			{Number: "121", Kind: "Customer Service Hotline"},
			{Number: "(021) 121", Kind: "Customer Service Hotline"},
			{Number: "022-4230031", Kind: "Bandung Head Office"},
			{Number: "(0274) 589685", Kind: "Yogyakarta DAOP 6 Office"},
		},
		Email: "cs@kai.id",
	},
}

// NewKnownContacts returns the built-in table.
func NewKnownContacts() *KnownContacts {
	entries := make(map[string]KnownEntry, len(defaultKnown))
	for k, v := range defaultKnown {
		entries[k] = v
	}
	return &KnownContacts{entries: entries}
}

// LoadKnownContacts merges a YAML file over the built-in table. The file
// is a mapping of domain to entry.
func LoadKnownContacts(path string) (*KnownContacts, error) {
	kc := NewKnownContacts()
	if path == "" {
		return kc, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read known contacts %s", path)
	}

	var loaded map[string]KnownEntry
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, eris.Wrapf(err, "parse known contacts %s", path)
	}
	for domain, entry := range loaded {
		kc.entries[normalizeDomain(domain)] = entry
	}
	return kc, nil
}

// Lookup returns the curated entry for a site URL, if one exists.
func (kc *KnownContacts) Lookup(siteURL string) (KnownEntry, bool) {
	domain := domainOf(siteURL)
	if domain == "" {
		return KnownEntry{}, false
	}
	entry, ok := kc.entries[domain]
	return entry, ok
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
}

func domainOf(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Host == "" {
		return normalizeDomain(siteURL)
	}
	return normalizeDomain(u.Host)
}
