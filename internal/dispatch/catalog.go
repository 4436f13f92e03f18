package dispatch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the canned texts the bot posts.
//
// Fallback may contain {command} (the example keyword). Warning may contain
// {user} (the author mention).
type Catalog struct {
	PHIDescription string `yaml:"phiDescription"`
	NotImplemented string `yaml:"notImplemented"`
	Greeting       string `yaml:"greeting"`
	Fallback       string `yaml:"fallback"`
	Warning        string `yaml:"warning"`
}

func DefaultCatalog() Catalog {
	return Catalog{
		PHIDescription: "Protected health information (PHI) should *NOT* be posted to slack.\n" +
			"This includes but is not limited to *MRNs*, *Exam Dates*, *Accession Numbers* and *Patient Names*.\n" +
			" If you are not sure whether it can be posted, don't do it!",
		NotImplemented: "I'm sorry, I'm not programmed to respond to that yet.",
		Greeting:       "Hi there.",
		Fallback:       "Not sure what you mean. Use the *{command}* command.",
		Warning:        "WARNING! {user} It looks like you might have posted a patient Identifier. Please resolve now.",
	}
}

// LoadCatalog reads a YAML catalog. Keys missing from the file keep their
// default text.
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()
	data, err := os.ReadFile(path)
	if err != nil {
		return cat, fmt.Errorf("read responses file: %w", err)
	}

	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cat, fmt.Errorf("parse responses file %s: %w", path, err)
	}
	cat.merge(override)
	return cat, nil
}

func (c *Catalog) merge(o Catalog) {
	if o.PHIDescription != "" {
		c.PHIDescription = o.PHIDescription
	}
	if o.NotImplemented != "" {
		c.NotImplemented = o.NotImplemented
	}
	if o.Greeting != "" {
		c.Greeting = o.Greeting
	}
	if o.Fallback != "" {
		c.Fallback = o.Fallback
	}
	if o.Warning != "" {
		c.Warning = o.Warning
	}
}

func (c Catalog) fallback(exampleCommand string) string {
	return strings.ReplaceAll(c.Fallback, "{command}", exampleCommand)
}

func (c Catalog) warning(userMention string) string {
	return strings.ReplaceAll(c.Warning, "{user}", userMention)
}
