package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Setting is one leaf of the config tree, addressed by its dot path
// (e.g. "alerts.redactMode").
type Setting struct {
	Path  string
	Value any
}

// asTree renders cfg through its JSON tags so paths match the file on disk.
func asTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// lookup walks path and returns the parent map of the leaf plus the leaf key.
func lookup(tree map[string]any, path string) (map[string]any, string, error) {
	if path == "" {
		return nil, "", fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	node := tree
	for _, key := range parts[:len(parts)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("unknown config section %q in %s", key, path)
		}
		node = child
	}
	leaf := parts[len(parts)-1]
	if _, ok := node[leaf]; !ok {
		return nil, "", fmt.Errorf("unknown config key: %s", path)
	}
	return node, leaf, nil
}

// GetByPath returns the value at path. Sections are returned as maps.
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := asTree(cfg)
	if err != nil {
		return nil, err
	}
	parent, leaf, err := lookup(tree, path)
	if err != nil {
		return nil, err
	}
	return parent[leaf], nil
}

// SetByPath parses raw according to the type of the existing value at path
// and stores it in cfg. Only existing leaves can be set, so a misspelt key
// is an error instead of a silent no-op.
func SetByPath(cfg *Config, path, raw string) error {
	tree, err := asTree(cfg)
	if err != nil {
		return err
	}
	parent, leaf, err := lookup(tree, path)
	if err != nil {
		return err
	}

	switch parent[leaf].(type) {
	case map[string]any:
		return fmt.Errorf("%s is a section, not a value", path)
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s expects true or false, got %q", path, raw)
		}
		parent[leaf] = b
	case float64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("%s expects an integer, got %q", path, raw)
		}
		parent[leaf] = n
	default:
		parent[leaf] = raw
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// Settings flattens cfg into leaves sorted by path.
func Settings(cfg *Config) []Setting {
	tree, err := asTree(cfg)
	if err != nil {
		return nil
	}
	var out []Setting
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			if sub, ok := v.(map[string]any); ok {
				walk(prefix+k+".", sub)
				continue
			}
			out = append(out, Setting{Path: prefix + k, Value: v})
		}
	}
	walk("", tree)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Sanitize returns a copy of cfg with every platform credential masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	for _, secret := range []*string{
		&c.Channels.Slack.BotToken,
		&c.Channels.Slack.AppToken,
		&c.Channels.Discord.Token,
		&c.Channels.Telegram.Token,
	} {
		*secret = maskSecret(*secret)
	}
	return &c
}

// maskSecret keeps the first and last four characters. Placeholders like
// ${SLACK_BOT_TOKEN} hold no secret and are shown as is.
func maskSecret(s string) string {
	switch {
	case s == "", strings.HasPrefix(s, "${"):
		return s
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}
