package manifest

import "sort"

// attributes is the fixed set of keys a manifest may use, mapped to the
// display name shown on the catalog page. Adding a key is a code change.
var attributes = map[string]string{
	"project_one_line":      "Project One Line",
	"project_overview":      "Project Overview",
	"user_documentation":    "User Documentation",
	"user_changelog_recent": "User Changelog Recent",
	"contributor_overview":  "Contributor Overview",
	"core_maintainers":      "Core Maintainers",
	"link_to_webapp":        "Link to Webapp",
	"license":               "License",
	"citation":              "Citation",
}

// DisplayName returns the human-readable name for key.
func DisplayName(key string) (string, bool) {
	name, ok := attributes[key]
	return name, ok
}

// AllowedKeys returns the allowed attribute keys in sorted order.
func AllowedKeys() []string {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
