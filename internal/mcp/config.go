package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// configSearchPaths is the discovery order named in spec §6.
func configSearchPaths(workspace string) []string {
	return []string{
		filepath.Join(workspace, ".floyd", "mcp.json"),
		filepath.Join(workspace, ".floyd", "mcp.config.json"),
		filepath.Join(workspace, "mcp.config.json"),
	}
}

// LoadConfig reads the first file in the discovery chain that exists and
// parses. A path ending in .json is parsed as JSON only, and all three
// candidate names end in .json, so YAML content is not accepted; the YAML
// branch applies only to other extensions. A missing or unparsable file
// is skipped in favour of the next candidate; when none is usable the
// result is empty (spec §6).
func LoadConfig(workspace string) []ServerConfig {
	for _, path := range configSearchPaths(workspace) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc configDocument
		if strings.HasSuffix(path, ".json") {
			if err := json.Unmarshal(data, &doc); err != nil {
				continue
			}
		} else if err := yaml.Unmarshal(data, &doc); err != nil {
			continue
		}
		servers := make([]ServerConfig, 0, len(doc.Servers))
		for _, s := range doc.Servers {
			if s.IsEnabled() {
				servers = append(servers, s)
			}
		}
		return servers
	}
	return nil
}
