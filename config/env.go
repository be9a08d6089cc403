package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in s. Unset or
// empty variables without a default expand to "".
func ExpandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		parts := envRef.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[3]
	})
}

// expandNode expands environment references in every scalar of the tree.
func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		expanded := ExpandEnv(n.Value)
		if expanded != n.Value {
			n.Value = expanded
			// Re-resolve so that "${PORT}" may decode into an int.
			n.Tag = ""
			n.Style = 0
		}
		return
	}
	for _, c := range n.Content {
		expandNode(c)
	}
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are ignored; existing variables are kept.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}
