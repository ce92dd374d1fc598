package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/go-mcp-broker/clients"
)

// SeedClient is one registry entry from the client seed file. Secrets are
// plaintext in the file and hashed before they reach the registry.
type SeedClient struct {
	ID           string   `yaml:"id"`
	Type         string   `yaml:"type"`
	Name         string   `yaml:"name"`
	Secret       string   `yaml:"secret"`
	RedirectURIs []string `yaml:"redirectURIs"`
	Scopes       []string `yaml:"scopes"`
}

type seedFile struct {
	Clients []SeedClient `yaml:"clients"`
}

// LoadClientSeed parses a YAML seed file into registry clients.
func LoadClientSeed(path string) ([]*clients.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[config.LoadClientSeed] read")
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "[config.LoadClientSeed] unmarshal")
	}

	seeded := make([]*clients.Client, 0, len(file.Clients))
	for _, sc := range file.Clients {
		client := &clients.Client{
			ID:           sc.ID,
			Type:         clients.ClientType(sc.Type),
			Name:         sc.Name,
			RedirectURIs: sc.RedirectURIs,
			Scopes:       sc.Scopes,
		}
		if sc.Secret != "" {
			hash, err := clients.HashSecret(sc.Secret)
			if err != nil {
				return nil, errors.Wrapf(err, "[config.LoadClientSeed] hash secret for %q", sc.ID)
			}
			client.SecretHash = hash
		}
		seeded = append(seeded, client)
	}
	return seeded, nil
}
