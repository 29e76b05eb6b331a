package config

import (
	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

type yamlParser struct{}

// YAMLParser returns a koanf parser for YAML configuration files.
func YAMLParser() koanf.Parser {
	return yamlParser{}
}

func (yamlParser) Unmarshal(data []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

func (yamlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(m)
}
