package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohitkumar/ticketflow/model"
	"gopkg.in/yaml.v3"
)

type Format string

const JSON_FORMAT Format = "json"
const YAML_FORMAT Format = "yaml"

func DecodeGraph(data []byte, format Format) (model.Graph, error) {
	var g model.Graph
	var err error
	switch format {
	case YAML_FORMAT:
		err = yaml.Unmarshal(data, &g)
	case JSON_FORMAT, "":
		err = json.Unmarshal(data, &g)
	default:
		return g, fmt.Errorf("unknown graph format %q", format)
	}
	if err != nil {
		return g, fmt.Errorf("decoding %s graph: %w", format, err)
	}
	return g, nil
}

// LoadGraphFile reads a graph from path, picking the format by extension.
func LoadGraphFile(path string) (model.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Graph{}, err
	}
	return DecodeGraph(data, FormatOf(path))
}

func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML_FORMAT
	default:
		return JSON_FORMAT
	}
}
