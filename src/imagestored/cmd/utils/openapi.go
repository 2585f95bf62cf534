package utils

import (
	_ "embed"
	"fmt"
	"log/slog"
	"slices"

	"github.com/q-controller/imagestore/src/pkg/images"
	"gopkg.in/yaml.v3"
)

const (
	Tag        = "ImageService"
	PathPrefix = "/v1"
)

//go:embed docs/openapi.yaml
var openAPISpecs string

func GenerateOpenAPISpecs() (string, error) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal([]byte(openAPISpecs), &spec); err != nil {
		return "", fmt.Errorf("failed to parse OpenAPI spec: %w", err)
	}

	tags, _ := spec["tags"].([]interface{})
	if !slices.ContainsFunc(tags, func(t interface{}) bool { return t == Tag }) {
		tags = append(tags, Tag)
	}
	spec["tags"] = tags

	mergeSection(spec, "paths", images.GetOpenAPISpec(PathPrefix, Tag))
	mergeSection(spec, "components", images.GetOpenAPIComponents())

	bytes, bytesErr := yaml.Marshal(spec)
	if bytesErr != nil {
		return "", fmt.Errorf("failed to marshal OpenAPI spec: %w", bytesErr)
	}
	return string(bytes), nil
}

func mergeSection(spec map[string]interface{}, key, fragment string) {
	var values map[string]interface{}
	if unmarshalErr := yaml.Unmarshal([]byte(fragment), &values); unmarshalErr != nil {
		slog.Warn("Failed to unmarshal OpenAPI fragment", "section", key, "error", unmarshalErr)
		return
	}

	section, ok := spec[key].(map[string]interface{})
	if !ok {
		section = map[string]interface{}{}
		spec[key] = section
	}
	for k, v := range values {
		section[k] = v
	}
}
