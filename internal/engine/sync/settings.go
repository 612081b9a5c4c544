package sync

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"syncline/internal/platform/models"
)

// Per-provider schemas for the settings blob. Credentials stay opaque;
// settings are the one operator-editable structure worth validating before
// a bad value breaks a scheduled run at 3am.
var settingsSchemas = map[models.Provider]string{
	models.ProviderGong: `{
		"type": "object",
		"properties": {
			"workspace_id": {"type": "string", "minLength": 1},
			"include_media": {"type": "boolean"}
		},
		"additionalProperties": false
	}`,
	models.ProviderFireflies: `{
		"type": "object",
		"properties": {
			"team_id": {"type": "string", "minLength": 1},
			"min_duration_seconds": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`,
	models.ProviderHubspot: `{
		"type": "object",
		"properties": {
			"portal_id": {"type": "string", "minLength": 1},
			"object_types": {
				"type": "array",
				"items": {"type": "string", "enum": ["contacts", "companies", "deals", "calls"]}
			}
		},
		"additionalProperties": false
	}`,
	models.ProviderSalesforce: `{
		"type": "object",
		"properties": {
			"instance_url": {"type": "string", "minLength": 1},
			"sobjects": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"additionalProperties": false
	}`,
}

var compiledSchemas = func() map[models.Provider]*jsonschema.Schema {
	out := make(map[models.Provider]*jsonschema.Schema, len(settingsSchemas))
	for provider, raw := range settingsSchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("settings schema for %s: %v", provider, err))
		}
		compiler := jsonschema.NewCompiler()
		name := string(provider) + "_settings.json"
		if err := compiler.AddResource(name, doc); err != nil {
			panic(fmt.Sprintf("settings schema for %s: %v", provider, err))
		}
		sch, err := compiler.Compile(name)
		if err != nil {
			panic(fmt.Sprintf("settings schema for %s: %v", provider, err))
		}
		out[provider] = sch
	}
	return out
}()

// ValidateSettings checks a settings blob against the provider's schema.
// An empty blob is always valid.
func ValidateSettings(provider models.Provider, settings []byte) error {
	if len(settings) == 0 {
		return nil
	}

	sch, ok := compiledSchemas[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(settings))
	if err != nil {
		return fmt.Errorf("settings is not valid JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("settings rejected for %s: %w", provider, err)
	}
	return nil
}
