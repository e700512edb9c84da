package config

import "github.com/invopop/jsonschema"

// JSONSchema returns the JSON Schema of the config file, for editor completion.
func JSONSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
	}
	schema := r.Reflect(&Config{})
	schema.Title = "promptctl configuration"
	schema.Description = "Prompt sources, engine defaults and provider adapters for promptctl"
	return schema
}
