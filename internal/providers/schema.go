package providers

// CleanSchemaForProvider strips the JSON-Schema keywords in
// unsupportedSchemaKeys, recursively. The same keys are stripped for every
// provider; providerName is not consulted.
func CleanSchemaForProvider(providerName string, schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return cleanSchemaValue(schema).(map[string]interface{})
}

var unsupportedSchemaKeys = map[string]bool{
	"$schema":              true,
	"additionalProperties": true,
	"title":                true,
	"examples":             true,
	"default":               true,
}

func cleanSchemaValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, sub := range val {
			if unsupportedSchemaKeys[k] {
				continue
			}
			out[k] = cleanSchemaValue(sub)
		}
		if out["type"] == nil {
			out["type"] = "object"
		}
		if out["type"] == "object" && out["properties"] == nil {
			out["properties"] = map[string]interface{}{}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cleanSchemaValue(item)
		}
		return out
	default:
		return v
	}
}

// CleanToolSchemas converts tool definitions to the OpenAI wire tool array,
// cleaning each parameter schema for the named provider (OpenAI-compatible
// backends vary in which keywords they tolerate, same as Anthropic).
func CleanToolSchemas(providerName string, tools []ToolDefinition) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  CleanSchemaForProvider(providerName, t.Function.Parameters),
			},
		})
	}
	return out
}
