package providers

import (
	"fmt"
	"strings"

	"github.com/BaSui01/structflow/structured"
)

// BuildSystemPrompt 把 Schema 嵌入系统提示，要求模型只输出符合 Schema 的 JSON。
func BuildSystemPrompt(schema *structured.JSONSchema) (string, error) {
	schemaJSON, err := schema.ToJSONIndent()
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant that extracts structured data as JSON.\n\n")
	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. You MUST respond with valid JSON that conforms to the schema below.\n")
	sb.WriteString("2. Do NOT include any text before or after the JSON.\n")
	sb.WriteString("3. Do NOT wrap the JSON in markdown code blocks.\n")
	sb.WriteString("4. Ensure all required fields are present and have valid values.\n")
	sb.WriteString("5. Follow all constraints specified in the schema (enum values, min/max, patterns, etc.).\n\n")
	sb.WriteString("JSON Schema:\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n\nRespond with ONLY the JSON object.")
	return sb.String(), nil
}
