package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema is the JSON schema every config document must satisfy before
// unmarshalling. Unknown top-level keys are rejected to catch typos early.
const configSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"owner": {"type": "string", "minLength": 1},
		"data_dir": {"type": "string"},
		"workspace_path": {"type": "string"},
		"database": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"path": {"type": "string"}
			}
		},
		"embedding": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"provider": {"type": "string", "enum": ["gemini", "openai", "local"]},
				"api_key": {"type": "string"}
			}
		},
		"chunking": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"target_tokens": {"type": "integer", "minimum": 0},
				"overlap_tokens": {"type": "integer", "minimum": 0}
			}
		},
		"search": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"vector_weight": {"type": "number", "minimum": 0},
				"bm25_weight": {"type": "number", "minimum": 0},
				"max_results": {"type": "integer", "minimum": 1},
				"snippet_max_chars": {"type": "integer", "minimum": 1}
			}
		},
		"sync": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"watch": {"type": "boolean"},
				"schedule": {"type": "string"}
			}
		},
		"logging": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
				"file": {"type": "string"},
				"redaction": {"type": "boolean"}
			}
		}
	}
}`

// ValidateDocument checks a config file against the embedded schema.
func ValidateDocument(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return ValidateDocumentBytes(data)
}

// ValidateDocumentBytes checks raw JSON against the embedded schema.
func ValidateDocumentBytes(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, e := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += e.String()
		}
		return fmt.Errorf("schema validation errors: %s", errMsg)
	}

	return nil
}

// ValidateAPIKey validates an API key format for the configured provider.
func ValidateAPIKey(key, provider string) error {
	if provider == "local" {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "gemini":
		if !strings.HasPrefix(key, "AIza") {
			return fmt.Errorf("invalid Gemini API key format (should start with AIza)")
		}
	}

	return nil
}
