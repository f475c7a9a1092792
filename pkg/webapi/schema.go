package webapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// queryRequestSchema validates POST /api/query bodies before any field is
// read. max_turns bounds are enforced again by the orchestrator against the
// configured cap; the schema only rejects shapes that can never be valid.
const queryRequestSchema = `{
	"type": "object",
	"properties": {
		"prompt": {
			"type": "string",
			"minLength": 1
		},
		"max_turns": {
			"type": "integer",
			"minimum": 1
		}
	},
	"required": ["prompt"],
	"additionalProperties": false
}`

var queryRequestLoader = gojsonschema.NewStringLoader(queryRequestSchema)

// validateQueryRequest checks a raw JSON body against the request schema.
func validateQueryRequest(body []byte) error {
	result, err := gojsonschema.Validate(queryRequestLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("request body is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid request body: %s", strings.Join(problems, "; "))
}
