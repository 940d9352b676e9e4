package content

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrSchema is returned when a versioned bank envelope, or one of its
// records, fails validation.
var ErrSchema = errors.New("does not match bank schema")

const envelopeSchemaURL = "schema://permitprep/bank-envelope.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "questions"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "exported_at": {"type": "string"},
    "questions": {"type": "array", "items": {"$ref": "#/$defs/question"}}
  },
  "$defs": {
    "question": {
      "type": "object",
      "required": ["id", "jurisdiction", "prompt", "options", "correct_answer"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "jurisdiction": {"type": "string", "minLength": 2},
        "category": {"type": "string"},
        "prompt": {"type": "string", "minLength": 1},
        "options": {
          "type": "array",
          "minItems": 4,
          "maxItems": 4,
          "items": {
            "type": "object",
            "required": ["letter", "text"],
            "properties": {
              "letter": {"enum": ["A", "B", "C", "D"]},
              "text": {"type": "string", "minLength": 1}
            }
          }
        },
        "correct_answer": {"enum": ["A", "B", "C", "D"]},
        "explanation": {"type": "string"}
      }
    }
  }
}`

// headerSchema covers only the envelope fields, so one bad record does not
// reject the file. Records are checked one by one against the question def.
const headerSchemaURL = "schema://permitprep/bank-header.json"

const headerSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "questions"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "exported_at": {"type": "string"},
    "questions": {"type": "array"}
  }
}`

type schemaSet struct {
	envelope *jsonschema.Schema
	header   *jsonschema.Schema
	question *jsonschema.Schema
}

var (
	compileOnce sync.Once
	compiled    schemaSet
	compileErr  error
)

func schemas() (*schemaSet, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for url, src := range map[string]string{envelopeSchemaURL: envelopeSchema, headerSchemaURL: headerSchema} {
			def, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
			if err != nil {
				compileErr = fmt.Errorf("parse schema %s: %w", url, err)
				return
			}
			if err := c.AddResource(url, def); err != nil {
				compileErr = fmt.Errorf("add resource %s: %w", url, err)
				return
			}
		}
		if compiled.envelope, compileErr = c.Compile(envelopeSchemaURL); compileErr != nil {
			return
		}
		if compiled.header, compileErr = c.Compile(headerSchemaURL); compileErr != nil {
			return
		}
		compiled.question, compileErr = c.Compile(envelopeSchemaURL + "#/$defs/question")
	})
	if compileErr != nil {
		return nil, compileErr
	}
	return &compiled, nil
}

func validate(pick func(*schemaSet) *jsonschema.Schema, data string) error {
	set, err := schemas()
	if err != nil {
		return err
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := pick(set).Validate(parsed); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// ValidateEnvelope checks a whole versioned export file, every record
// included, against the canonical bank schema.
func ValidateEnvelope(data []byte) error {
	return validate(func(s *schemaSet) *jsonschema.Schema { return s.envelope }, string(data))
}

func validateHeader(data []byte) error {
	return validate(func(s *schemaSet) *jsonschema.Schema { return s.header }, string(data))
}

func validateRecord(raw string) error {
	return validate(func(s *schemaSet) *jsonschema.Schema { return s.question }, raw)
}
