package toolloop

import (
	"errors"
	"strings"

	validator "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Validatable lets an argument type add checks a schema cannot express, such as relations
// between fields. Validate runs after schema validation and decoding; its error goes back to
// the model as a *ParseError.
type Validatable interface {
	Validate() error
}

// schemaValidator is satisfied by *validator.Schema.
type schemaValidator interface {
	Validate(v any) error
}

var messagePrinter = message.NewPrinter(language.English)

// validateAgainstSchema checks a value decoded by encoding/json.
func validateAgainstSchema(validate schemaValidator, v any) error {
	if err := validate.Validate(v); err != nil {
		return &ParseError{Message: "validation failed: " + validationDetails(err), Err: err}
	}
	return nil
}

// validationDetails flattens a validation error tree into "path: message" entries joined by "; ".
// Errors that are not *validator.ValidationError are rendered as-is.
func validationDetails(err error) string {
	var ve *validator.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var msgs []string
	collectLeaves(ve, &msgs)
	if len(msgs) == 0 {
		return err.Error()
	}
	return strings.Join(msgs, "; ")
}

func collectLeaves(ve *validator.ValidationError, out *[]string) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectLeaves(c, out)
		}
		return
	}
	path := "/" + strings.Join(ve.InstanceLocation, "/")
	*out = append(*out, path+": "+ve.ErrorKind.LocalizedString(messagePrinter))
}

// validateCustom calls Validate when args implements Validatable.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
