package fibre

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ChannelSpec declares the element kind of one named channel.
type ChannelSpec struct {
	Kind        Kind
	Description string
}

// ChannelSpecs maps channel names to their spec.
type ChannelSpecs map[string]ChannelSpec

// SetSpec is the contract of a function: the channels it requires and
// the ones it accepts on top of them.
type SetSpec struct {
	Required ChannelSpecs
	Optional ChannelSpecs
}

// Validate checks `set` against `spec`, see `WriterSet.Validate`.
func (spec SetSpec) Validate(set Set) error {
	return validateSet(set.entries(), spec.Required, spec.Optional)
}

type channelSpecDoc struct {
	Type        string `yaml:"type" validate:"required,oneof=string strings int integer integers float floats bool boolean booleans byte bytes null none"`
	Description string `yaml:"description" validate:"max=1024"`
}

type channelSpecDocs map[string]channelSpecDoc

type setSpecDoc struct {
	Required channelSpecDocs `yaml:"required" validate:"dive,keys,min=1,max=128,endkeys"`
	Optional channelSpecDocs `yaml:"optional" validate:"dive,keys,min=1,max=128,endkeys"`
}

var validate = validator.New()

// LoadSetSpec reads a YAML spec document from `r`.
//
//	required:
//	  numbers:
//	    type: int
//	    description: the values to sum
//	optional:
//	  verbose:
//	    type: bool
//
// Every problem found in the document is reported, wrapped with
// `ErrInvalidSpecDocument`.
func LoadSetSpec(r io.Reader) (SetSpec, error) {
	var doc setSpecDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return SetSpec{}, fmt.Errorf("%w: %w", ErrInvalidSpecDocument, err)
	}

	if err := validate.Struct(&doc); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return SetSpec{}, fmt.Errorf("%w: %w", ErrInvalidSpecDocument, err)
		}
		var merr *multierror.Error
		for _, fe := range fieldErrs {
			merr = multierror.Append(merr, fmt.Errorf("%w: %s", ErrInvalidSpecDocument, formatFieldError(fe)))
		}
		return SetSpec{}, merr.ErrorOrNil()
	}

	required, err := doc.Required.specs()
	if err != nil {
		return SetSpec{}, err
	}
	optional, err := doc.Optional.specs()
	if err != nil {
		return SetSpec{}, err
	}
	return SetSpec{Required: required, Optional: optional}, nil
}

func (docs channelSpecDocs) specs() (ChannelSpecs, error) {
	out := make(ChannelSpecs, len(docs))
	for _, name := range slices.Sorted(maps.Keys(docs)) {
		doc := docs[name]
		k, err := ParseKind(doc.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: channel %q: %w", ErrInvalidSpecDocument, name, err)
		}
		out[name] = ChannelSpec{Kind: k, Description: doc.Description}
	}
	return out, nil
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Namespace(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Namespace(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Namespace(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Namespace(), fe.Tag())
	}
}
