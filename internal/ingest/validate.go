package ingest

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lazypower/rapport/internal/graph"
)

// FieldError describes one rejected field of a boundary event.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for a malformed interaction. It unwraps to
// graph.ErrMalformedInteraction.
type ValidationError struct {
	RawRef string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", graph.ErrMalformedInteraction, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return graph.ErrMalformedInteraction
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(interactionRules, graph.Interaction{})
	return v
}

// The journal keeps nanoseconds since the epoch in an int64.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// interactionRules covers the cross-field rules tags cannot express.
func interactionRules(sl validator.StructLevel) {
	in := sl.Current().Interface().(graph.Interaction)

	if in.Timestamp.IsZero() {
		sl.ReportError(in.Timestamp, "timestamp", "Timestamp", "required", "")
	} else if in.Timestamp.Before(minTimestamp) || in.Timestamp.After(maxTimestamp) {
		sl.ReportError(in.Timestamp, "timestamp", "Timestamp", "time_range", "")
	}
	if in.From == in.To {
		sl.ReportError(in.To, "to", "To", "ne_from", "")
	}
	if (in.From == graph.SelfID) == (in.To == graph.SelfID) {
		sl.ReportError(in.From, "from", "From", "one_side_self", "")
	}
	for _, p := range in.Participants {
		if p == graph.SelfID {
			sl.ReportError(in.Participants, "participants", "Participants", "excludes_self", "")
			break
		}
	}
}

var messages = map[string]string{
	"required":      "is required",
	"max":           "is too long",
	"gte":           "is below the allowed minimum",
	"lte":           "is above the allowed maximum",
	"ne_from":       "must differ from from",
	"one_side_self": "exactly one of from/to must be self",
	"excludes_self": "must not contain self",
	"time_range":    "is outside the supported range",
}

// Validate checks a boundary event and returns a *ValidationError listing
// every rejected field.
func (s *Service) Validate(in graph.Interaction) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{RawRef: in.RawRef, Fields: []FieldError{{Field: "body", Message: err.Error()}}}
	}
	out := &ValidationError{RawRef: in.RawRef}
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "failed " + fe.Tag()
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}
