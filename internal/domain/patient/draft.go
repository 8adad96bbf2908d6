package patient

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/ehr/neonatal/pkg/clinicaldate"
)

// NewDraft returns an empty draft with the birth instant, vaccination dates
// and metabolic screening date and time seeded from now.
func NewDraft(now time.Time) Draft {
	date := now.Format(clinicaldate.StorageLayout)
	clock := now.Format(clinicaldate.TimeLayout)

	return Draft{
		Birth: Birth{
			Date:       date,
			Time:       clock,
			DaysOfLife: "0",
		},
		Screening: Screening{
			HepatitisB: Vaccination{Date: date},
			BCG:        Vaccination{Date: date},
			Metabolic:  MetabolicScreening{Date: date, Time: clock},
		},
	}
}

// With returns a copy of d with edit applied. d itself is left untouched.
func (d Draft) With(edit func(*Draft)) Draft {
	next := d.clone()
	edit(&next)
	return next
}

// WithBirth replaces the birth instant and recomputes the days-of-life value
// against now. An unparseable instant clears it.
func (d Draft) WithBirth(date, clock string, now time.Time) Draft {
	return d.With(func(n *Draft) {
		n.Birth.Date = date
		n.Birth.Time = clock
		n.Birth.DaysOfLife = daysOfLifeSnapshot(date, clock, now)
	})
}

// WithDischarge returns a copy of d with discharge data recorded.
func (d Draft) WithDischarge(dis Discharge) Draft {
	return d.With(func(n *Draft) {
		n.Discharge = &dis
	})
}

// Finalize freezes the days-of-life snapshot at save time. Nothing else is
// changed.
func (d Draft) Finalize(now time.Time) Draft {
	snapshot := daysOfLifeSnapshot(d.Birth.Date, d.Birth.Time, now)
	if snapshot == "" {
		return d.clone()
	}
	return d.With(func(n *Draft) {
		n.Birth.DaysOfLife = snapshot
	})
}

func (d Draft) clone() Draft {
	c := d
	if d.Discharge != nil {
		dis := *d.Discharge
		c.Discharge = &dis
	}
	return c
}

func daysOfLifeSnapshot(date, clock string, now time.Time) string {
	n, err := clinicaldate.DaysOfLife(date, clock, now)
	if err != nil {
		return ""
	}
	return fmt.Sprint(n)
}

// FieldError names one invalid field by its JSON path.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists every invalid field of a draft.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "invalid patient data: " + strings.Join(parts, ", ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the fields the intake form requires, the formats of the
// date and time fields that are present, and that every text field can be
// stored as written. Gated sub-fields are not cross-checked against their
// flags.
func Validate(d Draft) error {
	out := &ValidationError{}
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate draft: %w", err)
		}
		for _, fe := range verrs {
			// Namespace is "Draft.birth.date"; drop the type name.
			_, path, _ := strings.Cut(fe.Namespace(), ".")
			out.Fields = append(out.Fields, FieldError{Field: path, Rule: fe.Tag()})
		}
	}
	out.Fields = append(out.Fields, unstorableText(d)...)

	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

// checkText is the store-side guard for drafts that skipped Validate.
func checkText(d Draft) error {
	if fields := unstorableText(d); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// unstorableText lists text fields that JSON encoding would rewrite (invalid
// UTF-8 becomes U+FFFD) or that postgres text and jsonb refuse (NUL).
func unstorableText(d Draft) []FieldError {
	var out []FieldError
	walkText(reflect.ValueOf(d), "", func(path, s string) {
		switch {
		case !utf8.ValidString(s):
			out = append(out, FieldError{Field: path, Rule: "utf8"})
		case strings.IndexByte(s, 0) >= 0:
			out = append(out, FieldError{Field: path, Rule: "nul"})
		}
	})
	return out
}

func walkText(v reflect.Value, path string, fn func(path, s string)) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			walkText(v.Elem(), path, fn)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				continue
			}
			if name == "" {
				name = f.Name
			}
			if path != "" {
				name = path + "." + name
			}
			walkText(v.Field(i), name, fn)
		}
	case reflect.String:
		fn(path, v.String())
	}
}
