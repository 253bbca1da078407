package probe

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"csvload/internal/schema"
)

// Kind is the classification of a single sampled value.
type Kind int

const (
	KindEmpty Kind = iota
	KindInteger
	KindDecimal
	KindDate
	KindOther
)

var (
	integerLiteral = regexp.MustCompile(`^[+-]?\d+$`)
	decimalLiteral = regexp.MustCompile(`^[+-]?\d+\.\d+$`)
)

// Classify returns the kind of v after trimming. Numeric literals are
// checked before dates; an integer literal that does not fit in 64 bits and
// a decimal that overflows float64 are KindOther so that their column stays
// TEXT instead of losing the value.
func Classify(v string) Kind {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return KindEmpty
	case integerLiteral.MatchString(v):
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return KindOther
		}
		return KindInteger
	case decimalLiteral.MatchString(v):
		if f, err := strconv.ParseFloat(v, 64); err != nil || math.IsInf(f, 0) {
			return KindOther
		}
		return KindDecimal
	}
	if _, ok := schema.ParseDate(v); ok {
		return KindDate
	}
	return KindOther
}

// InferType classifies a column from at most sampleLimit samples
// (sampleLimit <= 0 uses all of them). Precedence, first match wins:
//
//	no samples or all empty          -> TEXT
//	all non-empty integer            -> INTEGER
//	all non-empty integer or decimal -> FLOAT
//	all non-empty date               -> DATE
//	anything else                    -> TEXT
func InferType(samples []string, sampleLimit int) schema.TypeTag {
	if sampleLimit > 0 && len(samples) > sampleLimit {
		samples = samples[:sampleLimit]
	}

	var t Tally
	for _, s := range samples {
		t.Add(Classify(s))
	}
	return t.Type()
}

// Tally accumulates value kinds for one column so each value is classified
// once. The zero value is ready to use.
type Tally struct {
	ints, decs, dates, others int
}

// Add counts one classified value.
func (t *Tally) Add(k Kind) {
	switch k {
	case KindInteger:
		t.ints++
	case KindDecimal:
		t.decs++
	case KindDate:
		t.dates++
	case KindOther:
		t.others++
	}
}

// NonEmpty is the number of non-empty values added.
func (t *Tally) NonEmpty() int { return t.ints + t.decs + t.dates + t.others }

// Type applies the InferType precedence to the counted kinds.
func (t *Tally) Type() schema.TypeTag {
	n := t.NonEmpty()
	switch {
	case n == 0:
		return schema.Text
	case t.ints == n:
		return schema.Integer
	case t.ints+t.decs == n:
		return schema.Float
	case t.dates == n:
		return schema.Date
	default:
		return schema.Text
	}
}
