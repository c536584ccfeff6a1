package ingest

import (
	"encoding/json"
	"slices"
)

// Field names a persisted event attribute that a human may protect.
type Field string

// Fields the scraper is able to write.
const (
	FieldTitle            Field = "title"
	FieldCity             Field = "city"
	FieldCountry          Field = "country"
	FieldStart            Field = "start"
	FieldStartTimeKnown   Field = "startTimeKnown"
	FieldEnd              Field = "end"
	FieldEndTimeKnown     Field = "endTimeKnown"
	FieldLocation         Field = "location"
	FieldOriginalLocation Field = "originalLocation"
	FieldCoordinates      Field = "coordinates"
	FieldLanguage         Field = "language"
	FieldURL              Field = "url"
	FieldAttendees        Field = "attendees"
	FieldCategories       Field = "categories"
)

// ScraperFields lists every field a draft can supply, in write order.
var ScraperFields = []Field{
	FieldTitle,
	FieldCity,
	FieldCountry,
	FieldStart,
	FieldStartTimeKnown,
	FieldEnd,
	FieldEndTimeKnown,
	FieldLocation,
	FieldOriginalLocation,
	FieldCoordinates,
	FieldLanguage,
	FieldURL,
	FieldAttendees,
	FieldCategories,
}

// FieldSet is the set of fields a human has edited. It only ever grows.
type FieldSet map[Field]struct{}

// NewFieldSet builds a set from names.
func NewFieldSet(names ...string) FieldSet {
	s := make(FieldSet, len(names))
	for _, n := range names {
		s[Field(n)] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s FieldSet) Has(f Field) bool {
	_, ok := s[f]
	return ok
}

// Add inserts f.
func (s FieldSet) Add(f Field) {
	s[f] = struct{}{}
}

// Names returns the sorted field names.
func (s FieldSet) Names() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, string(f))
	}
	slices.Sort(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

// UnmarshalJSON decodes an array of names.
func (s *FieldSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewFieldSet(names...)
	return nil
}
