package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Form selects the grammatical number of a fact sheet type label.
type Form int

const (
	Singular Form = iota
	Plural
)

// pluralSuffix marks the plural label of a fact sheet type in the translations.
const pluralSuffix = "_plural"

var interpolation = regexp.MustCompile(`{{\s*([\w.-]+)\s*}}`)

func (s *Session) translations() *Translations {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setup == nil {
		return &Translations{}
	}
	return &s.setup.Settings.Translations
}

// TranslateCustomKey looks up a dot-separated key in the report's custom
// translations. String values have {{name}} placeholders replaced from
// values; objects are returned as map[string]interface{}. A missing key
// returns the key itself.
func (s *Session) TranslateCustomKey(key string, values map[string]interface{}) interface{} {
	custom := s.translations().Custom
	if len(custom) == 0 {
		return key
	}
	res := gjson.GetBytes(custom, literalPath(key))
	if !res.Exists() {
		return key
	}
	if res.Type == gjson.String {
		return Interpolate(res.Str, values)
	}
	return res.Value()
}

// literalPath turns a dot-separated key into a gjson path whose segments
// match literally, so wildcards, queries and modifiers in keys are plain text.
func literalPath(key string) string {
	segments := strings.Split(key, ".")
	for i, seg := range segments {
		segments[i] = gjson.Escape(seg)
	}
	return strings.Join(segments, ".")
}

// Interpolate replaces {{name}} placeholders in text with values[name].
// Placeholders without a value are left as they are.
func Interpolate(text string, values map[string]interface{}) string {
	if len(values) == 0 {
		return text
	}
	return interpolation.ReplaceAllStringFunc(text, func(m string) string {
		name := interpolation.FindStringSubmatch(m)[1]
		v, ok := values[name]
		if !ok {
			return m
		}
		return fmt.Sprint(v)
	})
}

// TranslateFactSheetType returns the label of a fact sheet type. A missing
// plural label falls back to the singular one.
func (s *Session) TranslateFactSheetType(fsType string, form Form) string {
	types := s.translations().FactSheetTypes
	if form == Plural {
		if label, ok := types[fsType+pluralSuffix]; ok {
			return label
		}
	}
	if label, ok := types[fsType]; ok {
		return label
	}
	return fsType
}

// TranslateField returns the label of a fact sheet field.
func (s *Session) TranslateField(fsType, field string) string {
	if f, ok := s.translations().Fields[fsType][field]; ok && f.Label != "" {
		return f.Label
	}
	return field
}

// TranslateFieldValue returns the label of one value of an enumerated field.
func (s *Session) TranslateFieldValue(fsType, field, value string) string {
	if v, ok := s.translations().Fields[fsType][field].Values[value]; ok && v.Label != "" {
		return v.Label
	}
	return value
}

// TranslateRelation returns the label of a relation.
func (s *Session) TranslateRelation(relation string) string {
	if r, ok := s.translations().Relations[relation]; ok && r.Label != "" {
		return r.Label
	}
	return relation
}

// TranslateRelationField returns the label of a field on a relation.
func (s *Session) TranslateRelationField(relation, field string) string {
	if f, ok := s.translations().Relations[relation].Fields[field]; ok && f.Label != "" {
		return f.Label
	}
	return field
}

// TranslateRelationFieldValue returns the label of a value of a relation field.
func (s *Session) TranslateRelationFieldValue(relation, field, value string) string {
	if v, ok := s.translations().Relations[relation].Fields[field].Values[value]; ok && v.Label != "" {
		return v.Label
	}
	return value
}
