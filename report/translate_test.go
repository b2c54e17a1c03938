package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/reportlib/report"
)

func TestTranslations(t *testing.T) {
	s := initialized(t).session

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"fact sheet type", s.TranslateFactSheetType("ITComponent", report.Singular), "IT Component"},
		{"plural label", s.TranslateFactSheetType("Application", report.Plural), "Applications"},
		{"plural falls back to singular", s.TranslateFactSheetType("ITComponent", report.Plural), "IT Component"},
		{"unknown type", s.TranslateFactSheetType("Process", report.Singular), "Process"},
		{"field", s.TranslateField("Application", "lifecycle"), "Lifecycle"},
		{"unknown field", s.TranslateField("Application", "owner"), "owner"},
		{"field of unknown type", s.TranslateField("Process", "lifecycle"), "lifecycle"},
		{"field value", s.TranslateFieldValue("Application", "lifecycle", "active"), "Active"},
		{"unknown field value", s.TranslateFieldValue("Application", "lifecycle", "phaseOut"), "phaseOut"},
		{"relation", s.TranslateRelation("relApplicationToITComponent"), "IT Components"},
		{"unknown relation", s.TranslateRelation("relToParent"), "relToParent"},
		{"relation field", s.TranslateRelationField("relApplicationToITComponent", "technicalSuitability"), "Suitability"},
		{"relation field value", s.TranslateRelationFieldValue("relApplicationToITComponent", "technicalSuitability", "perfect"), "Perfect"},
		{"unknown relation field value", s.TranslateRelationFieldValue("relToParent", "x", "y"), "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestTranslateCustomKey(t *testing.T) {
	s := initialized(t).session

	assert.Equal(t, "Report for Ada", s.TranslateCustomKey("title", map[string]interface{}{"name": "Ada"}))
	assert.Equal(t, "Report for {{ name }}", s.TranslateCustomKey("title", nil))
	assert.Equal(t, "High", s.TranslateCustomKey("legend.high", nil))
	assert.Equal(t, map[string]interface{}{"low": "Low", "high": "High"}, s.TranslateCustomKey("legend", nil))
	assert.Equal(t, float64(10), s.TranslateCustomKey("limit", nil))
	assert.Equal(t, "legend.medium", s.TranslateCustomKey("legend.medium", nil))
}

func TestTranslateCustomKeyIsLiteral(t *testing.T) {
	s := initialized(t).session

	assert.Equal(t, "Rate", s.TranslateCustomKey("rate|pct", nil))
	for _, key := range []string{"legend.h*", "legend.?igh", "legend.#", "legend.@reverse", "#(limit==10)", "rate"} {
		assert.Equal(t, key, s.TranslateCustomKey(key, nil), key)
	}
}

func TestTranslationsBeforeInit(t *testing.T) {
	s := report.NewSession(nil)
	assert.Equal(t, "Application", s.TranslateFactSheetType("Application", report.Plural))
	assert.Equal(t, "title", s.TranslateCustomKey("title", nil))
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		text   string
		values map[string]interface{}
		want   string
	}{
		{"{{a}} and {{ b }}", map[string]interface{}{"a": 1, "b": "two"}, "1 and two"},
		{"{{missing}} stays", map[string]interface{}{"a": 1}, "{{missing}} stays"},
		{"{{user.name}}", map[string]interface{}{"user.name": "ada"}, "ada"},
		{"no placeholders", nil, "no placeholders"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, report.Interpolate(tt.text, tt.values), tt.text)
	}
}
