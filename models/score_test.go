package models

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

func TestScoreComponentColumnTypes(t *testing.T) {
	s, err := schema.Parse(&ScoreComponent{}, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("schema.Parse() error = %v", err)
	}

	tests := []struct {
		field string
		want  string
	}{
		{"RawValue", "decimal(5,2)"},
		{"Weight", "decimal(6,5)"},
		{"Contribution", "decimal(5,2)"},
	}
	for _, tt := range tests {
		f := s.LookUpField(tt.field)
		if f == nil {
			t.Fatalf("field %s not found", tt.field)
		}
		if got := f.TagSettings["TYPE"]; got != tt.want {
			t.Errorf("%s column type = %q, want %q", tt.field, got, tt.want)
		}
	}
}
