package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil stays nil", nil, nil},
		{"empty stays empty", []string{}, []string{}},
		{"trims document ids", []string{" a1 ", "b2"}, []string{"a1", "b2"}},
		{"first occurrence wins", []string{"b2", "a1", "b2", " a1"}, []string{"b2", "a1"}},
		{"drops blanks", []string{"", "  ", "a1"}, []string{"a1"}},
		{"case is significant", []string{"CUST-A", "cust-a"}, []string{"CUST-A", "cust-a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil stays nil", nil, nil},
		{"folds case", []string{"Address_Proof", "address_proof"}, []string{"address_proof"}},
		{"trims and keeps order", []string{" ID_PROOF ", "employment_proof", "id_proof"}, []string{"id_proof", "employment_proof"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, SplitList("kafka-1:9092, kafka-2:9092,,kafka-1:9092"))
	assert.Equal(t, []string{"medium", "high"}, SplitList("medium,high"))
}
