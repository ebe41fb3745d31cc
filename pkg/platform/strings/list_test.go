package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "only blanks", input: []string{"", " , ,"}, expected: nil},
		{name: "repeated params", input: []string{"p1", "p2"}, expected: []string{"p1", "p2"}},
		{name: "comma separated", input: []string{" p1 ,p2,, p3 "}, expected: []string{"p1", "p2", "p3"}},
		{name: "duplicates across params keep first position", input: []string{"p2,p1", "p2"}, expected: []string{"p2", "p1"}},
		{name: "case is preserved", input: []string{"Alice", "alice"}, expected: []string{"Alice", "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, splitList(tt.input, nil))
		})
	}
}

func TestSplitCodes(t *testing.T) {
	assert.Equal(t,
		[]string{"USER_LOGIN", "PATIENT_VIEWED"},
		SplitCodes([]string{"user_login, PATIENT_VIEWED", "USER_LOGIN"}))
	assert.Nil(t, SplitCodes([]string{" "}))
}
