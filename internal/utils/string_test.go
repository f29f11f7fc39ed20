package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmailSubject(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Re: hello", "hello"},
		{"RE: Fwd: hello", "hello"},
		{"Re[2]: hello", "hello"},
		{"  plain  ", "plain"},
		{"Regarding: x", "Regarding: x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmailSubject(tt.in), tt.in)
	}
}

func TestNormalizeMessageID(t *testing.T) {
	assert.Equal(t, "abc@example.com", NormalizeMessageID(" <abc@example.com> "))
}

func TestGenerateNanoIDWithPrefix(t *testing.T) {
	id := GenerateNanoIDWithPrefix("tkt", 12)
	assert.Len(t, id, 16)
	assert.Equal(t, "tkt_", id[:4])
}

func TestStringPtrOrNil(t *testing.T) {
	assert.Nil(t, StringPtrOrNil("  "))
	assert.Equal(t, "a", *StringPtrOrNil("a"))
}
