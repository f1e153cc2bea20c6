package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticBankDirectory(t *testing.T) {
	dir := NewStaticBankDirectory("علی علوی")

	details, ok := dir.Lookup("6037991234567890")
	assert.True(t, ok)
	assert.Equal(t, "علی علوی", details.HolderName)
	assert.Equal(t, "IR123456789012345678901234", details.Sheba)
	assert.Equal(t, "سامان", details.BankName)

	_, ok = dir.Lookup("603799123456789")
	assert.False(t, ok, "15 characters is not an account identifier")
}
