package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExtractContacts verifies ordered unique extraction of links, emails and phones
func TestExtractContacts(t *testing.T) {
	text := `Send CV to hr@bank.example. Apply at https://bank.example/careers?id=7.
	Call +966 50 123 4567 or email hr@bank.example again. Posted 2024-01-15.`

	got := ExtractContacts(text)
	assert.Equal(t, []string{
		"hr@bank.example",
		"https://bank.example/careers?id=7",
		"+966 50 123 4567",
	}, got)
}

func TestExtractContacts_None(t *testing.T) {
	assert.Empty(t, ExtractContacts("no contacts here"))
}

func TestIsEmailIsPhone(t *testing.T) {
	assert.True(t, IsEmail("mailto:a@b.co"))
	assert.False(t, IsEmail("https://a.b"))
	assert.True(t, IsPhone("+966501234567"))
	assert.False(t, IsPhone("2024-01-15"))
}

func TestExtractLabeled(t *testing.T) {
	assert.Equal(t, "Riyadh", ExtractLabeled("Job Location: Riyadh | Full time", LocationLabels))
	assert.Equal(t, "2024-02-01", ExtractLabeled("الموعد النهائي: 2024-02-01\nmore", DeadlineLabels))
	assert.Equal(t, "", ExtractLabeled("nothing", LocationLabels))
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "Riyadh, Saudi Arabia", NormalizeLocation("Location: Riyadh, riyadh , Saudi Arabia"))
	assert.Equal(t, "", NormalizeLocation("   "))
}
