package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	res := Name("  Jane Doe ")
	require.True(t, res.Valid)
	assert.Equal(t, "Jane Doe", res.Value)

	for _, raw := range []string{"", " ", "J", "  J  "} {
		res := Name(raw)
		assert.False(t, res.Valid, "input %q", raw)
		assert.NotEmpty(t, res.Error)
	}
}

func TestEmail(t *testing.T) {
	assert.True(t, Email("a@b.co").Valid)
	assert.True(t, Email(" jane@x.com ").Valid)
	assert.Equal(t, "jane@x.com", Email(" jane@x.com ").Value)

	for _, raw := range []string{"not-an-email", "nope", "a@b", "a b@c.de", "@b.co", "a@b.co\nx@y.z"} {
		res := Email(raw)
		assert.False(t, res.Valid, "input %q", raw)
		assert.Contains(t, res.Error, "email")
	}
}

func TestPhoneNormalizesAcceptedForms(t *testing.T) {
	for _, raw := range []string{"09152870616", "+2349152870616", "2349152870616", "0915 287 0616", "+234-915-287-0616"} {
		res := Phone(raw)
		require.True(t, res.Valid, "input %q: %s", raw, res.Error)
		assert.Equal(t, "+2349152870616", res.Value, "input %q", raw)
	}
}

func TestPhoneRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"12345", "", "0915287061", "+2341152870616", "08252870616", "abc09152870616"} {
		res := Phone(raw)
		assert.False(t, res.Valid, "input %q", raw)
		assert.Contains(t, res.Error, "09152870616")
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+2348031234567", NormalizePhone("08031234567"))
	assert.Equal(t, "+2348031234567", NormalizePhone("2348031234567"))
	assert.Equal(t, "+2348031234567", NormalizePhone("+2348031234567"))
	assert.Equal(t, "+14155550100", NormalizePhone("+1 415 555 0100"))
	assert.True(t, IsPhone("0803 123 4567"))
	assert.False(t, IsPhone("+14155550100"))
}

func TestChoice(t *testing.T) {
	options := []string{"Residential", "Commercial", "Industrial"}

	for _, raw := range []string{"2", " 2 ", "commercial", "COMMERCIAL", "Commercial"} {
		res := Choice(raw, options)
		require.True(t, res.Valid, "input %q", raw)
		assert.Equal(t, "Commercial", res.Value)
	}

	for _, raw := range []string{"4", "0", "-1", "foo", "", "commercial property"} {
		res := Choice(raw, options)
		assert.False(t, res.Valid, "input %q", raw)
		assert.Contains(t, res.Error, "1-3")
	}
}

func TestLocation(t *testing.T) {
	assert.True(t, Location("12 Oron Road, Uyo").Valid)
	assert.False(t, Location("Uyo").Valid)
	assert.False(t, Location("  ab  ").Valid)
}

func TestComments(t *testing.T) {
	res := Comments("Please come on Mondays")
	require.True(t, res.Valid)
	assert.False(t, res.Skipped)
	assert.Equal(t, "Please come on Mondays", res.Value)

	for _, raw := range []string{"skip", "SKIP", " Skip "} {
		res := Comments(raw)
		require.True(t, res.Valid)
		assert.True(t, res.Skipped, "input %q", raw)
		assert.Empty(t, res.Value)
	}
}
