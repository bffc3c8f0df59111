package templates

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mymunastore/aretenvi/internal/types"
)

func TestPromptCoversEveryCollectingStep(t *testing.T) {
	tpl := New(Config{})
	for _, step := range types.Steps {
		if step == types.StepCompleted {
			continue
		}
		assert.NotEmpty(t, tpl.Prompt(step, types.Fields{}), "step %s", step)
	}
	assert.Equal(t, tpl.Welcome(), tpl.Prompt(types.Step("bogus"), types.Fields{}))
}

func TestChoicePromptsListOptionsInOrder(t *testing.T) {
	tpl := New(Config{PropertyOptions: []string{"Residential", "Commercial", "Industrial"}})
	text := tpl.AskPropertyType()
	assert.Contains(t, text, "1. Residential\n2. Commercial\n3. Industrial")

	services := tpl.AskServiceType()
	for i, option := range DefaultServiceOptions {
		assert.Contains(t, services, option)
		if i > 0 {
			assert.Less(t, strings.Index(services, DefaultServiceOptions[i-1]), strings.Index(services, option))
		}
	}
}

func TestConfirmationRendersCollectedFields(t *testing.T) {
	tpl := New(Config{})
	fields := types.Fields{
		FullName:             "Jane Doe",
		Email:                "jane@x.com",
		Phone:                "+2349152870616",
		ServiceType:          "Recycling Services",
		PropertyType:         "Commercial",
		Location:             "12 Oron Road, Uyo",
		PreferredContactTime: "Morning (9AM-12PM)",
	}
	text := tpl.Confirmation(fields)
	for _, want := range []string{"Jane Doe", "jane@x.com", "+2349152870616", "Recycling Services", "Commercial", "12 Oron Road, Uyo", "Morning (9AM-12PM)", "No comment", `"Yes"`, `"Edit"`} {
		assert.Contains(t, text, want)
	}

	comments := "Gate code 1234"
	fields.AdditionalComments = &comments
	assert.Contains(t, tpl.Confirmation(fields), "Gate code 1234")
}

func TestSuccessCarriesReference(t *testing.T) {
	tpl := New(Config{})
	text := tpl.Success("Jane Doe", "ARET-261015-7KQ4M")
	assert.Contains(t, text, "ARET-261015-7KQ4M")
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, tpl.Success("", "REF"), "Client")
}

func TestConfigOverridesDefaults(t *testing.T) {
	tpl := New(Config{BusinessName: "Acme Waste", SupportPhone: "0800", ServiceArea: "Lagos"})
	assert.Contains(t, tpl.Welcome(), "Acme Waste")
	assert.Contains(t, tpl.Help(), "0800")
	assert.Contains(t, tpl.TechnicalError(), "0800")
	assert.Contains(t, tpl.AskLocation(), "Lagos")
}

func TestStaffNotification(t *testing.T) {
	tpl := New(Config{Location: time.UTC})
	reg := types.Registration{
		ReferenceNumber: "ARET-261015-7KQ4M",
		Fields:          types.Fields{FullName: "Jane Doe", Email: "jane@x.com"},
		CreatedAt:       time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC),
	}
	text := tpl.StaffNotification(reg)
	assert.Contains(t, text, "ARET-261015-7KQ4M")
	assert.Contains(t, text, "Jane Doe")
	assert.Contains(t, text, "Oct 15, 2026 2:30 PM")
}
