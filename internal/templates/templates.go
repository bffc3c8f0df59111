// Package templates renders every text the intake bot sends.
package templates

import (
	"fmt"
	"strings"
	"time"

	"github.com/mymunastore/aretenvi/internal/types"
)

const (
	DefaultBusinessName = "ARET Environmental Services"
	DefaultSupportPhone = "09152870616"
	DefaultServiceArea  = "Uyo, Akwa Ibom State"
	DefaultTimeZone     = "Africa/Lagos"
)

var (
	DefaultServiceOptions = []string{
		"Residential Waste Collection",
		"Commercial Waste Management",
		"Recycling Services",
		"Emergency Cleanup",
		"Skip Hire Services",
		"Other",
	}
	DefaultPropertyOptions = []string{
		"Residential",
		"Commercial",
		"Industrial",
	}
	DefaultContactTimeOptions = []string{
		"Morning (9AM-12PM)",
		"Afternoon (12PM-3PM)",
		"Evening (3PM-5PM)",
	}
)

type Config struct {
	BusinessName       string
	SupportPhone       string
	ServiceArea        string
	ServiceOptions     []string
	PropertyOptions    []string
	ContactTimeOptions []string
	Location           *time.Location
}

type Templates struct {
	cfg Config
}

func New(cfg Config) *Templates {
	if strings.TrimSpace(cfg.BusinessName) == "" {
		cfg.BusinessName = DefaultBusinessName
	}
	if strings.TrimSpace(cfg.SupportPhone) == "" {
		cfg.SupportPhone = DefaultSupportPhone
	}
	if strings.TrimSpace(cfg.ServiceArea) == "" {
		cfg.ServiceArea = DefaultServiceArea
	}
	if len(cfg.ServiceOptions) == 0 {
		cfg.ServiceOptions = DefaultServiceOptions
	}
	if len(cfg.PropertyOptions) == 0 {
		cfg.PropertyOptions = DefaultPropertyOptions
	}
	if len(cfg.ContactTimeOptions) == 0 {
		cfg.ContactTimeOptions = DefaultContactTimeOptions
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Location = loc
	}
	return &Templates{cfg: cfg}
}

func (t *Templates) ServiceOptions() []string     { return t.cfg.ServiceOptions }
func (t *Templates) PropertyOptions() []string    { return t.cfg.PropertyOptions }
func (t *Templates) ContactTimeOptions() []string { return t.cfg.ContactTimeOptions }

func (t *Templates) Prompt(step types.Step, fields types.Fields) string {
	switch step {
	case types.StepWelcome:
		return t.Welcome()
	case types.StepCollectName:
		return t.AskName()
	case types.StepCollectEmail:
		return t.AskEmail(fields.FullName)
	case types.StepCollectPhone:
		return t.AskPhone()
	case types.StepCollectService:
		return t.AskServiceType()
	case types.StepCollectProperty:
		return t.AskPropertyType()
	case types.StepCollectLocation:
		return t.AskLocation()
	case types.StepCollectTime:
		return t.AskContactTime()
	case types.StepCollectComments:
		return t.AskComments()
	case types.StepConfirmation:
		return t.Confirmation(fields)
	default:
		return t.Welcome()
	}
}

func (t *Templates) Welcome() string {
	return fmt.Sprintf(`👋 Welcome to %s!

I can register you for our waste management services right here in the chat. It takes about 2 minutes.

Reply "Start" to begin, or "Help" if you have questions.`, t.cfg.BusinessName)
}

func (t *Templates) Help() string {
	return fmt.Sprintf(`📞 %s Help

I collect the details we need to set up your service:
• Your contact information
• The service you need
• Your property type and location

You can type:
• "Start" to begin registration
• "Restart" to start over
• "Help" to see this message

Prefer a person? Call us on %s.`, t.cfg.BusinessName, t.cfg.SupportPhone)
}

func (t *Templates) AskName() string {
	return `Great, let's get started.

📝 What is your full name?`
}

func (t *Templates) AskEmail(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return `📧 What is your email address?
(We'll send your service confirmation there)`
	}
	return fmt.Sprintf(`Thank you, %s!

📧 What is your email address?
(We'll send your service confirmation there)`, name)
}

func (t *Templates) AskPhone() string {
	return `📱 What is the best phone number to reach you on?`
}

func (t *Templates) AskServiceType() string {
	return "🌱 Which service are you interested in?\n\n" +
		numbered(t.cfg.ServiceOptions) +
		"\n\nReply with the number or the service name."
}

func (t *Templates) AskPropertyType() string {
	return "🏠 What type of property is this for?\n\n" +
		numbered(t.cfg.PropertyOptions) +
		"\n\nReply with the number or the property type."
}

func (t *Templates) AskLocation() string {
	return fmt.Sprintf(`📍 What is your address in %s?
(This helps us plan your collection route)`, t.cfg.ServiceArea)
}

func (t *Templates) AskContactTime() string {
	return "⏰ Almost done! When is the best time to reach you?\n\n" +
		numbered(t.cfg.ContactTimeOptions) +
		"\n\nReply with the number or the time window."
}

func (t *Templates) AskComments() string {
	return `💬 Any additional comments or special requirements?
(Or type "Skip" to continue)`
}

func (t *Templates) Confirmation(fields types.Fields) string {
	return "Please confirm your details:\n\n" +
		summary(fields) +
		"\n\nIs this correct?\nReply \"Yes\" to confirm or \"Edit\" to make changes."
}

func (t *Templates) ConfirmationReprompt() string {
	return `Please reply "Yes" to confirm or "Edit" to make changes.`
}

func (t *Templates) EditInstruction() string {
	return `No problem. Your previous answers have been cleared.

To enter your information again, type "Start".`
}

func (t *Templates) Success(name, referenceNumber string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Client"
	}
	return fmt.Sprintf(`✅ Registration complete!

Thank you, %s. We have received your details.

📋 Reference Number: %s

What happens next:
• Our customer care team will review your request
• You'll receive a quote within 24 hours
• We'll contact you at your preferred time

Keep your reference number for any follow-up.`, name, referenceNumber)
}

func (t *Templates) TechnicalError() string {
	return fmt.Sprintf(`⚠️ We're experiencing a technical issue.

Don't worry, the details you have sent so far are safe.

Please try again in a moment, or call us on %s.`, t.cfg.SupportPhone)
}

func (t *Templates) Expired() string {
	return `⏰ Your previous registration session expired due to inactivity.

Type "Start" to begin a new registration or "Help" to reach our customer care team.`
}

// StaffNotification is the text forwarded to customer care when a registration is finalized.
func (t *Templates) StaffNotification(reg types.Registration) string {
	registeredAt := reg.CreatedAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}
	return "🆕 NEW CLIENT REGISTRATION\n\n" +
		"📋 Ref: " + reg.ReferenceNumber + "\n\n" +
		summary(reg.Fields) + "\n\n" +
		"🕐 Registered: " + registeredAt.In(t.cfg.Location).Format("Jan 2, 2006 3:04 PM") + "\n\n" +
		"👉 Please contact this client to provide a quote and schedule service."
}

func summary(fields types.Fields) string {
	comments := fields.Comments()
	if comments == "" {
		comments = "No comment"
	}
	lines := []string{
		"👤 Name: " + fields.FullName,
		"📧 Email: " + fields.Email,
		"📱 Phone: " + fields.Phone,
		"🌱 Service: " + fields.ServiceType,
		"🏠 Property: " + fields.PropertyType,
		"📍 Location: " + fields.Location,
		"⏰ Contact Time: " + fields.PreferredContactTime,
		"💬 Comments: " + comments,
	}
	return strings.Join(lines, "\n")
}

func numbered(options []string) string {
	lines := make([]string, 0, len(options))
	for i, option := range options {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, option))
	}
	return strings.Join(lines, "\n")
}
