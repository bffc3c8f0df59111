package types

import "strings"

// Fields holds the answers collected during intake. Empty strings and a nil
// AdditionalComments mean "not collected yet".
type Fields struct {
	FullName             string  `json:"full_name,omitempty"`
	Email                string  `json:"email,omitempty"`
	Phone                string  `json:"phone,omitempty"`
	ServiceType          string  `json:"service_type,omitempty"`
	PropertyType         string  `json:"property_type,omitempty"`
	Location             string  `json:"location,omitempty"`
	PreferredContactTime string  `json:"preferred_contact_time,omitempty"`
	AdditionalComments   *string `json:"additional_comments,omitempty"`
}

// Merge applies the non-empty values of patch on top of f. Values already
// present in f are only replaced by non-empty patch values.
func (f Fields) Merge(patch Fields) Fields {
	out := f
	if strings.TrimSpace(patch.FullName) != "" {
		out.FullName = patch.FullName
	}
	if strings.TrimSpace(patch.Email) != "" {
		out.Email = patch.Email
	}
	if strings.TrimSpace(patch.Phone) != "" {
		out.Phone = patch.Phone
	}
	if strings.TrimSpace(patch.ServiceType) != "" {
		out.ServiceType = patch.ServiceType
	}
	if strings.TrimSpace(patch.PropertyType) != "" {
		out.PropertyType = patch.PropertyType
	}
	if strings.TrimSpace(patch.Location) != "" {
		out.Location = patch.Location
	}
	if strings.TrimSpace(patch.PreferredContactTime) != "" {
		out.PreferredContactTime = patch.PreferredContactTime
	}
	if patch.AdditionalComments != nil {
		comments := *patch.AdditionalComments
		out.AdditionalComments = &comments
	}
	return out
}

func (f Fields) Clone() Fields {
	out := f
	if f.AdditionalComments != nil {
		comments := *f.AdditionalComments
		out.AdditionalComments = &comments
	}
	return out
}

func (f Fields) IsZero() bool {
	return f.FullName == "" &&
		f.Email == "" &&
		f.Phone == "" &&
		f.ServiceType == "" &&
		f.PropertyType == "" &&
		f.Location == "" &&
		f.PreferredContactTime == "" &&
		f.AdditionalComments == nil
}

// Comments returns the collected comments or "" when the client skipped them.
func (f Fields) Comments() string {
	if f.AdditionalComments == nil {
		return ""
	}
	return *f.AdditionalComments
}
