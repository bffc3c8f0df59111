package registration

import (
	"time"

	"github.com/mymunastore/aretenvi/internal/types"
)

type registrationRow struct {
	ID                   string    `gorm:"primaryKey;size:64"`
	ReferenceNumber      string    `gorm:"size:32;not null;uniqueIndex"`
	ConversationID       string    `gorm:"size:64;not null;uniqueIndex"`
	CorrelationKey       string    `gorm:"size:64;not null;index"`
	FullName             string    `gorm:"size:255;not null"`
	Email                string    `gorm:"size:255;not null"`
	Phone                string    `gorm:"size:32;not null"`
	ServiceType          string    `gorm:"size:128;not null"`
	PropertyType         string    `gorm:"size:128;not null"`
	Location             string    `gorm:"type:text;not null"`
	PreferredContactTime string    `gorm:"size:128;not null"`
	AdditionalComments   *string   `gorm:"type:text"`
	RegistrationSource   string    `gorm:"size:64;not null"`
	Status               string    `gorm:"size:32;not null;index"`
	CreatedAt            time.Time `gorm:"not null;index"`
}

func (registrationRow) TableName() string {
	return "client_registrations"
}

func (r registrationRow) toRegistration() types.Registration {
	reg := types.Registration{
		ID:              r.ID,
		ReferenceNumber: r.ReferenceNumber,
		ConversationID:  r.ConversationID,
		CorrelationKey:  r.CorrelationKey,
		Fields: types.Fields{
			FullName:             r.FullName,
			Email:                r.Email,
			Phone:                r.Phone,
			ServiceType:          r.ServiceType,
			PropertyType:         r.PropertyType,
			Location:             r.Location,
			PreferredContactTime: r.PreferredContactTime,
		},
		Source:    r.RegistrationSource,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if r.AdditionalComments != nil {
		comments := *r.AdditionalComments
		reg.Fields.AdditionalComments = &comments
	}
	return reg
}

func registrationRowFromRegistration(reg types.Registration) registrationRow {
	f := reg.Fields.Clone()
	return registrationRow{
		ID:                   reg.ID,
		ReferenceNumber:      reg.ReferenceNumber,
		ConversationID:       reg.ConversationID,
		CorrelationKey:       reg.CorrelationKey,
		FullName:             f.FullName,
		Email:                f.Email,
		Phone:                f.Phone,
		ServiceType:          f.ServiceType,
		PropertyType:         f.PropertyType,
		Location:             f.Location,
		PreferredContactTime: f.PreferredContactTime,
		AdditionalComments:   f.AdditionalComments,
		RegistrationSource:   reg.Source,
		Status:               reg.Status,
		CreatedAt:            reg.CreatedAt,
	}
}
