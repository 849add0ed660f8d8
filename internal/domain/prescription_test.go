package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxStatus_IsValid(t *testing.T) {
	tests := []struct {
		status   RxStatus
		expected bool
	}{
		{RxActive, true},
		{RxHold, true},
		{RxCancelled, true},
		{RxExpired, true},
		{RxOnOrder, true},
		{RxReady, true},
		{"DRAFT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsValid())
		})
	}
}

func TestContactInfo_FullName(t *testing.T) {
	tests := []struct {
		name     string
		contact  ContactInfo
		expected string
	}{
		{"both parts", ContactInfo{FirstName: "Jane", LastName: "Doe"}, "Jane Doe"},
		{"first only", ContactInfo{FirstName: "Jane"}, "Jane"},
		{"last only", ContactInfo{LastName: "Doe"}, "Doe"},
		{"neither", ContactInfo{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.contact.FullName())
		})
	}
}

func TestNewPrescription(t *testing.T) {
	p := NewPrescription()

	assert.Equal(t, RxActive, p.Status)
	assert.NotNil(t, p.Medications)
	assert.Equal(t, 0, p.MedicationCount())
	assert.False(t, p.WrittenAt.IsZero())
	assert.False(t, p.HasPatient())
	assert.False(t, p.HasPrescriber())
}

func TestPrescription_CloneIsDeep(t *testing.T) {
	p := NewPrescription()
	p.Patient = &Patient{ID: 1, Contact: ContactInfo{FirstName: "Jane"}}
	p.Prescriber = &Prescriber{ID: 2, NPI: "1234567893"}
	p.Medications = append(p.Medications, PrescriptionItem{MedicationID: 3, Quantity: 30, Sig: "1 tab daily"})

	clone := p.Clone()
	require.Equal(t, p, clone)

	clone.Patient.Contact.FirstName = "John"
	clone.Prescriber.NPI = "0000000000"
	clone.Medications[0].Quantity = 60
	clone.Medications = append(clone.Medications, PrescriptionItem{MedicationID: 4})

	assert.Equal(t, "Jane", p.Patient.Contact.FirstName)
	assert.Equal(t, "1234567893", p.Prescriber.NPI)
	assert.Equal(t, 30.0, p.Medications[0].Quantity)
	assert.Equal(t, 1, p.MedicationCount())
}

func TestPrescription_NilSafe(t *testing.T) {
	var p *Prescription

	assert.Nil(t, p.Clone())
	assert.False(t, p.HasPatient())
	assert.False(t, p.HasPrescriber())
	assert.Equal(t, 0, p.MedicationCount())
}

func TestView_String(t *testing.T) {
	assert.Equal(t, "Login", ViewLogin.String())
	assert.Equal(t, "New Prescription", ViewWizard.String())
	assert.Equal(t, "Unknown", View(99).String())
}

func TestView_RequiresAuth(t *testing.T) {
	assert.False(t, ViewLogin.RequiresAuth())
	assert.True(t, ViewWizard.RequiresAuth())
}
