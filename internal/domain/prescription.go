package domain

import (
	"time"
)

// RxStatus represents the dispensing status of a prescription
type RxStatus string

const (
	RxActive    RxStatus = "ACTIVE"
	RxHold      RxStatus = "HOLD"
	RxCancelled RxStatus = "CANCELLED"
	RxExpired   RxStatus = "EXPIRED"
	RxOnOrder   RxStatus = "ON_ORDER"
	RxReady     RxStatus = "READY"
)

// IsValid returns true if the status is one the backend understands
func (s RxStatus) IsValid() bool {
	switch s {
	case RxActive, RxHold, RxCancelled, RxExpired, RxOnOrder, RxReady:
		return true
	default:
		return false
	}
}

// ContactInfo holds the name and contact details shared by patients and prescribers
type ContactInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// FullName returns "First Last", trimmed when either part is missing
func (c ContactInfo) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Patient is a person prescriptions are written for
type Patient struct {
	ID          int64       `json:"patientId"`
	Contact     ContactInfo `json:"contact"`
	DateOfBirth string      `json:"dateOfBirth,omitempty"`
	Sex         string      `json:"sex,omitempty"`
}

// Prescriber is the clinician who wrote a prescription
type Prescriber struct {
	ID      int64       `json:"prescriberId"`
	Contact ContactInfo `json:"contact"`
	NPI     string      `json:"npi"`
}

// Medication is a catalogue entry that prescription items refer to
type Medication struct {
	ID          int64  `json:"medicationId"`
	Name        string `json:"name"`
	GenericName string `json:"genericName,omitempty"`
	BrandName   string `json:"brandName,omitempty"`
}

// PrescriptionItem is a single medication line on a prescription
type PrescriptionItem struct {
	ID           int64   `json:"itemId,omitempty"`
	MedicationID int64   `json:"medicationId" validate:"gt=0"`
	Name         string  `json:"name,omitempty"`
	Strength     string  `json:"strength,omitempty"`
	Dose         string  `json:"dose,omitempty"`
	Quantity     float64 `json:"quantity" validate:"gt=0"`
	Sig          string  `json:"sig" validate:"required"`
	Refills      int     `json:"refills" validate:"gte=0,lte=11"`
}

// Prescription is the in-progress record authored through the workflow.
// The prescription store owns it; everything else works on snapshots.
type Prescription struct {
	ID          int64              `json:"prescriptionId"`
	RxNumber    string             `json:"rxNumber,omitempty"`
	Patient     *Patient           `json:"patient"`
	Prescriber  *Prescriber        `json:"prescriber"`
	Medications []PrescriptionItem `json:"medications"`
	Status      RxStatus           `json:"status"`
	Notes       string             `json:"notes,omitempty"`
	Priority    bool               `json:"priority"`
	WrittenAt   time.Time          `json:"writtenAt"`
}

// NewPrescription creates an empty draft with backend defaults applied
func NewPrescription() *Prescription {
	return &Prescription{
		Status:      RxActive,
		Medications: make([]PrescriptionItem, 0),
		WrittenAt:   time.Now(),
	}
}

// Clone returns a deep copy of the prescription
func (p *Prescription) Clone() *Prescription {
	if p == nil {
		return nil
	}

	clone := *p
	if p.Patient != nil {
		patient := *p.Patient
		clone.Patient = &patient
	}
	if p.Prescriber != nil {
		prescriber := *p.Prescriber
		clone.Prescriber = &prescriber
	}
	clone.Medications = make([]PrescriptionItem, len(p.Medications))
	copy(clone.Medications, p.Medications)

	return &clone
}

// HasPatient returns true if a patient is attached
func (p *Prescription) HasPatient() bool {
	return p != nil && p.Patient != nil
}

// HasPrescriber returns true if a prescriber is attached
func (p *Prescription) HasPrescriber() bool {
	return p != nil && p.Prescriber != nil
}

// MedicationCount returns the number of medication lines
func (p *Prescription) MedicationCount() int {
	if p == nil {
		return 0
	}
	return len(p.Medications)
}
