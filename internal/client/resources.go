package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/robertguss/rxflow-go/internal/domain"
)

// LoginResponse is returned by POST /auth/login
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token. The token is not stored on the
// client; the auth session decides what to keep.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, loginRequest{username, password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Patients

func (c *Client) GetPatient(ctx context.Context, id int64) (*domain.Patient, error) {
	var p domain.Patient
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/patients/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SearchPatients(ctx context.Context, query string) ([]domain.Patient, error) {
	var patients []domain.Patient
	q := url.Values{"query": {query}}
	if err := c.do(ctx, http.MethodGet, "/patients/search", q, nil, &patients); err != nil {
		return nil, err
	}
	return patients, nil
}

// Prescribers

func (c *Client) GetPrescriber(ctx context.Context, id int64) (*domain.Prescriber, error) {
	var p domain.Prescriber
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/prescribers/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetPrescriberByNPI(ctx context.Context, npi string) (*domain.Prescriber, error) {
	var p domain.Prescriber
	path := "/prescribers/by-npi/" + url.PathEscape(npi)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SearchPrescribers(ctx context.Context, query string) ([]domain.Prescriber, error) {
	var prescribers []domain.Prescriber
	q := url.Values{"q": {query}}
	if err := c.do(ctx, http.MethodGet, "/prescribers/search", q, nil, &prescribers); err != nil {
		return nil, err
	}
	return prescribers, nil
}

// Medications

func (c *Client) ListMedications(ctx context.Context) ([]domain.Medication, error) {
	var meds []domain.Medication
	if err := c.do(ctx, http.MethodGet, "/medications", nil, nil, &meds); err != nil {
		return nil, err
	}
	return meds, nil
}

func (c *Client) GetMedication(ctx context.Context, id int64) (*domain.Medication, error) {
	var m domain.Medication
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/medications/%d", id), nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Prescriptions

func (c *Client) GetPrescription(ctx context.Context, id int64) (*domain.Prescription, error) {
	var p domain.Prescription
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/prescriptions/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListPrescriptionsByPatient(ctx context.Context, patientID int64) ([]domain.Prescription, error) {
	var list []domain.Prescription
	path := fmt.Sprintf("/prescriptions/by-patient/%d", patientID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) CreatePrescription(ctx context.Context, p *domain.Prescription) (*domain.Prescription, error) {
	var created domain.Prescription
	if err := c.do(ctx, http.MethodPost, "/prescriptions", nil, p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePrescription replaces the stored prescription; this is the autosave write path
func (c *Client) UpdatePrescription(ctx context.Context, id int64, p *domain.Prescription) (*domain.Prescription, error) {
	var updated domain.Prescription
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/prescriptions/%d", id), nil, p, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) UpdatePrescriptionStatus(ctx context.Context, id int64, status domain.RxStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid prescription status %q", status)
	}
	path := fmt.Sprintf("/prescriptions/%d/status/%s", id, status)
	return c.do(ctx, http.MethodPatch, path, nil, nil, nil)
}

func (c *Client) DeletePrescription(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/prescriptions/%d", id), nil, nil, nil)
}
