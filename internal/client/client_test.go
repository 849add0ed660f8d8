package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/robertguss/rxflow-go/internal/domain"
	"github.com/robertguss/rxflow-go/internal/tracing"
)

const testToken = "secret-token"

// fakeBackend is a minimal pharmacy API
type fakeBackend struct {
	lastAuth   atomic.Value
	lastBody   atomic.Value
	lastStatus atomic.Value
	updates    atomic.Int32
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.lastAuth.Store(r.Header.Get("Authorization"))
			next.ServeHTTP(w, r)
		})
	})

	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{Token: testToken, Username: req.Username, Role: "PHARMACIST"})
	})
	r.Get("/api/patients/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Patient{{ID: 7, Contact: domain.ContactInfo{FirstName: r.URL.Query().Get("query")}}})
	})
	r.Get("/api/patients/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "7" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "patient not found"})
			return
		}
		writeJSON(w, http.StatusOK, domain.Patient{ID: 7, Contact: domain.ContactInfo{FirstName: "Ada", LastName: "Lovelace"}})
	})
	r.Get("/api/prescribers/by-npi/{npi}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Prescriber{ID: 9, NPI: chi.URLParam(r, "npi")})
	})
	r.Get("/api/prescribers/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Prescriber{{ID: 9, Contact: domain.ContactInfo{LastName: r.URL.Query().Get("q")}}})
	})
	r.Get("/api/medications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []domain.Medication{{ID: 101, Name: "Amoxicillin"}, {ID: 102, Name: "Lisinopril"}})
	})
	r.Post("/api/prescriptions", func(w http.ResponseWriter, r *http.Request) {
		var p domain.Prescription
		_ = json.NewDecoder(r.Body).Decode(&p)
		p.ID = 42
		writeJSON(w, http.StatusCreated, p)
	})
	r.Put("/api/prescriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.updates.Add(1)
		var p domain.Prescription
		_ = json.NewDecoder(r.Body).Decode(&p)
		b.lastBody.Store(p)
		writeJSON(w, http.StatusOK, p)
	})
	r.Patch("/api/prescriptions/{id}/status/{status}", func(w http.ResponseWriter, r *http.Request) {
		b.lastStatus.Store(chi.URLParam(r, "status"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/api/prescriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already dispensed"})
	})
	r.Get("/api/prescriptions/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
	})
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeBackend) {
	t.Helper()

	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.router())
	t.Cleanup(srv.Close)

	logger, _ := logtest.NewNullLogger()
	base := []Option{WithLogger(logrus.NewEntry(logger))}
	return New(srv.URL+"/api/", append(base, opts...)...), backend
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	resp, err := c.Login(ctx, "jdoe", "pw")
	require.NoError(t, err)
	assert.Equal(t, testToken, resp.Token)
	assert.Equal(t, "PHARMACIST", resp.Role)
	assert.Empty(t, c.Token(), "login does not store the token")

	_, err = c.Login(ctx, "jdoe", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_SendsBearerToken(t *testing.T) {
	c, backend := newTestClient(t, WithToken(testToken))

	_, err := c.GetPatient(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+testToken, backend.lastAuth.Load())

	c.SetToken("")
	_, err = c.GetPatient(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "", backend.lastAuth.Load())
}

func TestClient_Lookups(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	patient, err := c.GetPatient(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", patient.Contact.FullName())

	patients, err := c.SearchPatients(ctx, "Ada")
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "Ada", patients[0].Contact.FirstName)

	prescriber, err := c.GetPrescriberByNPI(ctx, "1234567893")
	require.NoError(t, err)
	assert.Equal(t, "1234567893", prescriber.NPI)

	prescribers, err := c.SearchPrescribers(ctx, "House")
	require.NoError(t, err)
	require.Len(t, prescribers, 1)

	meds, err := c.ListMedications(ctx)
	require.NoError(t, err)
	assert.Len(t, meds, 2)
}

func TestClient_NotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.GetPatient(context.Background(), 8)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "patient not found", apiErr.Message)
	assert.Equal(t, "api error: status 404: patient not found", apiErr.Error())
}

func TestClient_Prescriptions(t *testing.T) {
	ctx := context.Background()
	c, backend := newTestClient(t)

	draft := domain.NewPrescription()
	draft.Patient = &domain.Patient{ID: 7}

	created, err := c.CreatePrescription(ctx, draft)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)
	assert.Equal(t, int64(7), created.Patient.ID)

	created.Notes = "call patient"
	_, err = c.UpdatePrescription(ctx, created.ID, created)
	require.NoError(t, err)
	assert.Equal(t, int32(1), backend.updates.Load())
	assert.Equal(t, "call patient", backend.lastBody.Load().(domain.Prescription).Notes)

	require.NoError(t, c.UpdatePrescriptionStatus(ctx, 42, domain.RxActive))
	assert.Equal(t, "ACTIVE", backend.lastStatus.Load())
	assert.Error(t, c.UpdatePrescriptionStatus(ctx, 42, "SHIPPED"))

	err = c.DeletePrescription(ctx, 42)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "already dispensed", apiErr.Message)
}

func TestClient_UnauthorizedClearsToken(t *testing.T) {
	c, _ := newTestClient(t, WithToken(testToken))

	var fired atomic.Int32
	c.OnUnauthorized(func() { fired.Add(1) })

	_, err := c.GetPrescription(context.Background(), 42)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, c.Token())
	assert.Equal(t, int32(1), fired.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, WithTimeout(20*time.Millisecond))
	_, err := c.ListMedications(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestClient_Ping(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.Ping(context.Background()))

	unreachable := New("http://127.0.0.1:1", WithTimeout(200*time.Millisecond))
	assert.Error(t, unreachable.Ping(context.Background()))
}

func TestClient_RequestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)).Tracer("test")
	c, _ := newTestClient(t, WithTracer(tracer))

	_, err := c.GetPatient(context.Background(), 7)
	require.NoError(t, err)
	_, err = c.GetPatient(context.Background(), 8)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "client.get", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String(tracing.HTTPPathKey, "/patients/7"))
	assert.Contains(t, spans[1].Attributes(), attribute.Int(tracing.HTTPStatusKey, http.StatusNotFound))
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"nope"}`, "nope"},
		{"error field", `{"error":"bad"}`, "bad"},
		{"plain text", "gateway exploded\n", "gateway exploded"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readErrorMessage(strings.NewReader(tt.body)))
		})
	}
}
