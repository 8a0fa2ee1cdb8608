package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appointmenthandler "github.com/jwalitptl/physiocapture-api/internal/handler/appointment"
	audithandler "github.com/jwalitptl/physiocapture-api/internal/handler/audit"
	authhandler "github.com/jwalitptl/physiocapture-api/internal/handler/auth"
	branchhandler "github.com/jwalitptl/physiocapture-api/internal/handler/branch"
	"github.com/jwalitptl/physiocapture-api/internal/handler/health"
	patienthandler "github.com/jwalitptl/physiocapture-api/internal/handler/patient"
	"github.com/jwalitptl/physiocapture-api/internal/handler/prometheus"
	transferhandler "github.com/jwalitptl/physiocapture-api/internal/handler/transfer"
	userhandler "github.com/jwalitptl/physiocapture-api/internal/handler/user"
	"github.com/jwalitptl/physiocapture-api/internal/middleware"
	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository/memory"
	"github.com/jwalitptl/physiocapture-api/internal/service/appointment"
	"github.com/jwalitptl/physiocapture-api/internal/service/audit"
	authsvc "github.com/jwalitptl/physiocapture-api/internal/service/auth"
	"github.com/jwalitptl/physiocapture-api/internal/service/medical"
	"github.com/jwalitptl/physiocapture-api/internal/service/patient"
	"github.com/jwalitptl/physiocapture-api/internal/service/tenant"
	"github.com/jwalitptl/physiocapture-api/internal/service/transfer"
	"github.com/jwalitptl/physiocapture-api/internal/service/user"
	"github.com/jwalitptl/physiocapture-api/pkg/auth"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
	"github.com/jwalitptl/physiocapture-api/pkg/metrics"
	"github.com/jwalitptl/physiocapture-api/pkg/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    apperrors.ErrorCode `json:"code"`
		Message string              `json:"message"`
		Field   string              `json:"field"`
	} `json:"error"`
}

type api struct {
	t      *testing.T
	engine *gin.Engine
	tokens auth.JWTService
	store  *memory.Store

	clinic                         uuid.UUID
	branchA, branchB               *model.Branch
	network, managerB              *model.User
	therapistT, therapistU, recepA *model.User
	patient                        *model.Patient
}

const password = "correct-horse-battery"

func newAPI(t *testing.T) *api {
	t.Helper()
	a := &api{t: t, store: memory.New(), clinic: uuid.New()}
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	hash, err := hasher.Hash(password)
	require.NoError(t, err)

	clinic := &model.Clinic{Name: "Physio", TaxID: "11222333000181", Active: true, MaxTherapists: 10}
	clinic.ID = a.clinic
	a.branchA = &model.Branch{ClinicID: a.clinic, Name: "Centro", Active: true}
	a.branchA.ID = uuid.New()
	a.branchB = &model.Branch{ClinicID: a.clinic, Name: "Norte", Active: true}
	a.branchB.ID = uuid.New()

	staff := func(role model.Role, branch *model.Branch, email string) *model.User {
		u := &model.User{ClinicID: a.clinic, Role: role, Email: email, Name: email, PasswordHash: hash, Active: true}
		u.ID = uuid.New()
		if branch != nil {
			u.BranchID = &branch.ID
		}
		if role == model.RoleTherapist {
			license := "CREFITO-" + email
			u.LicenseID = &license
		}
		return u
	}
	a.network = staff(model.RoleNetworkManager, nil, "network@physio.test")
	a.managerB = staff(model.RoleBranchManager, a.branchB, "manager-b@physio.test")
	a.therapistT = staff(model.RoleTherapist, a.branchA, "t@physio.test")
	a.therapistU = staff(model.RoleTherapist, a.branchB, "u@physio.test")
	a.recepA = staff(model.RoleReceptionist, a.branchA, "reception-a@physio.test")

	complaint := "lower back pain"
	a.patient = &model.Patient{ClinicID: a.clinic, FullName: "Maria", CPF: "52998224725", ChiefComplaint: &complaint, Active: true}
	a.patient.ID = uuid.New()
	a.patient.AssignTo(a.therapistT)

	a.store.Seed(clinic, a.branchA, a.branchB, a.network, a.managerB, a.therapistT, a.therapistU, a.recepA, a.patient)

	a.tokens, err = auth.NewJWTService("router-secret", "physiocapture", time.Hour)
	require.NoError(t, err)

	s := a.store
	registry := promclient.NewRegistry()
	m := metrics.NewWithRegistry(registry, "physio", "test")
	auditor := audit.NewService(s.Audit())
	authService := authsvc.NewService(s.Users(), a.tokens, hasher, auditor)
	transfers := transfer.NewService(s, s.Patients(), s.Users(), s.History(), s.Requests(), s.Outbox(), auditor, m)
	authMW := middleware.NewAuthMiddleware(a.tokens, authService, time.Minute, m)

	handlers := Handlers{
		Health:      health.NewHandler(okPinger{}),
		Auth:        authhandler.NewHandler(authService),
		Branch:      branchhandler.NewHandler(tenant.NewService(s, s.Clinics(), s.Branches(), s.Users(), hasher, auditor)),
		User:        userhandler.NewHandler(user.NewService(s.Users(), s.Clinics(), s.Branches(), s.Patients(), hasher, auditor), authMW),
		Patient:     patienthandler.NewHandler(patient.NewService(s, s.Patients(), s.Users(), auditor, model.CPFScopeClinic), transfers, medical.NewService(s.MedicalRecords(), s.Patients(), auditor)),
		Transfer:    transferhandler.NewHandler(transfers),
		Appointment: appointmenthandler.NewHandler(appointment.NewService(s.Appointments(), s.Patients(), auditor)),
		Audit:       audithandler.NewHandler(auditor),
	}

	r, err := NewRouter(authMW, prometheus.New(registry), handlers, RouterConfig{
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		Security:       middleware.DefaultSecurityConfig(),
	})
	require.NoError(t, err)
	a.engine = r.Engine()
	return a
}

func (a *api) token(u *model.User) string {
	tok, _, err := a.tokens.GenerateAccessToken(u)
	require.NoError(a.t, err)
	return tok
}

func (a *api) do(method, path string, as *model.User, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(as))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestHealthAndMetrics(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodGet, "/api/v1/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, "/api/v1/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, code)

	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestLoginAndMe(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/auth/login", nil, gin.H{"email": "t@physio.test", "password": password})
	require.Equal(t, http.StatusOK, code)
	var tokens model.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/capabilities", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"request_transfers":true`)
	assert.Contains(t, w.Body.String(), `"manage_users":false`)

	code, env = a.do(http.MethodPost, "/api/v1/auth/login", nil, gin.H{"email": "t@physio.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.ErrUnauthorized, env.Error.Code)

	code, _ = a.do(http.MethodGet, "/api/v1/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestPatientViewsDependOnRole(t *testing.T) {
	a := newAPI(t)
	path := "/api/v1/patients/" + a.patient.ID.String()

	code, env := a.do(http.MethodGet, path, a.therapistT, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "lower back pain")

	code, env = a.do(http.MethodGet, path, a.recepA, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "lower back pain")

	code, _ = a.do(http.MethodGet, path, a.therapistU, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, path+"/records", a.recepA, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = a.do(http.MethodGet, "/api/v1/patients/not-a-uuid", a.network, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "id", env.Error.Field)
}

func TestTransferRequestFlow(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/transfer-requests", a.therapistT, gin.H{
		"patient_id":      a.patient.ID,
		"to_therapist_id": a.therapistU.ID,
		"reason":          "moving closer to work",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Data))
	var created model.TransferRequest
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, model.TransferStatusPending, created.Status)

	code, _ = a.do(http.MethodPost, "/api/v1/transfer-requests", a.recepA, gin.H{
		"patient_id":      a.patient.ID,
		"to_therapist_id": a.therapistU.ID,
		"reason":          "x",
	})
	assert.Equal(t, http.StatusForbidden, code)

	base := "/api/v1/transfer-requests/" + created.ID.String()
	code, env = a.do(http.MethodPost, base+"/reject", a.managerB, gin.H{"note": " "})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "note", env.Error.Field)

	code, env = a.do(http.MethodPost, base+"/approve", a.managerB, nil)
	require.Equal(t, http.StatusOK, code)
	var approved model.TransferRequest
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, model.TransferStatusApproved, approved.Status)

	code, env = a.do(http.MethodPost, base+"/cancel", a.therapistT, nil)
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.ErrStateConflict, env.Error.Code)

	code, env = a.do(http.MethodGet, "/api/v1/patients/"+a.patient.ID.String()+"/transfer-history", a.network, nil)
	require.Equal(t, http.StatusOK, code)
	var history []model.PatientTransferHistory
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, a.therapistU.ID, history[0].ToTherapistID)
}

func TestBindingErrorsNameTheField(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/transfer-requests", a.therapistT, gin.H{
		"patient_id":      "nope",
		"to_therapist_id": a.therapistU.ID,
		"reason":          "x",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperrors.ErrValidation, env.Error.Code)
	assert.Equal(t, "patient_id", env.Error.Field)
}

func TestGuardsFollowCapabilities(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodGet, "/api/v1/users", a.therapistT, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/users/"+a.therapistT.ID.String(), a.therapistT, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodGet, "/api/v1/appointments", a.therapistT, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/api/v1/appointments", a.therapistT, gin.H{})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/audit/logs/entity/patient/"+a.patient.ID.String(), a.managerB, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/audit/logs/entity/patient/"+a.patient.ID.String(), a.network, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env := a.do(http.MethodGet, "/api/v1/branches", a.managerB, nil)
	require.Equal(t, http.StatusOK, code)
	var branches []model.Branch
	require.NoError(t, json.Unmarshal(env.Data, &branches))
	require.Len(t, branches, 1)
	assert.Equal(t, a.branchB.ID, branches[0].ID)
}

func TestDeactivatedUserIsLockedOut(t *testing.T) {
	a := newAPI(t)

	code, _ := a.do(http.MethodGet, "/api/v1/me", a.therapistU, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodDelete, "/api/v1/users/"+a.therapistU.ID.String(), a.managerB, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodGet, "/api/v1/me", a.therapistU, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}
