// Package memory is an in-process implementation of the repository
// interfaces. Service tests run against it. Transactions are serialized and
// roll back on error, and stored values are copied on every read and write.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physiocapture-api/internal/model"
	"github.com/jwalitptl/physiocapture-api/internal/repository"
	apperrors "github.com/jwalitptl/physiocapture-api/pkg/errors"
)

type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	failures map[string]error
	data
}

type data struct {
	clinics      map[uuid.UUID]model.Clinic
	branches     map[uuid.UUID]model.Branch
	users        map[uuid.UUID]model.User
	patients     map[uuid.UUID]model.Patient
	requests     map[uuid.UUID]model.TransferRequest
	appointments map[uuid.UUID]model.Appointment
	history      []model.PatientTransferHistory
	records      []model.MedicalRecord
	audit        []model.AuditLog
	outbox       []model.OutboxEvent
}

func New() *Store {
	return &Store{
		failures: map[string]error{},
		data: data{
			clinics:      map[uuid.UUID]model.Clinic{},
			branches:     map[uuid.UUID]model.Branch{},
			users:        map[uuid.UUID]model.User{},
			patients:     map[uuid.UUID]model.Patient{},
			requests:     map[uuid.UUID]model.TransferRequest{},
			appointments: map[uuid.UUID]model.Appointment{},
		},
	}
}

// WithTx serializes fn against other transactions and restores every table
// when fn returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.data.clone()
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// FailOn makes the named write return err until cleared with a nil err.
// Names are "<table>.<op>", e.g. "history.create".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// fail returns the injected error for op. Callers hold s.mu.
func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (d data) clone() data {
	return data{
		clinics:      cloneMap(d.clinics),
		branches:     cloneMap(d.branches),
		users:        cloneMap(d.users),
		patients:     cloneMap(d.patients),
		requests:     cloneMap(d.requests),
		appointments: cloneMap(d.appointments),
		history:      append([]model.PatientTransferHistory(nil), d.history...),
		records:      append([]model.MedicalRecord(nil), d.records...),
		audit:        append([]model.AuditLog(nil), d.audit...),
		outbox:       append([]model.OutboxEvent(nil), d.outbox...),
	}
}

func cloneMap[V any](m map[uuid.UUID]V) map[uuid.UUID]V {
	out := make(map[uuid.UUID]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) Clinics() repository.ClinicRepository { return clinicRepo{s} }
func (s *Store) Branches() repository.BranchRepository { return branchRepo{s} }
func (s *Store) Users() repository.UserRepository { return userRepo{s} }
func (s *Store) Patients() repository.PatientRepository { return patientRepo{s} }
func (s *Store) History() repository.TransferHistoryRepository { return historyRepo{s} }
func (s *Store) Requests() repository.TransferRequestRepository { return requestRepo{s} }
func (s *Store) MedicalRecords() repository.MedicalRecordRepository { return recordRepo{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentRepo{s} }
func (s *Store) Audit() repository.AuditRepository { return auditRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository { return outboxRepo{s} }

// Seed stores fixtures as given, without validation.
func (s *Store) Seed(values ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		switch v := v.(type) {
		case *model.Clinic:
			s.clinics[v.ID] = *v
		case *model.Branch:
			s.branches[v.ID] = *v
		case *model.User:
			s.users[v.ID] = *v
		case *model.Patient:
			s.patients[v.ID] = *v
		case *model.TransferRequest:
			s.requests[v.ID] = *v
		case *model.Appointment:
			s.appointments[v.ID] = *v
		default:
			panic(fmt.Sprintf("memory: cannot seed %T", v))
		}
	}
}

// HistoryCount returns the number of history rows for a patient.
func (s *Store) HistoryCount(patientID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.history {
		if e.PatientID == patientID {
			n++
		}
	}
	return n
}

// Events returns the queued outbox event types in insertion order.
func (s *Store) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.outbox))
	for _, e := range s.outbox {
		types = append(types, e.EventType)
	}
	return types
}

// AuditLogs returns a copy of every audit entry.
func (s *Store) AuditLogs() []model.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AuditLog(nil), s.audit...)
}

func stamp(b *model.Base) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

func page[T any](items []T, p model.Pagination) []T {
	p.Normalize()
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func inScope(scope model.Scope, clinicID uuid.UUID, branchID *uuid.UUID, therapistID uuid.UUID) bool {
	if clinicID != scope.ClinicID {
		return false
	}
	if scope.BranchID != nil && !model.SameID(scope.BranchID, branchID) {
		return false
	}
	if scope.TherapistID != nil && *scope.TherapistID != therapistID {
		return false
	}
	return true
}

type clinicRepo struct{ s *Store }

func (r clinicRepo) Create(ctx context.Context, tx *sqlx.Tx, c *model.Clinic) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.clinics {
		if existing.TaxID == c.TaxID {
			return apperrors.NewIntegrity("clinic already exists")
		}
	}
	stamp(&c.Base)
	r.s.clinics[c.ID] = *c
	return nil
}

func (r clinicRepo) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clinics[id]
	if !ok {
		return nil, apperrors.NewNotFound("clinic", nil)
	}
	return &c, nil
}

func (r clinicRepo) GetByTaxID(ctx context.Context, taxID string) (*model.Clinic, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.clinics {
		if c.TaxID == taxID {
			c := c
			return &c, nil
		}
	}
	return nil, apperrors.NewNotFound("clinic", nil)
}

type branchRepo struct{ s *Store }

func (r branchRepo) Create(ctx context.Context, b *model.Branch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.branches {
		if existing.ClinicID == b.ClinicID && strings.EqualFold(existing.Name, b.Name) {
			return apperrors.NewIntegrity("branch already exists")
		}
	}
	stamp(&b.Base)
	r.s.branches[b.ID] = *b
	return nil
}

func (r branchRepo) Get(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.branches[id]
	if !ok {
		return nil, apperrors.NewNotFound("branch", nil)
	}
	return &b, nil
}

func (r branchRepo) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*model.Branch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Branch{}
	for _, b := range r.s.branches {
		if b.ClinicID == clinicID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r branchRepo) CountByClinic(ctx context.Context, clinicID uuid.UUID) (int, error) {
	branches, _ := r.ListByClinic(ctx, clinicID)
	return len(branches), nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, tx *sqlx.Tx, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.Email = strings.ToLower(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return apperrors.NewIntegrity("user already exists")
		}
	}
	stamp(&u.Base)
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}
	return &u, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == strings.ToLower(email) {
			u := u
			return &u, nil
		}
	}
	return nil, apperrors.NewNotFound("user", nil)
}

func (r userRepo) Update(ctx context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[u.ID]
	if !ok || existing.ClinicID != u.ClinicID {
		return apperrors.NewNotFound("user", nil)
	}
	u.Email = strings.ToLower(u.Email)
	u.UpdatedAt = time.Now().UTC()
	r.s.users[u.ID] = *u
	return nil
}

func (r userRepo) List(ctx context.Context, scope model.Scope, filter *model.UserFilter) ([]*model.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.User{}
	for _, u := range r.s.users {
		if u.ClinicID != scope.ClinicID || (scope.BranchID != nil && !model.SameID(scope.BranchID, u.BranchID)) {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ActiveOnly && !u.Active {
			continue
		}
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, filter.Pagination), len(out), nil
}

func (r userRepo) ListActiveTherapists(ctx context.Context, clinicID uuid.UUID) ([]*model.User, error) {
	users, _, err := r.List(ctx, model.Scope{ClinicID: clinicID}, &model.UserFilter{
		Role: model.RoleTherapist, ActiveOnly: true, Pagination: model.Pagination{PageSize: 200},
	})
	return users, err
}

func (r userRepo) ListReviewers(ctx context.Context, clinicID uuid.UUID, branchIDs []uuid.UUID) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.User{}
	for _, u := range r.s.users {
		if u.ClinicID != clinicID || !u.Active {
			continue
		}
		match := u.IsNetworkManager()
		if u.IsBranchManager() && u.BranchID != nil {
			for _, id := range branchIDs {
				if id == *u.BranchID {
					match = true
				}
			}
		}
		if match {
			u := u
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r userRepo) CountActiveTherapists(ctx context.Context, clinicID uuid.UUID) (int, error) {
	users, err := r.ListActiveTherapists(ctx, clinicID)
	return len(users), err
}

type patientRepo struct{ s *Store }

func (r patientRepo) Create(ctx context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stamp(&p.Base)
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, apperrors.NewNotFound("patient", nil)
	}
	return &p, nil
}

func (r patientRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Patient, error) {
	return r.Get(ctx, id)
}

func (r patientRepo) Update(ctx context.Context, tx *sqlx.Tx, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.patients[p.ID]
	if !ok {
		return apperrors.NewNotFound("patient", nil)
	}
	// ownership only changes through UpdateAssignment
	p.TherapistID = existing.TherapistID
	p.BranchID = existing.BranchID
	p.UpdatedAt = time.Now().UTC()
	r.s.patients[p.ID] = *p
	return nil
}

func (r patientRepo) UpdateAssignment(ctx context.Context, tx *sqlx.Tx, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.patients[p.ID]
	if !ok {
		return apperrors.NewNotFound("patient", nil)
	}
	existing.TherapistID = p.TherapistID
	existing.BranchID = p.BranchID
	existing.AvailableForTransfer = p.AvailableForTransfer
	existing.UpdatedAt = time.Now().UTC()
	r.s.patients[p.ID] = existing
	return nil
}

func (r patientRepo) List(ctx context.Context, scope model.Scope, filter *model.PatientFilter) ([]*model.Patient, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Patient{}
	for _, p := range r.s.patients {
		if !inScope(scope, p.ClinicID, p.BranchID, p.TherapistID) {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		if filter.AvailableForTransfer != nil && p.AvailableForTransfer != *filter.AvailableForTransfer {
			continue
		}
		if filter.SearchTerm != "" && !strings.Contains(strings.ToLower(p.FullName), strings.ToLower(filter.SearchTerm)) {
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return page(out, filter.Pagination), len(out), nil
}

func (r patientRepo) CPFExists(ctx context.Context, cpf string, clinicID *uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if p.CPF == cpf && (clinicID == nil || p.ClinicID == *clinicID) {
			return true, nil
		}
	}
	return false, nil
}

func (r patientRepo) CountByTherapist(ctx context.Context, therapistID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, p := range r.s.patients {
		if p.TherapistID == therapistID {
			count++
		}
	}
	return count, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Create(ctx context.Context, tx *sqlx.Tx, e *model.PatientTransferHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("history.create"); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.TransferredAt = time.Now().UTC()
	r.s.history = append(r.s.history, *e)
	return nil
}

func (r historyRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.PatientTransferHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.PatientTransferHistory{}
	for i := len(r.s.history) - 1; i >= 0; i-- {
		if e := r.s.history[i]; e.PatientID == patientID {
			out = append(out, &e)
		}
	}
	return out, nil
}

type requestRepo struct{ s *Store }

func (r requestRepo) Create(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.requests {
		if existing.PatientID == req.PatientID && existing.Status == model.TransferStatusPending {
			return apperrors.NewIntegrity("pending transfer request already exists")
		}
	}
	stamp(&req.Base)
	r.s.requests[req.ID] = *req
	return nil
}

func (r requestRepo) Get(ctx context.Context, id uuid.UUID) (*model.TransferRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, apperrors.NewNotFound("transfer request", nil)
	}
	return &req, nil
}

func (r requestRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.TransferRequest, error) {
	return r.Get(ctx, id)
}

func (r requestRepo) UpdateReview(ctx context.Context, tx *sqlx.Tx, req *model.TransferRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.requests[req.ID]
	if !ok {
		return apperrors.NewNotFound("transfer request", nil)
	}
	if existing.Status != model.TransferStatusPending {
		return apperrors.NewStateConflict("transfer request", string(existing.Status))
	}
	req.UpdatedAt = time.Now().UTC()
	r.s.requests[req.ID] = *req
	return nil
}

func (r requestRepo) HasPending(ctx context.Context, tx *sqlx.Tx, patientID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.PatientID == patientID && req.Status == model.TransferStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (r requestRepo) List(ctx context.Context, scope model.TransferRequestScope, filter *model.TransferRequestFilter) ([]*model.TransferRequest, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.TransferRequest{}
	for _, req := range r.s.requests {
		if req.ClinicID != scope.ClinicID {
			continue
		}
		if scope.BranchID != nil && !req.Touches(scope.BranchID) {
			continue
		}
		if scope.TherapistID != nil && req.RequestedBy != *scope.TherapistID && req.ToTherapistID != *scope.TherapistID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.PatientID != nil && req.PatientID != *filter.PatientID {
			continue
		}
		req := req
		out = append(out, &req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Pagination), len(out), nil
}

type recordRepo struct{ s *Store }

func (r recordRepo) Create(ctx context.Context, rec *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stamp(&rec.Base)
	r.s.records = append(r.s.records, *rec)
	return nil
}

func (r recordRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, p model.Pagination) ([]*model.MedicalRecord, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.MedicalRecord{}
	for i := len(r.s.records) - 1; i >= 0; i-- {
		if rec := r.s.records[i]; rec.PatientID == patientID {
			out = append(out, &rec)
		}
	}
	return page(out, p), len(out), nil
}

type appointmentRepo struct{ s *Store }

func (r appointmentRepo) Create(ctx context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stamp(&a.Base)
	r.s.appointments[a.ID] = *a
	return nil
}

func (r appointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return &a, nil
}

func (r appointmentRepo) Update(ctx context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.appointments[a.ID]; !ok {
		return apperrors.NewNotFound("appointment", nil)
	}
	a.UpdatedAt = time.Now().UTC()
	r.s.appointments[a.ID] = *a
	return nil
}

func (r appointmentRepo) List(ctx context.Context, scope model.Scope, filter *model.AppointmentFilter) ([]*model.Appointment, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if !inScope(scope, a.ClinicID, a.BranchID, a.TherapistID) {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if filter.From != nil && a.StartsAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.StartsAt.Before(*filter.To) {
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return page(out, filter.Pagination), len(out), nil
}

func (r appointmentRepo) HasConflict(ctx context.Context, therapistID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.appointments {
		if a.TherapistID != therapistID || a.Status != model.AppointmentStatusScheduled {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.StartsAt.Before(end) && a.EndsAt.After(start) {
			return true, nil
		}
	}
	return false, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r auditRepo) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.AuditLog{}
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if e := r.s.audit[i]; e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r auditRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.audit[:0]
	var removed int64
	for _, e := range r.s.audit {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.audit = kept
	return removed, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return r.s.WithTx(ctx, fn)
}

func (r outboxRepo) Create(ctx context.Context, tx *sqlx.Tx, e *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = model.OutboxStatusPending
	}
	r.s.outbox = append(r.s.outbox, *e)
	return nil
}

func (r outboxRepo) GetPendingEventsWithLock(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	out := []*model.OutboxEvent{}
	for _, e := range r.s.outbox {
		if len(out) == limit {
			break
		}
		due := e.RetryAt == nil || !e.RetryAt.After(now)
		if (e.Status == model.OutboxStatusPending || e.Status == model.OutboxStatusRetry) && due {
			e := e
			out = append(out, &e)
		}
	}
	return out, nil
}

func (r outboxRepo) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID != id {
			continue
		}
		e := &r.s.outbox[i]
		e.Status = status
		e.ErrorMessage = errorMessage
		e.RetryAt = retryAt
		if status == model.OutboxStatusRetry {
			e.RetryCount++
		}
		if status == model.OutboxStatusProcessed {
			now := time.Now().UTC()
			e.ProcessedAt = &now
		}
		return nil
	}
	return apperrors.NewNotFound("outbox event", nil)
}

func (r outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	var removed int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return removed, nil
}
