package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Krish-Makadiya/Aroga-sub001/internal/payment"
)

const testMeetingBase = "https://meet.example.test"

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeRepo implements Repository in memory with the same version-guarded
// update semantics as the Postgres implementation.
type fakeRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	appointments map[uuid.UUID]*Appointment
	events       []EventLog

	// conflictNext injects this many lost CAS rounds before updates succeed,
	// simulating a concurrent writer bumping the version between the service's
	// read and write.
	conflictNext int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:     make(map[uuid.UUID]*Patient),
		doctors:      make(map[uuid.UUID]*Doctor),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (f *fakeRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := copyAppointment(a)
	return &cp, nil
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := copyAppointment(a)
	cp.Version = 1
	cp.CreatedAt = testNow
	cp.UpdatedAt = testNow
	f.appointments[cp.ID] = &cp
	out := copyAppointment(&cp)
	return &out, nil
}

func (f *fakeRepo) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	if f.conflictNext > 0 {
		f.conflictNext--
		stored.Version++
		return nil, ErrVersionConflict
	}

	if stored.Version != a.Version {
		return nil, ErrVersionConflict
	}

	cp := copyAppointment(a)
	cp.Version = stored.Version + 1
	cp.UpdatedAt = testNow
	f.appointments[cp.ID] = &cp
	out := copyAppointment(&cp)
	return &out, nil
}

func (f *fakeRepo) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Appointment
	for _, a := range f.appointments {
		if a.PatientID == patientID {
			result = append(result, copyAppointment(a))
		}
	}
	return result, nil
}

func (f *fakeRepo) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Appointment
	for _, a := range f.appointments {
		if a.DoctorID == doctorID {
			result = append(result, copyAppointment(a))
		}
	}
	return result, nil
}

func (f *fakeRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeRepo) eventCount(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func copyAppointment(a *Appointment) Appointment {
	cp := *a
	cp.Symptoms = append([]string(nil), a.Symptoms...)
	cp.Prescription = append([]PrescriptionItem(nil), a.Prescription...)
	return cp
}

// failingProvider always refuses to create orders.
type failingProvider struct{}

func (failingProvider) CreateOrder(ctx context.Context, appointmentID uuid.UUID, amount int64) (payment.Order, error) {
	return payment.Order{}, errors.New("gateway unreachable")
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}

func newTestService(t *testing.T) (*Service, *fakeRepo, uuid.UUID, uuid.UUID) {
	t.Helper()

	repo := newFakeRepo()
	patientID := uuid.New()
	doctorID := uuid.New()
	specialty := "Cardiology"

	repo.patients[patientID] = &Patient{ID: patientID, Name: "Asha Rao"}
	repo.doctors[doctorID] = &Doctor{
		ID:              doctorID,
		Name:            "Meera Iyer",
		Specialty:       &specialty,
		ConsultationFee: 50000,
		Available:       true,
	}

	svc := NewService(repo, &payment.SandboxProvider{Log: zerolog.Nop()}, testMeetingBase, zerolog.Nop())
	svc.now = func() time.Time { return testNow }

	return svc, repo, patientID, doctorID
}

func bookTestAppointment(t *testing.T, svc *Service, patientID, doctorID uuid.UUID) *Appointment {
	t.Helper()

	appt, err := svc.Book(context.Background(), BookParams{
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: testNow.Add(2 * time.Hour).Add(30 * time.Minute),
		Type:        TypeOnline,
		Symptoms:    []string{"fever", "cough"},
	})
	if err != nil {
		t.Fatalf("book: unexpected error: %v", err)
	}
	return appt
}

func TestBookRejectsBadSlots(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, BookParams{
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: testNow.Add(2*time.Hour + 10*time.Minute),
	})
	if !errors.Is(err, ErrInvalidGranularity) {
		t.Fatalf("expected ErrInvalidGranularity, got %v", err)
	}

	_, err = svc.Book(ctx, BookParams{
		PatientID:   patientID,
		DoctorID:    doctorID,
		ScheduledAt: testNow.Add(-time.Hour),
	})
	if !errors.Is(err, ErrInThePast) {
		t.Fatalf("expected ErrInThePast, got %v", err)
	}
}

func TestBookUnknownActors(t *testing.T) {
	svc, _, patientID, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, BookParams{
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		ScheduledAt: testNow.Add(2 * time.Hour),
	})
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}

	_, err = svc.Book(ctx, BookParams{
		PatientID:   patientID,
		DoctorID:    uuid.New(),
		ScheduledAt: testNow.Add(2 * time.Hour),
	})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, repo, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)
	if appt.Status != StatusPending {
		t.Fatalf("expected pending, got %s", appt.Status)
	}
	if appt.Amount != 50000 {
		t.Fatalf("expected amount from doctor fee, got %d", appt.Amount)
	}
	if appt.MeetingLink != nil {
		t.Fatal("meeting link must not exist before confirmation")
	}

	confirmed, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.MeetingLink == nil {
		t.Fatal("confirming an online appointment must set the meeting link")
	}
	if want := MeetingLink(testMeetingBase, appt.ID); *confirmed.MeetingLink != want {
		t.Fatalf("meeting link %q, want deterministic %q", *confirmed.MeetingLink, want)
	}

	paid, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if paid.PaymentStatus != PaymentPaid {
		t.Fatalf("expected paid, got %s", paid.PaymentStatus)
	}
	if paid.PaidAt == nil || !paid.PaidAt.Equal(testNow) {
		t.Fatalf("expected paid_at %s, got %v", testNow, paid.PaidAt)
	}

	link, err := svc.Join(ctx, appt.ID)
	if err != nil {
		t.Fatalf("join after payment: %v", err)
	}
	if link != *confirmed.MeetingLink {
		t.Fatalf("join returned %q, want %q", link, *confirmed.MeetingLink)
	}

	completed, err := svc.Transition(ctx, appt.ID, StatusCompleted, doctor)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	rated, err := svc.SubmitRating(ctx, appt.ID, 5, "great")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.RatingValue == nil || *rated.RatingValue != 5 {
		t.Fatalf("expected rating 5, got %v", rated.RatingValue)
	}
	if rated.RatingReview == nil || *rated.RatingReview != "great" {
		t.Fatalf("expected review 'great', got %v", rated.RatingReview)
	}

	if _, err := svc.SubmitRating(ctx, appt.ID, 1, "changed my mind"); !errors.Is(err, ErrAlreadyRated) {
		t.Fatalf("second rating: expected ErrAlreadyRated, got %v", err)
	}

	// original rating untouched
	after, err := svc.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if *after.RatingValue != 5 || *after.RatingReview != "great" {
		t.Fatalf("rating changed after rejected resubmission: %d %q", *after.RatingValue, *after.RatingReview)
	}

	if n := repo.eventCount(EventRatingSubmitted); n != 1 {
		t.Fatalf("expected 1 rating event, got %d", n)
	}
}

func TestTransitionLegality(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		legal    bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, tt := range tests {
		if got := transitionAllowed(tt.from, tt.to); got != tt.legal {
			t.Errorf("transitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.legal)
		}
	}
}

func TestTransitionAuthorization(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()

	doctor := Actor{ID: doctorID, Role: RoleDoctor}
	patient := Actor{ID: patientID, Role: RolePatient}
	stranger := Actor{ID: uuid.New(), Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, patient); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("patient confirm: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("other doctor confirm: expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("doctor confirm: %v", err)
	}

	// patient of record may cancel a confirmed appointment
	cancelled, err := svc.Transition(ctx, appt.ID, StatusCancelled, patient)
	if err != nil {
		t.Fatalf("patient cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	// cancellation keeps the audit trail
	if cancelled.MeetingLink == nil {
		t.Fatal("cancellation must not erase the meeting link")
	}
}

func TestTransitionConcurrentSingleWinner(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Transition(ctx, appt.ID, StatusConfirmed, doctor)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrConflict):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d losses=%d", wins, losses)
	}
}

func TestTransitionRetriesThenConflicts(t *testing.T) {
	svc, repo, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	// one lost round is absorbed by the retry loop
	repo.conflictNext = 1
	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("transition with one lost CAS round: %v", err)
	}

	appt2 := bookTestAppointment(t, svc, patientID, doctorID)

	// persistent contention surfaces as ErrConflict
	repo.conflictNext = maxCASAttempts
	if _, err := svc.Transition(ctx, appt2.ID, StatusConfirmed, doctor); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausted retries, got %v", err)
	}
}

func TestRecordPaymentGuards(t *testing.T) {
	svc, repo, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	if _, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1"); !errors.Is(err, ErrAppointmentNotConfirmed) {
		t.Fatalf("payment on pending: expected ErrAppointmentNotConfirmed, got %v", err)
	}

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	first, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1")
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}

	// same paymentRef replay is a no-op returning the paid record
	second, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1")
	if err != nil {
		t.Fatalf("idempotent replay: %v", err)
	}
	if second.PaymentStatus != PaymentPaid || *second.PaymentRef != *first.PaymentRef {
		t.Fatalf("replay diverged: %+v vs %+v", second, first)
	}
	if n := repo.eventCount(EventPaymentRecorded); n != 1 {
		t.Fatalf("expected a single payment event, got %d", n)
	}

	// a different paymentRef after payment is a conflict, not a second charge
	if _, err := svc.RecordPayment(ctx, appt.ID, "o2", "p2"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for second payment ref, got %v", err)
	}
}

func TestPaymentGate(t *testing.T) {
	link := "https://meet.example.test/room/abc"

	tests := []struct {
		name string
		appt Appointment
		want bool
	}{
		{
			name: "confirmed and paid",
			appt: Appointment{Type: TypeOnline, Status: StatusConfirmed, Amount: 100, PaymentStatus: PaymentPaid, MeetingLink: &link},
			want: true,
		},
		{
			name: "completed and paid",
			appt: Appointment{Type: TypeOnline, Status: StatusCompleted, Amount: 100, PaymentStatus: PaymentPaid, MeetingLink: &link},
			want: true,
		},
		{
			name: "free consultation needs no payment",
			appt: Appointment{Type: TypeOnline, Status: StatusConfirmed, Amount: 0, PaymentStatus: PaymentPending, MeetingLink: &link},
			want: true,
		},
		{
			name: "confirmed but unpaid",
			appt: Appointment{Type: TypeOnline, Status: StatusConfirmed, Amount: 100, PaymentStatus: PaymentPending, MeetingLink: &link},
			want: false,
		},
		{
			name: "pending never joinable",
			appt: Appointment{Type: TypeOnline, Status: StatusPending, Amount: 0, PaymentStatus: PaymentPending},
			want: false,
		},
		{
			name: "cancelled never joinable",
			appt: Appointment{Type: TypeOnline, Status: StatusCancelled, Amount: 100, PaymentStatus: PaymentPaid, MeetingLink: &link},
			want: false,
		},
		{
			name: "offline has no video session",
			appt: Appointment{Type: TypeOffline, Status: StatusConfirmed, Amount: 0, PaymentStatus: PaymentPaid},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanJoin(&tt.appt); got != tt.want {
				t.Fatalf("CanJoin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinRequiresPayment(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	if _, err := svc.Join(ctx, appt.ID); !errors.Is(err, ErrNotJoinable) {
		t.Fatalf("join pending: expected ErrNotJoinable, got %v", err)
	}

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := svc.Join(ctx, appt.ID); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("join unpaid: expected ErrPaymentRequired, got %v", err)
	}

	if _, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := svc.Join(ctx, appt.ID); err != nil {
		t.Fatalf("join after payment: %v", err)
	}
}

func TestCreatePaymentOrder(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	if _, _, err := svc.CreatePaymentOrder(ctx, appt.ID); !errors.Is(err, ErrAppointmentNotConfirmed) {
		t.Fatalf("order on pending: expected ErrAppointmentNotConfirmed, got %v", err)
	}

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	updated, order, err := svc.CreatePaymentOrder(ctx, appt.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Ref == "" || order.Amount != appt.Amount {
		t.Fatalf("unexpected order %+v", order)
	}
	if updated.PaymentOrderRef == nil || *updated.PaymentOrderRef != order.Ref {
		t.Fatalf("order ref not stored: %+v", updated.PaymentOrderRef)
	}
}

func TestCreatePaymentOrderGatewayDown(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	svc.provider = failingProvider{}
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)
	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, _, err := svc.CreatePaymentOrder(ctx, appt.ID); !errors.Is(err, ErrExternalDependency) {
		t.Fatalf("expected ErrExternalDependency, got %v", err)
	}

	// state untouched by the gateway failure
	after, err := svc.GetAppointment(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.PaymentOrderRef != nil || after.PaymentStatus != PaymentPending {
		t.Fatalf("gateway failure corrupted state: %+v", after)
	}
}

func TestPrescriptionLifecycle(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}
	patient := Actor{ID: patientID, Role: RolePatient}

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	items := []PrescriptionItem{
		{Medicine: "Paracetamol", Dosage: "500mg", Frequency: "twice daily", Notes: "after food"},
	}

	if _, err := svc.WritePrescription(ctx, appt.ID, items, patient); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("patient writing prescription: expected ErrUnauthorized, got %v", err)
	}

	updated, err := svc.WritePrescription(ctx, appt.ID, items, doctor)
	if err != nil {
		t.Fatalf("write prescription: %v", err)
	}
	if len(updated.Prescription) != 1 || updated.Prescription[0].Medicine != "Paracetamol" {
		t.Fatalf("prescription not stored: %+v", updated.Prescription)
	}

	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.Transition(ctx, appt.ID, StatusCompleted, doctor); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.WritePrescription(ctx, appt.ID, nil, doctor); !errors.Is(err, ErrAppointmentClosed) {
		t.Fatalf("write after completion: expected ErrAppointmentClosed, got %v", err)
	}

	// cancelled appointments are closed too, and keep their prescription
	appt2 := bookTestAppointment(t, svc, patientID, doctorID)
	if _, err := svc.WritePrescription(ctx, appt2.ID, items, doctor); err != nil {
		t.Fatalf("write prescription: %v", err)
	}
	if _, err := svc.Transition(ctx, appt2.ID, StatusCancelled, doctor); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.WritePrescription(ctx, appt2.ID, nil, doctor); !errors.Is(err, ErrAppointmentClosed) {
		t.Fatalf("write after cancel: expected ErrAppointmentClosed, got %v", err)
	}

	after, err := svc.GetAppointment(ctx, appt2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(after.Prescription) != 1 {
		t.Fatalf("cancellation erased the prescription: %+v", after.Prescription)
	}
}

func TestSubmitRatingValidation(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()

	appt := bookTestAppointment(t, svc, patientID, doctorID)

	for _, bad := range []int{0, -1, 6, 100} {
		if _, err := svc.SubmitRating(ctx, appt.ID, bad, ""); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("value %d: expected ErrInvalidRating, got %v", bad, err)
		}
	}

	if _, err := svc.SubmitRating(ctx, appt.ID, 4, "too early"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("rating pending appointment: expected ErrNotCompleted, got %v", err)
	}
}

func TestCancelKeepsPaymentRecord(t *testing.T) {
	svc, _, patientID, doctorID := newTestService(t)
	ctx := context.Background()
	doctor := Actor{ID: doctorID, Role: RoleDoctor}

	appt := bookTestAppointment(t, svc, patientID, doctorID)
	if _, err := svc.Transition(ctx, appt.ID, StatusConfirmed, doctor); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, appt.ID, "o1", "p1"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	cancelled, err := svc.Transition(ctx, appt.ID, StatusCancelled, doctor)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// no automatic refund or payment reversal on cancellation
	if cancelled.PaymentStatus != PaymentPaid || cancelled.PaymentRef == nil {
		t.Fatalf("cancellation touched the payment record: %+v", cancelled)
	}
}
