package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"clinicbook_backend/internal/appointments/domain"
	"clinicbook_backend/internal/appointments/transport"
	"clinicbook_backend/internal/notification/live"
	"clinicbook_backend/internal/notification/outbox"
	"clinicbook_backend/platform/apperr"
	"clinicbook_backend/platform/events"
	"clinicbook_backend/platform/logger"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

const tomorrow = "2026-03-02"

type fixture struct {
	svc      *Service
	store    *memStore
	dir      *fakeDirectory
	notifier *countingNotifier
	admin    uuid.UUID
}

func newFixture() *fixture {
	store := newMemStore()
	dir := newFakeDirectory()
	notifier := &countingNotifier{}
	svc := New(store, dir, notifier, Settings{Location: time.UTC}, logger.Nop())
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, store: store, dir: dir, notifier: notifier, admin: uuid.New()}
}

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }

func (f *fixture) book(t *testing.T, patientID uuid.UUID, doctorID, hospitalID *uuid.UUID, date, clock string) (*transport.AppointmentResponse, error) {
	t.Helper()
	return f.svc.Create(context.Background(), f.admin, true, transport.CreateAppointmentRequest{
		PatientID:       &patientID,
		DoctorID:        doctorID,
		HospitalID:      hospitalID,
		AppointmentDate: date,
		AppointmentTime: clock,
	})
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %d, got nil", kind)
	}
	if got := apperr.GetKind(err); got != kind {
		t.Fatalf("expected error kind %d, got %d (%v)", kind, got, err)
	}
}

func lastEventType(t *testing.T, store *memStore) string {
	t.Helper()
	evts := store.events()
	if len(evts) == 0 {
		t.Fatal("expected an outbox event")
	}
	return evts[len(evts)-1].Type
}

func TestCreateWithHospitalAssociationUsesAssociationFee(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(9999))
	hospital := f.dir.addHospital()
	f.dir.associate(hospital, doctor, 5000, "ACTIVE")

	resp, err := f.book(t, patient, &doctor, &hospital, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.ConsultationFeeCents != 5000 {
		t.Fatalf("expected fee 5000, got %d", resp.ConsultationFeeCents)
	}
	if resp.Status != string(domain.StatusPending) {
		t.Fatalf("expected PENDING, got %s", resp.Status)
	}
	if resp.AppointmentNumber != 1 {
		t.Fatalf("expected appointment number 1, got %d", resp.AppointmentNumber)
	}
	if resp.CreatedBy != string(domain.CreatedByAdmin) {
		t.Fatalf("expected created by ADMIN, got %s", resp.CreatedBy)
	}
	if got := lastEventType(t, f.store); got != domain.EventCreated {
		t.Fatalf("expected %s event, got %s", domain.EventCreated, got)
	}
	if f.notifier.count() != 1 {
		t.Fatalf("expected dispatcher to be nudged once, got %d", f.notifier.count())
	}
}

func TestCreateSameSlotConflicts(t *testing.T) {
	f := newFixture()
	doctor := f.dir.addDoctor(nil)
	hospital := f.dir.addHospital()
	f.dir.associate(hospital, doctor, 5000, "ACTIVE")

	if _, err := f.book(t, f.dir.addPatient(), &doctor, &hospital, tomorrow, "10:00"); err != nil {
		t.Fatalf("expected first booking to succeed, got %v", err)
	}
	_, err := f.book(t, f.dir.addPatient(), &doctor, &hospital, tomorrow, "10:00")
	expectKind(t, err, apperr.KindConflict)

	if f.store.count() != 1 {
		t.Fatalf("expected one appointment, got %d", f.store.count())
	}
	if len(f.store.events()) != 1 {
		t.Fatalf("expected no event for the rejected booking, got %d", len(f.store.events()))
	}
}

func TestCreateSelfEmployedFee(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	paid := f.dir.addDoctor(int64Ptr(3000))
	free := f.dir.addDoctor(int64Ptr(0))
	unset := f.dir.addDoctor(nil)

	resp, err := f.book(t, patient, &paid, nil, tomorrow, "11:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.ConsultationFeeCents != 3000 {
		t.Fatalf("expected fee 3000, got %d", resp.ConsultationFeeCents)
	}

	_, err = f.book(t, patient, &free, nil, tomorrow, "11:00")
	expectKind(t, err, apperr.KindBadRequest)
	_, err = f.book(t, patient, &unset, nil, tomorrow, "11:30")
	expectKind(t, err, apperr.KindBadRequest)

	if f.store.count() != 1 {
		t.Fatalf("expected failed bookings to write nothing, got %d rows", f.store.count())
	}
}

func TestCreateAssociationRules(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	hospital := f.dir.addHospital()

	_, err := f.book(t, patient, &doctor, &hospital, tomorrow, "09:00")
	expectKind(t, err, apperr.KindNotFound)

	f.dir.associate(hospital, doctor, 4000, "INACTIVE")
	_, err = f.book(t, patient, &doctor, &hospital, tomorrow, "09:00")
	expectKind(t, err, apperr.KindBadRequest)

	resp, err := f.book(t, patient, nil, &hospital, tomorrow, "09:00")
	if err != nil {
		t.Fatalf("expected hospital-only booking to succeed, got %v", err)
	}
	if resp.ConsultationFeeCents != 0 {
		t.Fatalf("expected fee 0 for hospital-only booking, got %d", resp.ConsultationFeeCents)
	}
}

func TestCreateRejectsPastAndUnknownReferences(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))

	_, err := f.book(t, patient, &doctor, nil, "2026-03-01", "08:00")
	expectKind(t, err, apperr.KindBadRequest)

	_, err = f.book(t, uuid.New(), &doctor, nil, tomorrow, "10:00")
	expectKind(t, err, apperr.KindNotFound)

	unavailable := f.dir.addDoctor(int64Ptr(3000))
	doc := f.dir.doctors[unavailable]
	doc.IsAvailable = false
	f.dir.doctors[unavailable] = doc
	_, err = f.book(t, patient, &unavailable, nil, tomorrow, "10:00")
	expectKind(t, err, apperr.KindBadRequest)

	if f.store.count() != 0 {
		t.Fatalf("expected nothing written, got %d rows", f.store.count())
	}
	if f.store.txs != 0 {
		t.Fatalf("expected validation to fail before any transaction, got %d", f.store.txs)
	}
}

func TestCreateReportsMissingPatientBeforeMissingDoctor(t *testing.T) {
	f := newFixture()
	missingDoctor := uuid.New()
	missingHospital := uuid.New()

	_, err := f.book(t, uuid.New(), &missingDoctor, &missingHospital, tomorrow, "10:00")
	expectKind(t, err, apperr.KindNotFound)
	if err.Error() != "patient not found" {
		t.Fatalf("expected patient not found, got %q", err.Error())
	}

	_, err = f.book(t, f.dir.addPatient(), &missingDoctor, &missingHospital, tomorrow, "10:00")
	if err == nil || err.Error() != "doctor not found" {
		t.Fatalf("expected doctor not found, got %v", err)
	}

	doctor := f.dir.addDoctor(nil)
	_, err = f.book(t, f.dir.addPatient(), &doctor, &missingHospital, tomorrow, "10:00")
	if err == nil || err.Error() != "hospital not found" {
		t.Fatalf("expected hospital not found, got %v", err)
	}
}

func TestCreateRejectsUnverifiedDoctor(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	doc := f.dir.doctors[doctor]
	doc.IsVerified = false
	f.dir.doctors[doctor] = doc

	_, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00")
	expectKind(t, err, apperr.KindBadRequest)
	if err.Error() != errDoctorUnverified {
		t.Fatalf("expected %q, got %q", errDoctorUnverified, err.Error())
	}
	if f.store.count() != 0 {
		t.Fatalf("expected nothing written, got %d rows", f.store.count())
	}
}

func TestPatientBooksForThemselves(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	other := uuid.New()

	_, err := f.svc.Create(context.Background(), patient, false, transport.CreateAppointmentRequest{
		PatientID:       &other,
		DoctorID:        &doctor,
		AppointmentDate: tomorrow,
		AppointmentTime: "10:00",
	})
	expectKind(t, err, apperr.KindForbidden)

	resp, err := f.svc.Create(context.Background(), patient, false, transport.CreateAppointmentRequest{
		DoctorID:        &doctor,
		AppointmentDate: tomorrow,
		AppointmentTime: "10:00",
		Reason:          strPtr("<b>headache</b>"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.PatientID != patient || resp.CreatedBy != string(domain.CreatedByPatient) {
		t.Fatalf("unexpected patient booking %+v", resp)
	}
	if resp.Reason == nil || *resp.Reason != "headache" {
		t.Fatalf("expected sanitized reason, got %v", resp.Reason)
	}

	if _, err := f.svc.GetByID(context.Background(), resp.ID, uuid.New(), false); apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected other patient to be forbidden, got %v", err)
	}
}

func TestAppointmentNumbersIncreaseUnderConcurrency(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))

	const n = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clock := fmt.Sprintf("%02d:%02d", 9+i/2, (i%2)*30)
			resp, err := f.book(t, patient, &doctor, nil, tomorrow, clock)
			if err != nil {
				t.Errorf("booking %s failed: %v", clock, err)
				return
			}
			mu.Lock()
			numbers = append(numbers, resp.AppointmentNumber)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, num := range numbers {
		if num != int64(i+1) {
			t.Fatalf("expected gap-free numbers 1..%d, got %v", n, numbers)
		}
	}
}

func TestCancelReleasesSlotAndEmitsCancelledEvent(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(nil)
	hospital := f.dir.addHospital()
	f.dir.associate(hospital, doctor, 5000, "ACTIVE")

	created, err := f.book(t, patient, &doctor, &hospital, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Cancelling without an actor is rejected.
	_, err = f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{
		Status: strPtr("CANCELLED"),
	})
	expectKind(t, err, apperr.KindBadRequest)

	resp, err := f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{
		Status:             strPtr("CANCELLED"),
		CancelledBy:        strPtr("ADMIN"),
		CancellationReason: strPtr("doctor ill"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Status != string(domain.StatusCancelled) {
		t.Fatalf("expected CANCELLED, got %s", resp.Status)
	}
	if resp.CancelledAt == nil || !resp.CancelledAt.Equal(testNow) {
		t.Fatalf("expected cancelledAt %s, got %v", testNow, resp.CancelledAt)
	}
	if resp.CancelledBy == nil || *resp.CancelledBy != "ADMIN" {
		t.Fatalf("expected cancelledBy ADMIN, got %v", resp.CancelledBy)
	}
	if got := lastEventType(t, f.store); got != domain.EventCancelled {
		t.Fatalf("expected %s event, got %s", domain.EventCancelled, got)
	}

	if _, err := f.book(t, f.dir.addPatient(), &doctor, &hospital, tomorrow, "10:00"); err != nil {
		t.Fatalf("expected cancelled slot to be bookable again, got %v", err)
	}
}

func TestCancelledEventReachesBothSinks(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))

	created, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{
		Status:      strPtr("CANCELLED"),
		CancelledBy: strPtr("ADMIN"),
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	hub := live.NewHub(logger.Nop())
	all := hub.Register(live.TopicAppointments)
	own := hub.Register(live.PatientTopic(patient))
	broker := &brokerRecorder{}
	d := outbox.NewDispatcher(&memOutbox{store: f.store, completed: map[uuid.UUID]bool{}}, hub, broker, logger.Nop(), outbox.DispatcherOptions{})

	if _, err := d.DrainOnce(context.Background()); err != nil {
		t.Fatalf("expected drain to succeed, got %v", err)
	}
	if len(broker.types) != 2 || broker.types[1] != domain.EventCancelled {
		t.Fatalf("expected broker to get created then cancelled, got %v", broker.types)
	}
	if len(all.Send) != 2 || len(own.Send) != 2 {
		t.Fatalf("expected both live topics to get 2 events, got %d and %d", len(all.Send), len(own.Send))
	}
}

type brokerRecorder struct {
	types []string
}

func (b *brokerRecorder) Publish(_ context.Context, env events.Envelope) error {
	b.types = append(b.types, env.Type)
	return nil
}

func TestRescheduleIntoOccupiedSlotConflicts(t *testing.T) {
	f := newFixture()
	doctor := f.dir.addDoctor(int64Ptr(3000))

	first, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "11:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.svc.Update(context.Background(), second.ID, f.admin, true, transport.UpdateAppointmentRequest{
		Status: strPtr("CONFIRMED"),
	}); err != nil {
		t.Fatalf("expected confirm to succeed, got %v", err)
	}
	eventsBefore := len(f.store.events())

	_, err = f.svc.Update(context.Background(), second.ID, f.admin, true, transport.UpdateAppointmentRequest{
		AppointmentTime: strPtr(first.AppointmentTime),
		Notes:           strPtr("moved"),
	})
	expectKind(t, err, apperr.KindConflict)

	unchanged, err := f.svc.GetByID(context.Background(), second.ID, f.admin, true)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if unchanged.AppointmentTime != "11:00" || unchanged.Status != string(domain.StatusConfirmed) || unchanged.Notes != nil {
		t.Fatalf("expected appointment unchanged, got %+v", unchanged)
	}
	if len(f.store.events()) != eventsBefore {
		t.Fatal("expected no event for the rejected reschedule")
	}

	moved, err := f.svc.Update(context.Background(), second.ID, f.admin, true, transport.UpdateAppointmentRequest{
		AppointmentTime: strPtr("12:00"),
	})
	if err != nil {
		t.Fatalf("expected reschedule to a free slot to succeed, got %v", err)
	}
	if moved.AppointmentTime != "12:00" {
		t.Fatalf("expected 12:00, got %s", moved.AppointmentTime)
	}
}

func TestPaymentConfirmsPendingAppointment(t *testing.T) {
	f := newFixture()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	created, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	resp, err := f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{
		PaymentStatus: strPtr("PAID"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.PaymentStatus != "PAID" || resp.Status != string(domain.StatusConfirmed) {
		t.Fatalf("expected PAID and CONFIRMED, got %s and %s", resp.PaymentStatus, resp.Status)
	}
	if got := lastEventType(t, f.store); got != domain.EventConfirmed {
		t.Fatalf("expected %s event, got %s", domain.EventConfirmed, got)
	}
}

func TestDoctorReassignmentReresolvesFee(t *testing.T) {
	f := newFixture()
	hospital := f.dir.addHospital()
	created, err := f.book(t, f.dir.addPatient(), nil, &hospital, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	doctor := f.dir.addDoctor(int64Ptr(3000))
	_, err = f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{DoctorID: &doctor})
	expectKind(t, err, apperr.KindNotFound)

	f.dir.associate(hospital, doctor, 7500, "ACTIVE")
	resp, err := f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{DoctorID: &doctor})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.ConsultationFeeCents != 7500 {
		t.Fatalf("expected association fee 7500, got %d", resp.ConsultationFeeCents)
	}
}

func TestTerminalAppointmentsCannotChange(t *testing.T) {
	f := newFixture()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	created, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{
		Status:      strPtr("CANCELLED"),
		CancelledBy: strPtr("DOCTOR"),
	}); err != nil {
		t.Fatalf("expected cancel to succeed, got %v", err)
	}

	_, err = f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{AppointmentTime: strPtr("15:00")})
	expectKind(t, err, apperr.KindBadRequest)
	_, err = f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{Status: strPtr("CONFIRMED")})
	expectKind(t, err, apperr.KindBadRequest)
	_, err = f.svc.Update(context.Background(), created.ID, f.admin, true, transport.UpdateAppointmentRequest{PaymentStatus: strPtr("PAID")})
	expectKind(t, err, apperr.KindBadRequest)
}

func TestPatientUpdateRestrictions(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	created, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	_, err = f.svc.Update(context.Background(), created.ID, patient, false, transport.UpdateAppointmentRequest{Status: strPtr("CONFIRMED")})
	expectKind(t, err, apperr.KindForbidden)
	_, err = f.svc.Update(context.Background(), created.ID, patient, false, transport.UpdateAppointmentRequest{PaymentStatus: strPtr("PAID")})
	expectKind(t, err, apperr.KindForbidden)

	resp, err := f.svc.Update(context.Background(), created.ID, patient, false, transport.UpdateAppointmentRequest{Status: strPtr("CANCELLED")})
	if err != nil {
		t.Fatalf("expected patient cancel to succeed, got %v", err)
	}
	if resp.CancelledBy == nil || *resp.CancelledBy != "PATIENT" {
		t.Fatalf("expected cancelledBy PATIENT, got %v", resp.CancelledBy)
	}
}

func TestDeleteIsAdminOnly(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	created, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	expectKind(t, f.svc.Delete(context.Background(), created.ID, false), apperr.KindForbidden)
	if err := f.svc.Delete(context.Background(), created.ID, true); err != nil {
		t.Fatalf("expected admin delete to succeed, got %v", err)
	}
	if f.store.count() != 0 {
		t.Fatal("expected appointment to be gone")
	}
	if got := lastEventType(t, f.store); got != domain.EventDeleted {
		t.Fatalf("expected %s event, got %s", domain.EventDeleted, got)
	}
	expectKind(t, f.svc.Delete(context.Background(), created.ID, true), apperr.KindNotFound)
}

func TestAppointmentNumbersNotReusedAfterDelete(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))

	if _, err := f.book(t, patient, &doctor, nil, tomorrow, "09:00"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := f.book(t, patient, &doctor, nil, tomorrow, "09:30")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), second.ID, true); err != nil {
		t.Fatalf("expected admin delete to succeed, got %v", err)
	}

	third, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if third.AppointmentNumber <= second.AppointmentNumber {
		t.Fatalf("expected number above %d, got %d", second.AppointmentNumber, third.AppointmentNumber)
	}
	if third.AppointmentNumber != 3 {
		t.Fatalf("expected appointment number 3, got %d", third.AppointmentNumber)
	}
}

func TestListScopesPatients(t *testing.T) {
	f := newFixture()
	patient := f.dir.addPatient()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	if _, err := f.book(t, patient, &doctor, nil, tomorrow, "10:00"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "11:00"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	own, err := f.svc.List(context.Background(), patient, false, transport.ListAppointmentsRequest{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if own.Total != 1 || own.Items[0].PatientID != patient {
		t.Fatalf("expected only the patient's appointment, got %+v", own.Items)
	}

	all, err := f.svc.List(context.Background(), f.admin, true, transport.ListAppointmentsRequest{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if all.Total != 2 {
		t.Fatalf("expected admin to see 2 appointments, got %d", all.Total)
	}

	_, err = f.svc.List(context.Background(), patient, false, transport.ListAppointmentsRequest{PatientID: uuid.NewString()})
	expectKind(t, err, apperr.KindForbidden)
}

func TestAvailableSlotsExcludesBooked(t *testing.T) {
	f := newFixture()
	doctor := f.dir.addDoctor(int64Ptr(3000))
	if _, err := f.book(t, f.dir.addPatient(), &doctor, nil, tomorrow, "09:30"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	resp, err := f.svc.AvailableSlots(context.Background(), transport.AvailableSlotsRequest{DoctorID: doctor.String(), Date: tomorrow})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Slots) != 15 {
		t.Fatalf("expected 15 free slots, got %d: %v", len(resp.Slots), resp.Slots)
	}
	for _, s := range resp.Slots {
		if s == "09:30" {
			t.Fatal("expected booked slot to be excluded")
		}
	}

	_, err = f.svc.AvailableSlots(context.Background(), transport.AvailableSlotsRequest{DoctorID: uuid.NewString(), Date: tomorrow})
	expectKind(t, err, apperr.KindNotFound)
}
