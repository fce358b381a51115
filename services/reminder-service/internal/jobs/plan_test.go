package jobs

import (
	"testing"
	"time"
)

func TestPlanPrefersEmail(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Appointment{
		ReservationID: "res-1",
		BusinessID:    "biz-1",
		ClientEmail:   "ada@example.com",
		ClientPhone:   "+15550001",
		ServiceName:   "Haircut",
		StartsAt:      now.Add(48 * time.Hour),
	}

	job, ok := Plan(app, 24*time.Hour, now)
	if !ok {
		t.Fatal("expected a job")
	}
	if job.Channel != "email" || job.Recipient != "ada@example.com" {
		t.Fatalf("expected email channel, got %s/%s", job.Channel, job.Recipient)
	}
	if want := now.Add(24 * time.Hour); !job.RemindAt.Equal(want) {
		t.Fatalf("expected remind at %v, got %v", want, job.RemindAt)
	}
}

func TestPlanFallsBackToSMS(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Appointment{
		ReservationID: "res-1",
		BusinessID:    "biz-1",
		ClientPhone:   "+15550001",
		StartsAt:      now.Add(48 * time.Hour),
	}

	job, ok := Plan(app, 24*time.Hour, now)
	if !ok {
		t.Fatal("expected a job")
	}
	if job.Channel != "sms" || job.Recipient != "+15550001" {
		t.Fatalf("expected sms channel, got %s/%s", job.Channel, job.Recipient)
	}
}

func TestPlanSkipsWithoutRecipient(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Appointment{ReservationID: "res-1", StartsAt: now.Add(48 * time.Hour)}
	if _, ok := Plan(app, 24*time.Hour, now); ok {
		t.Fatal("expected no job without a contact")
	}
}

func TestPlanSkipsPastRemindTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Appointment{
		ReservationID: "res-1",
		ClientEmail:   "ada@example.com",
		StartsAt:      now.Add(2 * time.Hour),
	}
	if _, ok := Plan(app, 24*time.Hour, now); ok {
		t.Fatal("expected no job when the reminder moment has passed")
	}
}

func TestPlanKeyChangesWithStartTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	app := Appointment{
		ReservationID: "res-1",
		ClientEmail:   "ada@example.com",
		StartsAt:      now.Add(48 * time.Hour),
	}
	first, _ := Plan(app, 24*time.Hour, now)
	app.StartsAt = app.StartsAt.Add(30 * time.Minute)
	second, _ := Plan(app, 24*time.Hour, now)
	if first.IdempotencyKey == second.IdempotencyKey {
		t.Fatal("expected a rescheduled appointment to produce a new idempotency key")
	}
}
