package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"smarterdog/internal/database"
	"smarterdog/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testAppointment(id string) *models.Appointment {
	return &models.Appointment{
		ID:              id,
		GroomerID:       "groomer-1",
		Date:            "2025-06-09",
		StartTime:       "09:00:00",
		EndTime:         "10:30:00",
		DurationMinutes: 90,
		Status:          models.StatusPending,
		TotalCents:      5000,
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, testAppointment("appt-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sheets.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", sheets.upsertCalls)
	}
	if sheets.lastUpserted != "appt-1" {
		t.Fatalf("expected appt-1 upserted, got %q", sheets.lastUpserted)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, testAppointment("appt-2")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, rdb, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, TaskUpsert, testAppointment("appt-3")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}

	dead, err := mr.List(worker.deadLetterKey)
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
	var deadTask models.SyncTask
	if err := json.Unmarshal([]byte(dead[0]), &deadTask); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if deadTask.AppointmentID != "appt-3" {
		t.Fatalf("unexpected dead letter: %+v", deadTask)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskUpsert, AppointmentID: "appt-4", Payload: "not json"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// persisted but never queued in memory: picked up by polling
	payload, _ := json.Marshal(sheetTaskPayload{AppointmentID: "appt-5", Status: "cancelled"})
	task := models.SyncTask{TaskType: TaskUpdateStatus, AppointmentID: "appt-5", Payload: string(payload)}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, _, _ := loadTaskStatus(t, db, task.ID); status == database.SyncStatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != database.SyncStatusCompleted {
		t.Fatalf("expected polled task to complete, got %s", status)
	}
	if sheets.statusCalls != 1 {
		t.Fatalf("expected 1 status call, got %d", sheets.statusCalls)
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{Appointment: testAppointment("a")})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", sheets.upsertCalls)
		}
	})

	t.Run("UpsertMissingAppointment", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{AppointmentID: "a"}); err == nil {
			t.Fatalf("expected error without appointment")
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{AppointmentID: "a", Status: "confirmed"})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.statusCalls != 1 {
			t.Fatalf("expected 1 status call, got %d", sheets.statusCalls)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, "delete", sheetTaskPayload{AppointmentID: "a"}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, TaskUpdateStatus, testAppointment("appt-6")); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		task, ok := worker.tryLocalQueue()
		if !ok {
			t.Fatalf("expected queued task")
		}
		payload, err := worker.decodePayload(task.Payload)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload.Appointment != nil || payload.Status != "pending" {
			t.Fatalf("status task should carry only id and status: %+v", payload)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, "", testAppointment("x")); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("MissingAppointment", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, TaskUpsert, nil); err == nil {
			t.Fatalf("expected error for missing appointment")
		}
	})
}

func TestSheetsWorker_DecodePayload(t *testing.T) {
	worker := NewSheetsWorker(nil, nil, nil, RetryPolicy{}, nil)

	t.Run("ValidPayload", func(t *testing.T) {
		decoded, err := worker.decodePayload(`{"appointment_id":"appt-7","status":"confirmed"}`)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.AppointmentID != "appt-7" || decoded.Status != "confirmed" {
			t.Fatalf("unexpected decoded payload: %+v", decoded)
		}
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		if _, err := worker.decodePayload(`invalid json`); err == nil {
			t.Fatalf("expected error for invalid json")
		}
	})
}

// Helpers

type fakeSheets struct {
	err          error
	upsertCalls  int
	statusCalls  int
	lastUpserted string
}

func (f *fakeSheets) UpsertAppointment(_ context.Context, appt *models.Appointment) error {
	f.upsertCalls++
	f.lastUpserted = appt.ID
	return f.err
}

func (f *fakeSheets) UpdateAppointmentStatus(_ context.Context, _ string, _ models.AppointmentStatus) error {
	f.statusCalls++
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}.withDefaults()
	if policy.MaxRetries != 3 {
		t.Fatalf("explicit MaxRetries overwritten: %d", policy.MaxRetries)
	}
	if policy.InitialDelay != DefaultRetryPolicy.InitialDelay || policy.MaxDelay != DefaultRetryPolicy.MaxDelay {
		t.Fatalf("defaults not applied: %+v", policy)
	}
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatalf("unexpected exhaustion for MaxRetries=3")
	}
	if d := policy.NextDelay(100); d != DefaultRetryPolicy.MaxDelay {
		t.Fatalf("large attempt expected cap %s, got %s", DefaultRetryPolicy.MaxDelay, d)
	}
}
