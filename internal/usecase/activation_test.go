package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zvaradi/flipgate/internal/core/domain"
	"github.com/zvaradi/flipgate/internal/core/port"
	"github.com/zvaradi/flipgate/internal/infra/retry"
	"github.com/zvaradi/flipgate/internal/repository"
)

// events is the interface, not the stub pointer: a nil argument must reach
// the constructor as a nil interface so the publish guards hold.
func newActivationService(codes *stubCodeRepository, identity *stubIdentityProvider, sessions *stubSessionStore, events port.EventPublisher) *ActivationService {
	return NewActivationService(codes, identity, sessions, events, ActivationConfig{
		ValidateTimeout: time.Second,
		CommitTimeout:   time.Second,
		IdentityRetry:   retry.NewPolicy(3, 0),
	}, nil)
}

func TestEnsureIdentity_ReusesExisting(t *testing.T) {
	identity := &stubIdentityProvider{}
	service := newActivationService(newStubCodeRepository(), identity, newStubSessionStore(), nil)

	got, err := service.EnsureIdentity(context.Background(), "user-existing")
	if err != nil {
		t.Fatalf("EnsureIdentity returned error: %v", err)
	}
	if got.UserID != "user-existing" {
		t.Errorf("UserID = %q, want user-existing", got.UserID)
	}
	if identity.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0 for existing identity", identity.createCalls)
	}
}

func TestEnsureIdentity_RetriesOnFailure(t *testing.T) {
	identity := &stubIdentityProvider{
		createErrs: []error{errors.New("transient"), errors.New("transient")},
		nextUserID: "user-1",
	}
	service := newActivationService(newStubCodeRepository(), identity, newStubSessionStore(), nil)

	got, err := service.EnsureIdentity(context.Background(), "")
	if err != nil {
		t.Fatalf("EnsureIdentity returned error: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", got.UserID)
	}
	if identity.createCalls != 3 {
		t.Errorf("createCalls = %d, want 3 (two failures then success)", identity.createCalls)
	}
}

func TestEnsureIdentity_GivesUpAfterCap(t *testing.T) {
	identity := &stubIdentityProvider{
		createErrs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	service := newActivationService(newStubCodeRepository(), identity, newStubSessionStore(), nil)

	if _, err := service.EnsureIdentity(context.Background(), ""); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if identity.createCalls != 3 {
		t.Errorf("createCalls = %d, want exactly 3", identity.createCalls)
	}
}

func TestValidateCode_DecisionTable(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{Code: "GOOD-CODE", Status: domain.CodeStatusUnused, MaxDevices: 2})
	codes.put(domain.ActivationCode{
		Code:   "USED-CODE",
		Status: domain.CodeStatusActive,
		Devices: []domain.DeviceBinding{
			{DeviceID: "known-device"},
		},
		MaxDevices: 2,
	})
	codes.put(domain.ActivationCode{
		Code:   "FULL-CODE",
		Status: domain.CodeStatusActive,
		Devices: []domain.DeviceBinding{
			{DeviceID: "d1"}, {DeviceID: "d2"},
		},
		MaxDevices: 2,
	})

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), nil)

	tests := []struct {
		name             string
		code             string
		deviceID         string
		valid            bool
		alreadyActivated bool
		requiresBinding  bool
		message          string
	}{
		{"too short", "abc", "device-1", false, false, false, ""},
		{"unknown code", "NOPE-NOPE", "device-1", false, false, false, ""},
		{"usable unused code", "good-code", "device-1", true, false, true, ""},
		{"device already bound", "USED-CODE", "known-device", true, true, false, ""},
		{"new device on used code", "USED-CODE", "device-2", true, false, true, ""},
		{"capacity exhausted", "FULL-CODE", "device-3", false, false, false, "maximum"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := service.ValidateCode(context.Background(), tc.code, tc.deviceID)
			if err != nil {
				t.Fatalf("ValidateCode returned error: %v", err)
			}
			if result.Valid != tc.valid {
				t.Errorf("Valid = %v, want %v", result.Valid, tc.valid)
			}
			if result.AlreadyActivated != tc.alreadyActivated {
				t.Errorf("AlreadyActivated = %v, want %v", result.AlreadyActivated, tc.alreadyActivated)
			}
			if result.RequiresBinding != tc.requiresBinding {
				t.Errorf("RequiresBinding = %v, want %v", result.RequiresBinding, tc.requiresBinding)
			}
			if !result.Valid && result.Message == "" {
				t.Errorf("expected a message for invalid result")
			}
			if tc.message != "" && !strings.Contains(result.Message, tc.message) {
				t.Errorf("Message = %q, want it to contain %q", result.Message, tc.message)
			}
		})
	}
}

func TestValidateCode_RequiresDeviceID(t *testing.T) {
	service := newActivationService(newStubCodeRepository(), &stubIdentityProvider{}, newStubSessionStore(), nil)

	if _, err := service.ValidateCode(context.Background(), "GOOD-CODE", " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBindDevice_Transactional(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{Code: "GOOD-CODE", Status: domain.CodeStatusUnused, MaxDevices: 2})
	events := &stubPublisher{}

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), events)

	result, err := service.BindDevice(context.Background(), "good-code", "device-1", "Mozilla/5.0 (iPhone) Mobile", "iPhone")
	if err != nil {
		t.Fatalf("BindDevice returned error: %v", err)
	}
	if result.Fallback {
		t.Errorf("expected transactional path")
	}
	if result.Record.Status != domain.CodeStatusActive {
		t.Errorf("Status = %q, want active", result.Record.Status)
	}
	if result.Record.Devices[0].DeviceType != domain.DeviceTypeMobile {
		t.Errorf("DeviceType = %q, want mobile", result.Record.Devices[0].DeviceType)
	}
	if len(events.bound) != 1 {
		t.Errorf("bound events = %d, want 1", len(events.bound))
	}
	if len(events.activated) != 1 {
		t.Errorf("activated events = %d, want 1 for first binding", len(events.activated))
	}
}

func TestBindDevice_FallbackWhenTransactionUnavailable(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{Code: "GOOD-CODE", Status: domain.CodeStatusUnused, MaxDevices: 2})
	codes.bindErr = repository.ErrTransactionUnavailable

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), nil)

	result, err := service.BindDevice(context.Background(), "GOOD-CODE", "device-1", "", "")
	if err != nil {
		t.Fatalf("BindDevice returned error: %v", err)
	}
	if !result.Fallback {
		t.Errorf("expected fallback path")
	}
	if codes.updateCalls != 1 {
		t.Errorf("updateCalls = %d, want 1", codes.updateCalls)
	}

	record, err := codes.GetByCode(context.Background(), "GOOD-CODE")
	if err != nil {
		t.Fatalf("GetByCode returned error: %v", err)
	}
	if !record.HasDevice("device-1") {
		t.Errorf("expected binding to persist via fallback write")
	}
}

func TestBindDevice_FallbackHonoursCapacity(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{
		Code:       "FULL-CODE",
		Status:     domain.CodeStatusActive,
		Devices:    []domain.DeviceBinding{{DeviceID: "d1"}, {DeviceID: "d2"}},
		MaxDevices: 2,
	})
	codes.bindErr = repository.ErrTransactionUnavailable

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), nil)

	if _, err := service.BindDevice(context.Background(), "FULL-CODE", "d3", "", ""); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestBindDevice_CapacityError(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{
		Code:       "FULL-CODE",
		Status:     domain.CodeStatusActive,
		Devices:    []domain.DeviceBinding{{DeviceID: "d1"}, {DeviceID: "d2"}},
		MaxDevices: 2,
	})

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), nil)

	if _, err := service.BindDevice(context.Background(), "FULL-CODE", "d3", "", ""); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestBindDevice_UnknownCode(t *testing.T) {
	service := newActivationService(newStubCodeRepository(), &stubIdentityProvider{}, newStubSessionStore(), nil)

	if _, err := service.BindDevice(context.Background(), "NOPE-NOPE", "device-1", "", ""); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("err = %v, want ErrCodeNotFound", err)
	}
}

func TestBindDevice_ConcurrentLastSlot(t *testing.T) {
	codes := newStubCodeRepository()
	codes.put(domain.ActivationCode{
		Code:       "GOOD-CODE",
		Status:     domain.CodeStatusActive,
		Devices:    []domain.DeviceBinding{{DeviceID: "d1"}},
		MaxDevices: 2,
	})

	service := newActivationService(codes, &stubIdentityProvider{}, newStubSessionStore(), nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, deviceID := range []string{"d2", "d3"} {
		wg.Add(1)
		go func(i int, deviceID string) {
			defer wg.Done()
			_, errs[i] = service.BindDevice(context.Background(), "GOOD-CODE", deviceID, "", "")
		}(i, deviceID)
	}
	wg.Wait()

	record, err := codes.GetByCode(context.Background(), "GOOD-CODE")
	if err != nil {
		t.Fatalf("GetByCode returned error: %v", err)
	}
	if len(record.Devices) > 2 {
		t.Errorf("Devices = %d, want at most 2", len(record.Devices))
	}

	var denied int
	for _, bindErr := range errs {
		if errors.Is(bindErr, ErrCapacityExceeded) {
			denied++
		} else if bindErr != nil {
			t.Errorf("unexpected bind error: %v", bindErr)
		}
	}
	if denied != 1 {
		t.Errorf("denied = %d, want exactly one loser", denied)
	}
}

func TestCommitSession_Success(t *testing.T) {
	sessions := newStubSessionStore()
	events := &stubPublisher{}
	service := newActivationService(newStubCodeRepository(), &stubIdentityProvider{}, sessions, events)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	service.WithClock(func() time.Time { return now })

	session, err := service.CommitSession(context.Background(), "user-1", "Mozilla/5.0", "MacIntel")
	if err != nil {
		t.Fatalf("CommitSession returned error: %v", err)
	}
	if session.Token != "identity-token-user-1" {
		t.Errorf("Token = %q, want issued identity token", session.Token)
	}
	if session.Fallback {
		t.Errorf("expected non-degraded session")
	}
	if !session.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", session.CreatedAt, now)
	}

	stored, err := sessions.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if stored.Token != session.Token {
		t.Errorf("persisted token mismatch")
	}
	if len(events.committed) != 1 {
		t.Errorf("committed events = %d, want 1", len(events.committed))
	}
}

func TestCommitSession_DegradedOnTokenFailure(t *testing.T) {
	sessions := newStubSessionStore()
	identity := &stubIdentityProvider{tokenErr: errors.New("kid rotation in progress")}
	service := newActivationService(newStubCodeRepository(), identity, sessions, nil)

	session, err := service.CommitSession(context.Background(), "user-1", "", "")
	if err != nil {
		t.Fatalf("CommitSession returned error: %v", err)
	}
	if !session.IsDegraded() {
		t.Fatalf("expected degraded session")
	}
	if session.Token != "" {
		t.Errorf("Token = %q, want empty on degraded commit", session.Token)
	}
	if session.FallbackError == "" {
		t.Errorf("expected fallback error to be recorded")
	}
}

func TestCommitSession_StorageFailure(t *testing.T) {
	sessions := newStubSessionStore()
	sessions.saveErr = errors.New("redis down")
	service := newActivationService(newStubCodeRepository(), &stubIdentityProvider{}, sessions, nil)

	if _, err := service.CommitSession(context.Background(), "user-1", "", ""); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestSignOutAndState(t *testing.T) {
	sessions := newStubSessionStore()
	service := newActivationService(newStubCodeRepository(), &stubIdentityProvider{}, sessions, nil)

	if state := service.StateFor(context.Background(), ""); state != StateUnauthenticated {
		t.Errorf("state = %q, want unauthenticated", state)
	}
	if state := service.StateFor(context.Background(), "user-1"); state != StateIdentityReady {
		t.Errorf("state = %q, want identity_ready before commit", state)
	}

	if _, err := service.CommitSession(context.Background(), "user-1", "", ""); err != nil {
		t.Fatalf("CommitSession returned error: %v", err)
	}
	if state := service.StateFor(context.Background(), "user-1"); state != StateCommitted {
		t.Errorf("state = %q, want committed", state)
	}

	if err := service.SignOut(context.Background(), "user-1"); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if _, err := service.Session(context.Background(), "user-1"); !errors.Is(err, ErrNotActivated) {
		t.Errorf("err = %v, want ErrNotActivated after sign-out", err)
	}
}
