package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("client", "c1")

	expected := `client "c1" not found`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to wrap ErrNotFound")
	}

	if !IsNotFound(err) {
		t.Error("IsNotFound should return true")
	}
}

func TestNotFoundError_NoID(t *testing.T) {
	err := NewNotFoundError("registered node", "")

	expected := "registered node not found"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestConflictError(t *testing.T) {
	err := NewConflictError("registered node", "peer1")

	expected := `registered node "peer1" already exists`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !IsConflict(err) {
		t.Error("IsConflict should return true")
	}
	if IsNotFound(err) {
		t.Error("conflict must not classify as not found")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("quota", "must be a signed integer")

	expected := "quota: must be a signed integer"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}

	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected error to wrap ErrInvalidInput")
	}

	if !IsValidationError(err) {
		t.Error("IsValidationError should return true")
	}
}

func TestRequiredError(t *testing.T) {
	err := RequiredError("client_id")

	expected := "client_id: is required"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestStoreError_WrappedClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreError("insert registered node", cause)

	if !IsStoreFailure(err) {
		t.Error("IsStoreFailure should return true")
	}

	wrapped := fmt.Errorf("register: %w", err)
	if !errors.Is(wrapped, ErrStore) {
		t.Error("wrapped error should still match ErrStore")
	}
}

func TestIndeterminateDistinctFromNotFound(t *testing.T) {
	err := fmt.Errorf("fetch channels: %w", ErrIndeterminate)

	if !IsIndeterminate(err) {
		t.Error("IsIndeterminate should return true")
	}
	if IsNotFound(err) || IsStoreFailure(err) {
		t.Error("indeterminate must not classify as another taxonomy member")
	}
}
