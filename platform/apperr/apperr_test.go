package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:   http.StatusNotFound,
		KindBadRequest: http.StatusBadRequest,
		KindValidation: http.StatusBadRequest,
		KindConflict:   http.StatusConflict,
		KindTransient:  http.StatusServiceUnavailable,
		KindInternal:   http.StatusInternalServerError,
		KindUnknown:    http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := New(kind, "x").HTTPStatus(); got != want {
			t.Fatalf("kind %d: expected %d, got %d", kind, want, got)
		}
	}
}

func TestGetKindFollowsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("create appointment: %w", Conflict("slot taken"))
	if !Is(err, KindConflict) {
		t.Fatalf("expected wrapped conflict to be detected, got kind %d", GetKind(err))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain error to have unknown kind")
	}
}

func TestWrapKeepsCauseButHidesItFromMessage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindNotFound, "doctor service temporarily unavailable", cause)
	if err.Error() != "doctor service temporarily unavailable" {
		t.Fatalf("expected caller-safe message, got %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable through errors.Is")
	}
	if KindTransient.String() != "unavailable" || Kind(99).String() != "unknown" {
		t.Fatalf("unexpected kind codes %q %q", KindTransient.String(), Kind(99).String())
	}
}
