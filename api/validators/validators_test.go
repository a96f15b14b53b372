package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

type bulkAssignBody struct {
	RiderID  string   `json:"rider_id" validate:"required,uuid"`
	OrderIDs []string `json:"order_ids" validate:"required,min=1,unique,dive,uuid"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rider_id":"nope","order_ids":[]}`))
	var body bulkAssignBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["rider_id"] != "must be a valid UUID" {
		t.Fatalf("unexpected rider_id detail %q", details["rider_id"])
	}
	if details["order_ids"] != "must be at least 1" {
		t.Fatalf("unexpected order_ids detail %q", details["order_ids"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"rider":"x"}`))
	var body bulkAssignBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	payload := `{"rider_id":"` + uuid.NewString() + `","order_ids":["` + uuid.NewString() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	var body bulkAssignBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(body.OrderIDs) != 1 {
		t.Fatalf("expected one order id")
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=20&date=2026-03-04&rider_id=bad", nil)

	limit, err := ParseQueryInt(req, "limit", 50, 1, 200)
	if err != nil || limit != 20 {
		t.Fatalf("unexpected limit %d (%v)", limit, err)
	}
	if _, err := ParseQueryInt(req, "limit", 50, 1, 10); err == nil {
		t.Fatalf("expected out of range error")
	}

	date, err := ParseQueryDate(req, "date", time.Time{})
	if err != nil || !date.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v (%v)", date, err)
	}
	if _, err := ParseQueryUUID(req, "rider_id"); err == nil {
		t.Fatalf("expected uuid error")
	}
	missing, err := ParseQueryUUID(req, "manifest_id")
	if err != nil || missing != nil {
		t.Fatalf("missing optional uuid should be nil, got %v (%v)", missing, err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := ParseUUIDParam(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("unexpected id %s (%v)", got, err)
	}
	if _, err := ParseUUIDParam(req, "manifestId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

func TestSanitizeStringCutsOnRuneBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"trims", "  left at gate  ", 0, "left at gate"},
		{"under cap", "ok", 10, "ok"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"multibyte cut", "ঢাকা উত্তর", 4, "ঢাকা"},
		{"emoji kept whole", "box📦📦", 4, "box📦"},
		{"control chars dropped", "door\x00 bell\x1b", 0, "door bell"},
		{"newline kept", "line one\nline two", 0, "line one\nline two"},
		{"cut then trimmed", "ab  cd", 3, "ab"},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.input, tc.maxLen); got != tc.want {
			t.Fatalf("%s: SanitizeString(%q, %d) = %q, want %q", tc.name, tc.input, tc.maxLen, got, tc.want)
		}
	}
}
