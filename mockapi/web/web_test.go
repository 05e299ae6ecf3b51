package web_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandeepmhskr/tiffinbox/mockapi/web"
	"github.com/sandeepmhskr/tiffinbox/mockapi/weberr"
)

func TestDecodeRejectsUnknownFields(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/carts", strings.NewReader(`{"combo_id":"CMB-1","bogus":1}`))
	w := httptest.NewRecorder()

	var in struct {
		ComboID string `json:"combo_id"`
	}
	err := web.Decode(w, r, &in)
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}

	body, status, ok := weberr.Response(err)
	if !ok {
		t.Fatal("error does not carry a response")
	}
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", status, http.StatusBadRequest)
	}
	if _, ok := body.(*weberr.ErrorResponse); !ok {
		t.Fatalf("body = %T, want *weberr.ErrorResponse", body)
	}
}

func TestRespondOmitsBodyOnNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	if err := web.Respond(context.Background(), w, map[string]string{"ignored": "x"}, http.StatusNoContent); err != nil {
		t.Fatal(err)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("204 response carried a body: %q", w.Body.String())
	}
}

func TestRespondSetsJSONContentType(t *testing.T) {
	w := httptest.NewRecorder()
	if err := web.Respond(context.Background(), w, map[string]int{"total": 900}, http.StatusOK); err != nil {
		t.Fatal(err)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", got)
	}
}
