package utils

import (
	"errors"
	"reflect"
	"testing"
)

func TestSplitAndTrim(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ,, c ", []string{"a", "b", "c"}},
		{"", nil},
		{" , ", nil},
		{"single", []string{"single"}},
	}
	for _, tc := range cases {
		got := SplitAndTrim(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitAndTrim(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string must map to nil")
	}
	p := NilIfEmpty("x")
	if p == nil || *p != "x" {
		t.Fatalf("got %v", p)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %v", got)
	}
}

func TestJwtRoundTrip(t *testing.T) {
	token, err := JwtGenerate("u1", "alice", "Kigoma Agency", []string{"payment-requests"})
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := JwtValidate(token)
	if err != nil || !parsed.Valid {
		t.Fatalf("validate: %v", err)
	}
	claims, ok := parsed.Claims.(*JwtCustomClaim)
	if !ok {
		t.Fatal("wrong claims type")
	}
	if claims.UserId != "u1" || claims.Application != "Kigoma Agency" {
		t.Fatalf("claims: %+v", claims)
	}
	if !claims.HasScope("payment-requests") {
		t.Fatal("scope missing")
	}
	if claims.HasScope("admin") {
		t.Fatal("unexpected scope")
	}
}

func TestProcessValidationErrorsNonValidatorError(t *testing.T) {
	got := ProcessValidationErrors(errors.New("unexpected EOF"))
	if got["error"] != "unexpected EOF" {
		t.Fatalf("got %v", got)
	}
}
