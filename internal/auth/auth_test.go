package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/txprocessor/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			testlog.Start(t)
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckHeader(t *testing.T) {
	testlog.Start(t)
	v := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	for header, wantErr := range map[string]error{
		"Bearer ok":   nil,
		"bearer  ok ": nil,
		"Bearer bad":  ErrUnauthorized,
		"Basic ok":    ErrUnauthorized,
		"Bearer":      ErrUnauthorized,
		"":            ErrUnauthorized,
	} {
		if err := CheckHeader(v, header); !errors.Is(err, wantErr) {
			t.Fatalf("header %q: expected %v, got %v", header, wantErr, err)
		}
	}
}
