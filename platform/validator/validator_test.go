package validator

import "testing"

func TestEmail(t *testing.T) {
	v := New()
	if err := v.Email(" billing@example.com "); err != nil {
		t.Fatalf("expected valid email, got %v", err)
	}
	for _, bad := range []string{"", "not-an-email", "a@"} {
		if err := v.Email(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestStructUsesTags(t *testing.T) {
	type req struct {
		Limit int `validate:"min=1,max=100"`
	}
	v := New()
	if err := v.Struct(req{Limit: 0}); err == nil {
		t.Fatal("expected min violation")
	}
	if err := v.Struct(req{Limit: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
