package internal

import "testing"

func TestNewNumericCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewNumericCode(6)
		if err != nil {
			t.Fatalf("NewNumericCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}

	if _, err := NewNumericCode(3); err == nil {
		t.Fatal("expected error for 3 digits")
	}
}

func TestRandomIntBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		n, err := RandomInt(1, 9)
		if err != nil {
			t.Fatalf("RandomInt: %v", err)
		}
		if n < 1 || n > 9 {
			t.Fatalf("out of range: %d", n)
		}
	}
	if _, err := RandomInt(5, 4); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestNewCaptchaIDUnique(t *testing.T) {
	a, err := NewCaptchaID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCaptchaID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b || len(a) != 22 {
		t.Fatalf("unexpected ids %q %q", a, b)
	}
}
