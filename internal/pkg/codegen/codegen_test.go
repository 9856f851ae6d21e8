package codegen

import (
	"strings"
	"testing"
)

func TestGenerateSecureSlugLengthAndCharset(t *testing.T) {
	for _, length := range []int{1, 8, 12, 32} {
		slug, err := GenerateSecureSlug(length)
		if err != nil {
			t.Fatalf("GenerateSecureSlug(%d): %v", length, err)
		}
		if len(slug) != length {
			t.Fatalf("expected length %d, got %d (%q)", length, len(slug), slug)
		}
		for _, r := range slug {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("slug %q contains character %q outside the alphabet", slug, r)
			}
		}
	}
}

func TestGenerateSecureSlugRejectsInvalidLength(t *testing.T) {
	if _, err := GenerateSecureSlug(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := GenerateSecureSlug(-5); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestGenerateSecureSlugIsNotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		slug, err := GenerateSecureSlug(12)
		if err != nil {
			t.Fatalf("GenerateSecureSlug: %v", err)
		}
		if seen[slug] {
			t.Fatalf("duplicate slug after %d draws: %q", i, slug)
		}
		seen[slug] = true
	}
}

func TestGenerateActivationCode(t *testing.T) {
	code, err := GenerateActivationCode()
	if err != nil {
		t.Fatalf("GenerateActivationCode: %v", err)
	}
	if !strings.HasPrefix(code, CodePrefix) {
		t.Fatalf("expected prefix %q, got %q", CodePrefix, code)
	}
	if len(code) != len(CodePrefix)+12 {
		t.Fatalf("unexpected code length: %q", code)
	}
}
