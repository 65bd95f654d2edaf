package payments

import (
	"regexp"
	"testing"
)

func TestReferenceGenerator(t *testing.T) {
	g := NewReferenceGenerator("test-secret")

	t.Run("Given a member id When Generate called Then the reference matches the documented shape", func(t *testing.T) {
		ref := g.Generate(42)

		format := regexp.MustCompile(`^PAY-\d{8}-[A-Z0-9]{8}$`)
		if !format.MatchString(ref) {
			t.Errorf("reference %q does not match PAY-YYYYMMDD-XXXXXXXX", ref)
		}
	})

	t.Run("Given repeated generation for one member When Generate called Then references never collide", func(t *testing.T) {
		seen := make(map[string]bool, 1000)
		for i := 0; i < 1000; i++ {
			ref := g.Generate(42)
			if seen[ref] {
				t.Fatalf("duplicate reference %q after %d generations", ref, i)
			}
			seen[ref] = true
		}
	})
}
