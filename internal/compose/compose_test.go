package compose

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/lalithlochan/courier/internal/db"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 9, 10, 0, 0, 0, time.Local)
}

func TestCompose_BaseBodyWhenNoVariations(t *testing.T) {
	c := NewWithClock(rand.New(rand.NewSource(1)), fixedClock)

	tmpl := &db.Template{Body: "Hi {name}, offer ends {date}."}
	contact := &db.Contact{Name: "Amina", Phone: "555"}

	got := c.Compose(tmpl, nil, contact)
	want := "Hi Amina, offer ends March 9, 2026."
	if got != want {
		t.Errorf("Compose() = %q, want %q", got, want)
	}
}

func TestCompose_SelectsVariationUniformly(t *testing.T) {
	c := NewWithClock(rand.New(rand.NewSource(42)), fixedClock)

	tmpl := &db.Template{Body: "base"}
	variations := []db.TemplateVariation{
		{Body: "variant a {name}"},
		{Body: "variant b {name}"},
		{Body: "variant c {name}"},
	}
	contact := &db.Contact{Name: "Noor"}

	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		body := c.Compose(tmpl, variations, contact)
		if strings.HasPrefix(body, "base") {
			t.Fatal("base body used even though variations exist")
		}
		seen[body[:9]]++
	}

	if len(seen) != 3 {
		t.Fatalf("expected all 3 variants selected over 300 draws, saw %d", len(seen))
	}
	for variant, n := range seen {
		if n < 50 {
			t.Errorf("variant %q drawn only %d/300 times, selection not uniform", variant, n)
		}
	}
}

func TestCompose_NameFallback(t *testing.T) {
	c := NewWithClock(rand.New(rand.NewSource(1)), fixedClock)

	tests := []struct {
		name        string
		contactName string
		want        string
	}{
		{"empty name", "", "Hello Friend"},
		{"whitespace name", "   ", "Hello Friend"},
		{"real name", "Dana", "Hello Dana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Compose(&db.Template{Body: "Hello {name}"}, nil, &db.Contact{Name: tt.contactName})
			if got != tt.want {
				t.Errorf("Compose() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompose_FirstOccurrenceOnly(t *testing.T) {
	c := NewWithClock(rand.New(rand.NewSource(1)), fixedClock)

	got := c.Compose(&db.Template{Body: "{name} and {name}"}, nil, &db.Contact{Name: "Rami"})
	if got != "Rami and {name}" {
		t.Errorf("Compose() = %q, want second token untouched", got)
	}
}
