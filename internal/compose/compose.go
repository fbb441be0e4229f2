// Package compose renders the outgoing message body for one recipient.
package compose

import (
	"math/rand"
	"strings"
	"time"

	"github.com/lalithlochan/courier/internal/db"
)

// FallbackName is substituted for {name} when a contact has no display name.
const FallbackName = "Friend"

// dateLayout keeps the {date} token in a format a human would type.
const dateLayout = "January 2, 2006"

// Composer picks a body variant and fills recipient placeholders.
// Variant selection is uniform over the template's variations; when none
// exist the base body is used.
type Composer struct {
	rng *rand.Rand
	now func() time.Time
}

// New creates a composer. rng may be nil, in which case a time-seeded
// source is used; tests inject a fixed seed for deterministic selection.
func New(rng *rand.Rand) *Composer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Composer{
		rng: rng,
		now: time.Now,
	}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(rng *rand.Rand, now func() time.Time) *Composer {
	c := New(rng)
	c.now = now
	return c
}

// Compose returns the rendered message body for the given recipient.
//
// Each recognized token is replaced at its first occurrence only. That is a
// deliberate compatibility choice; bodies that repeat a token keep the later
// occurrences verbatim.
func (c *Composer) Compose(tmpl *db.Template, variations []db.TemplateVariation, contact *db.Contact) string {
	body := tmpl.Body
	if len(variations) > 0 {
		body = variations[c.rng.Intn(len(variations))].Body
	}

	name := contact.Name
	if strings.TrimSpace(name) == "" {
		name = FallbackName
	}

	body = strings.Replace(body, "{name}", name, 1)
	body = strings.Replace(body, "{date}", c.now().Format(dateLayout), 1)
	return body
}
