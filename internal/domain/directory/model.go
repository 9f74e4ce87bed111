package directory

import (
	"strings"
	"time"
	"unicode"
)

// Patient maps to the patients table. The scheduling core only reads the
// display fields; it snapshots them onto appointments at booking time.
type Patient struct {
	ID        string    `db:"id" json:"id"`
	ShortID   *string   `db:"short_id" json:"short_id,omitempty"`
	FullName  string    `db:"full_name" json:"full_name"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctors table. The registry is seeded from
// configuration at startup but persisted so historical appointments keep
// resolving to a usable label after a doctor is removed from the config.
type Doctor struct {
	ID       string  `db:"id" json:"id"`
	Label    string  `db:"label" json:"label"`
	Color    *string `db:"color" json:"color,omitempty"`
	Position int     `db:"position" json:"position"`
}

// Slugify derives a stable doctor id from a display label:
// "Dr. Lina" becomes "dr-lina".
func Slugify(label string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
