// Package projector folds parsed NAXML documents into the operational
// store: reference-entity sync from maintenance files, transaction
// ingest from journals, and fuel/day rollups from movement reports.
// Every method runs inside a transaction owned by the caller and writes
// only rows scoped to the target store.
package projector

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cstorehq/backoffice/pkg/adapter"
	"github.com/cstorehq/backoffice/pkg/store"
)

// Target binds a projection to its integration and vendor profile.
type Target struct {
	CompanyID string
	StoreID   string
	Profile   *adapter.Profile

	// FileHash is the SHA-256 of the source file, stamped on every
	// projected row for lineage and dedup.
	FileHash string
}

// PosSource is the provenance stamp for rows projected under this target.
func (t Target) PosSource() string { return t.Profile.Type.PosSource() }

// SalesDay converts a movement-header business date into the calendar
// day its sales belong to, per the vendor profile.
func (t Target) SalesDay(businessDate time.Time) time.Time {
	return t.Profile.SalesDay(businessDate)
}

// Projector writes projections through the store.
type Projector struct {
	store *store.Store
	log   *slog.Logger
}

// New builds a projector over the operational store.
func New(s *store.Store, log *slog.Logger) *Projector {
	return &Projector{store: s, log: log.With("component", "projector")}
}

var localCodeRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

// deriveCode produces the local code for a newly discovered entity: the
// vendor code when it is already code-shaped, otherwise a slug of the
// display name.
func deriveCode(posCode, name string) string {
	upper := strings.ToUpper(strings.TrimSpace(posCode))
	if localCodeRe.MatchString(upper) {
		if len(upper) > 50 {
			upper = upper[:50]
		}
		return upper
	}
	return slugify(name)
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	if len(out) > 50 {
		out = out[:50]
	}
	return out
}
