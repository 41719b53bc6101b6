package ledger

import (
	"fmt"
	"slices"

	"github.com/disgoorg/snowflake/v2"
)

// Repair drops non-positive counts, recomputes totals and removes users left
// with nothing. Duplicate user ids keep their first position and merge
// counts. It returns one human readable line per fix.
func Repair(records []Record) ([]Record, []string) {
	var issues []string
	index := make(map[snowflake.ID]int, len(records))
	out := make([]Record, 0, len(records))

	for _, r := range records {
		emojis := make(map[Key]int, len(r.Entry.Emojis))
		sum := 0
		for k, v := range r.Entry.Emojis {
			if v <= 0 {
				issues = append(issues, fmt.Sprintf("user %s: dropped %q with count %d", r.UserID, k.String(), v))
				continue
			}
			emojis[k] = v
			sum += v
		}
		if sum != r.Entry.Total {
			issues = append(issues, fmt.Sprintf("user %s: total %d does not match counted %d", r.UserID, r.Entry.Total, sum))
		}

		if i, dup := index[r.UserID]; dup {
			issues = append(issues, fmt.Sprintf("user %s: duplicate entry merged", r.UserID))
			for k, v := range emojis {
				out[i].Entry.Emojis[k] += v
			}
			out[i].Entry.Total += sum
			continue
		}
		index[r.UserID] = len(out)
		out = append(out, Record{UserID: r.UserID, Entry: Entry{Total: sum, Emojis: emojis}})
	}

	out = slices.DeleteFunc(out, func(r Record) bool {
		if r.Entry.Total == 0 {
			issues = append(issues, fmt.Sprintf("user %s: removed empty entry", r.UserID))
			return true
		}
		return false
	})
	return out, issues
}

// Verify reports invariant violations in the live ledger. A healthy ledger
// returns nil.
func (l *Ledger) Verify() []string {
	_, issues := Repair(l.Records())
	return issues
}
