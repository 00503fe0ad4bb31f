// Package encoder maps mule account ids onto the dense integer codes the
// regressor takes as its categorical input.
package encoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Unknown is the code given to ids that were not seen during Fit. It
// collides with the first trained class; use Lookup to tell them apart.
const Unknown = 0

var ErrInvalidTable = errors.New("encoder: invalid table")

// Table is an immutable id -> code mapping onto [0, K).
type Table struct {
	classes []string
	codes   map[string]int
}

// Fit builds a table from ids. Codes follow the lexicographic order of the
// distinct ids, so the result does not depend on input order.
func Fit(ids []string) *Table {
	seen := make(map[string]struct{}, len(ids))
	classes := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		classes = append(classes, id)
	}
	sort.Strings(classes)
	return fromClasses(classes)
}

func fromClasses(classes []string) *Table {
	codes := make(map[string]int, len(classes))
	for i, c := range classes {
		codes[c] = i
	}
	return &Table{classes: classes, codes: codes}
}

// Encode returns id's code, or Unknown for ids outside the training set.
func (t *Table) Encode(id string) int {
	if code, ok := t.Lookup(id); ok {
		return code
	}
	return Unknown
}

// Lookup returns id's code and whether id was seen during Fit.
func (t *Table) Lookup(id string) (int, bool) {
	if t == nil {
		return Unknown, false
	}
	code, ok := t.codes[id]
	return code, ok
}

// Decode returns the id for code.
func (t *Table) Decode(code int) (string, bool) {
	if t == nil || code < 0 || code >= len(t.classes) {
		return "", false
	}
	return t.classes[code], true
}

// Len is the number of classes K.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.classes)
}

// Classes returns the ids in code order.
func (t *Table) Classes() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.classes))
	copy(out, t.classes)
	return out
}

type tableFile struct {
	Classes []string `json:"classes"`
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(tableFile{Classes: t.Classes()})
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var f tableFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if !sort.StringsAreSorted(f.Classes) {
		return fmt.Errorf("%w: classes not sorted", ErrInvalidTable)
	}
	for i := 1; i < len(f.Classes); i++ {
		if f.Classes[i] == f.Classes[i-1] {
			return fmt.Errorf("%w: duplicate class %q", ErrInvalidTable, f.Classes[i])
		}
	}
	*t = *fromClasses(f.Classes)
	return nil
}

// Save writes the table as JSON to path.
func (t *Table) Save(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306 -- artifact is not secret
		return fmt.Errorf("write encoder table: %w", err)
	}
	return nil
}

// Load reads a table written by Save.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-configured artifact path
	if err != nil {
		return nil, fmt.Errorf("read encoder table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode encoder table: %w", err)
	}
	return &t, nil
}
