package probe

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"flightetl/internal/schema"
)

// inferKind guesses the schema kind of a column from its sampled values.
// Every non-empty value must satisfy the narrower kind for it to win, so a
// single stray letter demotes a column to string. Columns that are empty
// throughout the sample infer as "".
func inferKind(values []string) string {
	vals := nonEmptyTrimmed(values)
	if len(vals) == 0 {
		return ""
	}
	switch {
	case all(vals, isBit):
		return schema.KindBool.String()
	case all(vals, isInt):
		return schema.KindInt.String()
	case all(vals, isFloat):
		return schema.KindFloat.String()
	default:
		return schema.KindString.String()
	}
}

func nonEmptyTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func all(values []string, fn func(string) bool) bool {
	for _, v := range values {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isBit matches the 0/1 encoding the flag columns use. Checked before isInt
// so an all-flags column infers bool rather than int.
func isBit(s string) bool { return s == "0" || s == "1" }

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// kindsAgree reports whether an inferred kind is consistent with a declared
// one. Inference runs narrower than declaration in some benign cases: a 0/1
// column reads as bool even when declared int, whole-minute delays read as
// int though declared float, and enum vocabularies read as string.
func kindsAgree(declared, inferred string) bool {
	if declared == inferred {
		return true
	}
	switch declared {
	case "int":
		return inferred == "bool"
	case "float":
		return inferred == "int" || inferred == "bool"
	case "string":
		return true
	case "enum":
		return inferred == "string" || inferred == "int" || inferred == "bool"
	}
	return false
}

// suggestName looks for the dictionary column an unknown header most likely
// means: the same name once accents, case, and separators are folded away.
// A candidate already present in the header under its canonical spelling is
// skipped, since renaming onto it would create a duplicate.
func suggestName(reg *schema.Registry, name string, present map[string]bool) (string, bool) {
	folded := foldName(name)
	if folded == "" {
		return "", false
	}
	for _, d := range reg.Base() {
		if present[d.Name] {
			continue
		}
		if foldName(d.Name) == folded {
			return d.Name, true
		}
	}
	return "", false
}

// foldName reduces a column name to a comparable skeleton: lower-cased,
// accents stripped (NFD, drop nonspacing marks, NFC), everything outside
// [a-z0-9] removed. "Départure-Délay" and "departure_delay" fold to the same
// skeleton.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, strings.ToLower(s))

	var b strings.Builder
	for _, r := range ascii {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
