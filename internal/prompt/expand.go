// Package prompt implements template expansion for module and chain prompts.
//
// The grammar, applied in order within one template:
//
//	^^                       the most recent chain response
//	@prompt/<n>              the n-th prior chain response (1-based)
//	@ref/<name>[/<sel>]      project-scoped character sheet lookups
//	@key/<name>              a configured key value; the reserved key
//	                         "input" carries the per-invocation input
//
// Non-matching tokens are left verbatim.
package prompt

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/claymoreai/claymore/internal/domain"
)

var tokenRe = regexp.MustCompile(`@(ref|prompt)/([\w+/]+)`)

// Expander resolves chain templates. Characters backs @ref tokens; Rand is
// injectable for deterministic tests and defaults to math/rand.
type Expander struct {
	Characters domain.CharacterSource
	Rand       func(n int) int
}

// New constructs an Expander over the given character source.
func New(cs domain.CharacterSource) *Expander {
	return &Expander{Characters: cs, Rand: rand.Intn}
}

// ExpandStep expands one step of a prompt chain. responses holds the outputs
// of all earlier steps; their count is also the current step index, so
// @prompt/<n> resolves only for n within range and is otherwise left in
// place.
func (e *Expander) ExpandStep(ctx domain.Context, projectID, tpl string, responses []string) (string, error) {
	out := tpl
	if len(responses) > 0 {
		out = strings.ReplaceAll(out, "^^", responses[len(responses)-1])
	} else {
		out = strings.ReplaceAll(out, "^^", "")
	}

	for _, m := range tokenRe.FindAllStringSubmatch(out, -1) {
		kind := m[1]
		segs := strings.Split(m[2], "/")
		switch kind {
		case "ref":
			if e.Characters == nil {
				continue
			}
			entries, err := e.Characters.Lookup(ctx, projectID, segs[0])
			if err != nil {
				return "", fmt.Errorf("op=prompt.expand ref=%s: %w", segs[0], err)
			}
			out = strings.Replace(out, m[0], e.resolveRef(entries, segs), 1)
		case "prompt":
			n, err := strconv.Atoi(segs[0])
			if err != nil || n < 1 || n > len(responses) {
				continue
			}
			out = strings.ReplaceAll(out, m[0], responses[n-1])
		}
	}
	return out, nil
}

// resolveRef applies the selector segments to a character sheet.
func (e *Expander) resolveRef(entries []domain.CharacterEntry, segs []string) string {
	if len(entries) == 0 {
		return ""
	}
	switch len(segs) {
	case 1:
		// whole sheet
		parts := make([]string, 0, len(entries))
		for _, en := range entries {
			parts = append(parts, formatEntry(en))
		}
		return strings.Join(parts, ", ")
	case 2:
		if segs[1] == "random" {
			return formatEntry(entries[e.intn(len(entries))])
		}
		// "k1+k2+..." selects named keys
		var parts []string
		for _, key := range strings.Split(segs[1], "+") {
			if en, ok := findEntry(entries, key); ok {
				parts = append(parts, formatEntry(en))
			}
		}
		return strings.Join(parts, ", ")
	case 3:
		if segs[2] != "random" {
			return ""
		}
		en, ok := findEntry(entries, segs[1])
		if !ok || en.Type != "array" || len(en.Values) == 0 {
			return ""
		}
		return en.Values[e.intn(len(en.Values))]
	default:
		return ""
	}
}

func (e *Expander) intn(n int) int {
	if e.Rand != nil {
		return e.Rand(n)
	}
	return rand.Intn(n)
}

func findEntry(entries []domain.CharacterEntry, key string) (domain.CharacterEntry, bool) {
	for _, en := range entries {
		if en.Key == key {
			return en, true
		}
	}
	return domain.CharacterEntry{}, false
}

func formatEntry(en domain.CharacterEntry) string {
	return en.Key + ": " + entryValue(en)
}

func entryValue(en domain.CharacterEntry) string {
	if en.Type == "array" {
		return strings.Join(en.Values, "; ")
	}
	if len(en.Values) == 0 {
		return ""
	}
	return en.Values[0]
}

// ExpandKeys substitutes @key/<name> for every listed key using the value in
// its key config. Keys not listed are untouched.
func ExpandKeys(tpl string, keys []string, kcs map[string]domain.KeyConfig) string {
	out := tpl
	for _, k := range keys {
		out = strings.ReplaceAll(out, "@key/"+k, kcs[k].Value)
	}
	return out
}

// ExpandInput substitutes the reserved input key.
func ExpandInput(tpl, input string) string {
	return strings.ReplaceAll(tpl, "@key/input", input)
}
