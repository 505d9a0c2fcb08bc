// Package searchvec derives the text-search representation of a contact and
// scores queries against it.
//
// A vector is a deterministic, sorted list of lexemes with their positions:
//
//	'f100':7 'jane':1 'smith':2,5
//
// Positions count tokens across the indexed fields in a fixed order, so the
// same field values always produce byte-identical output.
package searchvec

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/starford/dossier/internal/models"
)

// Fields returns the indexed values of c in vector order.
func Fields(c *models.Contact) []string {
	company := ""
	if c.Company != nil {
		company = *c.Company
	}
	return []string{
		c.FirstName,
		c.LastName,
		c.Email,
		c.Address,
		c.PhoneNumber,
		c.FileNumber,
		company,
	}
}

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Build returns the vector for the given field values.
func Build(fields ...string) string {
	positions := make(map[string][]int)
	pos := 0
	for _, f := range fields {
		for _, tok := range Tokenize(f) {
			pos++
			positions[tok] = append(positions[tok], pos)
		}
	}
	if len(positions) == 0 {
		return ""
	}

	lexemes := make([]string, 0, len(positions))
	for lex := range positions {
		lexemes = append(lexemes, lex)
	}
	sort.Strings(lexemes)

	var b strings.Builder
	for i, lex := range lexemes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		b.WriteString(lex)
		b.WriteString("':")
		for j, p := range positions[lex] {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(p))
		}
	}
	return b.String()
}

// ForContact is Build over Fields(c).
func ForContact(c *models.Contact) string {
	return Build(Fields(c)...)
}

// parse returns lexeme -> occurrence count and the total number of positions.
func parse(vector string) (map[string]int, int) {
	counts := make(map[string]int)
	total := 0
	for _, entry := range strings.Fields(vector) {
		i := strings.LastIndex(entry, "':")
		if i < 1 || entry[0] != '\'' {
			continue
		}
		n := strings.Count(entry[i+2:], ",") + 1
		counts[entry[1:i]] = n
		total += n
	}
	return counts, total
}

// Terms returns the distinct query lexemes of text, in first-seen order.
func Terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range Tokenize(text) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Rank scores query against vector. Every query lexeme must be present for a
// match; a non-match scores 0 and any match scores above 0.
func Rank(vector, query string) float64 {
	terms := Terms(query)
	if len(terms) == 0 || vector == "" {
		return 0
	}
	counts, total := parse(vector)
	score := 0.0
	for _, t := range terms {
		n := counts[t]
		if n == 0 {
			return 0
		}
		score += 1 + math.Log(float64(n))
	}
	return score / (1 + math.Log(1+float64(total)))
}

// FTSQuery renders text as an FTS5 query: each lexeme quoted, implicitly ANDed.
// It returns "" when text has no lexemes.
func FTSQuery(text string) string {
	terms := Terms(text)
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " ")
}

// Document renders the vector back into plain text for engines that tokenize
// themselves (FTS5). Lexemes are repeated once per position.
func Document(vector string) string {
	counts, _ := parse(vector)
	lexemes := make([]string, 0, len(counts))
	for lex := range counts {
		lexemes = append(lexemes, lex)
	}
	sort.Strings(lexemes)
	var parts []string
	for _, lex := range lexemes {
		for i := 0; i < counts[lex]; i++ {
			parts = append(parts, lex)
		}
	}
	return strings.Join(parts, " ")
}
