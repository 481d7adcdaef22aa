// Package textnorm normaliza textos livres (descrições de produto, histórico
// de extrato) para comparação: sem acento, maiúsculo, só letras e dígitos.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^A-Z0-9 ]+`)
	whitespaceRegex      = regexp.MustCompile(`\s+`)
)

func Normalize(str string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	result, _, _ := transform.String(t, str)
	result = strings.ToUpper(result)
	result = nonAlphanumericRegex.ReplaceAllString(result, " ")
	result = whitespaceRegex.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}

// Tokens devolve as palavras normalizadas com pelo menos minLen caracteres,
// sem repetição, na ordem em que aparecem.
func Tokens(str string, minLen int) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range strings.Fields(Normalize(str)) {
		if len(tok) < minLen || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}
