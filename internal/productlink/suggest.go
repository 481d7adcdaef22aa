package productlink

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/textnorm"
)

// Suggestion é um candidato ranqueado com a justificativa legível.
type Suggestion struct {
	Product Product `json:"product"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

const (
	weightGTIN       = 100.0
	weightNCM        = 40.0
	weightNCMHeading = 15.0
	weightSimilarity = 50.0
	weightOverlap    = 30.0

	minSimilarity = 0.5
	minTokenLen   = 3
)

// Suggest busca candidatos no cadastro usando NCM, GTIN e descrição. Nada é
// aplicado: a escolha é sempre do usuário.
func (r *Resolver) Suggest(ctx context.Context, companyID string, d Descriptor) ([]Suggestion, error) {
	tokens := textnorm.Tokens(d.Description, minTokenLen)
	ncm := fiscal.OnlyDigits(d.NCM)
	if ncm == "00000000" {
		ncm = ""
	}

	products, err := r.catalog.SearchProducts(ctx, CatalogQuery{
		CompanyID: companyID,
		NCM:       ncm,
		GTIN:      d.GTIN,
		Terms:     tokens,
		Limit:     r.limit * 5,
	})
	if err != nil {
		return nil, fmt.Errorf("erro buscando produtos: %w", err)
	}

	out := make([]Suggestion, 0, len(products))
	for _, p := range products {
		if s, ok := score(d, ncm, tokens, p); ok {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > r.limit {
		out = out[:r.limit]
	}
	return out, nil
}

func score(d Descriptor, ncm string, tokens []string, p Product) (Suggestion, bool) {
	var total float64
	var reasons []string

	if d.GTIN != "" && d.GTIN == p.GTIN {
		total += weightGTIN
		reasons = append(reasons, "GTIN idêntico")
	}

	pNCM := fiscal.OnlyDigits(p.NCM)
	switch {
	case ncm == "" || pNCM == "":
	case ncm == pNCM:
		total += weightNCM
		reasons = append(reasons, "mesmo NCM "+ncm)
	case len(ncm) >= 4 && len(pNCM) >= 4 && ncm[:4] == pNCM[:4]:
		total += weightNCMHeading
		reasons = append(reasons, "mesma posição NCM "+ncm[:4])
	}

	if ratio := similarity(d.Description, p.Name); ratio >= minSimilarity {
		total += ratio * weightSimilarity
		reasons = append(reasons, fmt.Sprintf("descrição %.0f%% semelhante", ratio*100))
	}

	if shared := sharedTokens(tokens, p.Name); len(shared) > 0 && len(tokens) > 0 {
		total += float64(len(shared)) / float64(len(tokens)) * weightOverlap
		reasons = append(reasons, "palavras em comum: "+strings.Join(shared, ", "))
	}

	if total == 0 {
		return Suggestion{}, false
	}
	return Suggestion{
		Product: p,
		Score:   total,
		Reason:  strings.Join(reasons, "; "),
	}, true
}

// similarity devolve 1 − distância/maior comprimento sobre os textos normalizados.
func similarity(a, b string) float64 {
	ra := []rune(textnorm.Normalize(a))
	rb := []rune(textnorm.Normalize(b))
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	ratio := 1 - float64(dist)/float64(longest)
	if ratio < 0 {
		return 0
	}
	return ratio
}

func sharedTokens(tokens []string, name string) []string {
	other := map[string]bool{}
	for _, tok := range textnorm.Tokens(name, minTokenLen) {
		other[tok] = true
	}
	var shared []string
	for _, tok := range tokens {
		if other[tok] {
			shared = append(shared, tok)
		}
	}
	return shared
}
