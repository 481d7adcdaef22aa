package fiscal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// DefaultMaxXMLBytes limita o tamanho de um documento aceito pelo extrator.
const DefaultMaxXMLBytes = 5 << 20

// Options controla a extração. XSDPath vazio desliga a validação por schema.
type Options struct {
	XSDPath  string
	MaxBytes int64
}

// ============================================================================
// Função principal de extração
// ============================================================================

// Extract detecta o tipo do documento e devolve a representação intermediária.
// Não há efeitos colaterais: nada é gravado, nada é corrigido além dos ajustes
// de CFOP registrados em Adjustments.
func Extract(data []byte, opts Options) (*ParsedInvoice, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxXMLBytes
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %d bytes (limite %d)", ErrInputTooLarge, len(data), limit)
	}

	root, err := parseTree(data)
	if err != nil {
		return nil, err
	}

	kind, err := detectKind(root)
	if err != nil {
		return nil, err
	}

	// Validação XSD (opcional) só faz sentido para o layout nacional da NF-e.
	if kind == KindNFe && opts.XSDPath != "" {
		if err := validateXMLWithXSD(data, opts.XSDPath); err != nil {
			return nil, err
		}
	}

	var inv *ParsedInvoice
	switch kind {
	case KindNFe:
		inv, err = extractNFe(data, &tagIndex{root: root})
	case KindNFSe:
		inv, err = extractNFSe(root)
	}
	if err != nil {
		return nil, err
	}

	// hash_integridade = SHA-256 do XML bruto
	hash := sha256.Sum256(data)
	inv.IntegrityHash = hex.EncodeToString(hash[:])
	inv.RawXML = data

	return inv, nil
}

// ExtractFile lê o arquivo e chama Extract.
func ExtractFile(path string, opts Options) (*ParsedInvoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("erro lendo XML %s: %w", path, err)
	}
	inv, err := Extract(data, opts)
	if err != nil {
		return nil, fmt.Errorf("erro extraindo %s: %w", path, err)
	}
	return inv, nil
}
