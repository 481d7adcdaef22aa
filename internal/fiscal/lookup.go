package fiscal

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/encoding/charmap"
	"gopkg.in/xmlpath.v2"
)

// Alguns emissores declaram o namespace da NF-e de um jeito que esconde tags
// de uma consulta estrutural ingênua. Toda busca de campo passa por aqui:
// primeiro o valor estrutural, depois uma varredura plana por nome local,
// tentando o nome como veio e as variações de caixa.

var pathCache sync.Map // string -> *xmlpath.Path

func compiledPath(expr string) *xmlpath.Path {
	if p, ok := pathCache.Load(expr); ok {
		return p.(*xmlpath.Path)
	}
	p, err := xmlpath.Compile(expr)
	if err != nil {
		return nil
	}
	pathCache.Store(expr, p)
	return p
}

// caseVariants devolve "serie", "Serie", "SERIE" sem repetir.
func caseVariants(name string) []string {
	if name == "" {
		return nil
	}
	out := []string{name}
	seen := map[string]bool{name: true}
	for _, v := range []string{
		strings.ToUpper(name[:1]) + name[1:],
		strings.ToLower(name[:1]) + name[1:],
		strings.ToUpper(name),
	} {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// findText devolve o texto do primeiro caminho que casar, relativo a node.
func findText(node *xmlpath.Node, exprs ...string) string {
	if node == nil {
		return ""
	}
	for _, expr := range exprs {
		p := compiledPath(expr)
		if p == nil {
			continue
		}
		if v, ok := p.String(node); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// findNode devolve o primeiro nó que casar com algum dos caminhos.
func findNode(node *xmlpath.Node, exprs ...string) *xmlpath.Node {
	if node == nil {
		return nil
	}
	for _, expr := range exprs {
		p := compiledPath(expr)
		if p == nil {
			continue
		}
		iter := p.Iter(node)
		if iter.Next() {
			return iter.Node()
		}
	}
	return nil
}

func exists(node *xmlpath.Node, exprs ...string) bool {
	return findNode(node, exprs...) != nil
}

// scanTag faz a varredura plana (independente de namespace) abaixo de node.
func scanTag(node *xmlpath.Node, names ...string) string {
	for _, name := range names {
		for _, variant := range caseVariants(name) {
			if v := findText(node, ".//"+variant); v != "" {
				return v
			}
		}
	}
	return ""
}

// tagIndex é a árvore do documento usada como fallback das consultas
// estruturais do encoding/xml.
type tagIndex struct {
	root *xmlpath.Node
}

// pick devolve o valor estrutural quando presente; senão, o primeiro nome que
// aparecer na varredura plana.
func (x *tagIndex) pick(structural string, names ...string) string {
	if v := strings.TrimSpace(structural); v != "" {
		return v
	}
	if x == nil || x.root == nil {
		return ""
	}
	return scanTag(x.root, names...)
}

// charsetReader cobre XML declarado em Latin-1 / Windows-1252.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("charset não suportado: %s", label)
}

func newDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	return dec
}

func parseTree(data []byte) (*xmlpath.Node, error) {
	root, err := xmlpath.ParseDecoder(newDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	return root, nil
}
