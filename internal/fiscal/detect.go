package fiscal

import "gopkg.in/xmlpath.v2"

var (
	nfeMarkers  = []string{"//infNFe", "//det"}
	nfseMarkers = []string{
		"//LoteRps", "//Rps", "//InfRps", "//InfDeclaracaoPrestacaoServico",
		"//InfNfse", "//CompNfse",
	}
)

// DetectKind decide entre NF-e e NFS-e pelas tags marcadoras.
func DetectKind(data []byte) (DocumentKind, error) {
	root, err := parseTree(data)
	if err != nil {
		return "", err
	}
	return detectKind(root)
}

func detectKind(root *xmlpath.Node) (DocumentKind, error) {
	if exists(root, nfeMarkers...) {
		return KindNFe, nil
	}
	if exists(root, nfseMarkers...) {
		return KindNFSe, nil
	}
	return "", ErrUnknownDocument
}
