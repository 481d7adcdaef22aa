package fiscal

import (
	"fmt"
	"os"

	xsdvalidate "github.com/form3tech-oss/go-xsd-validate"
)

// ============================================================================
// Helpers XSD
// ============================================================================

func validateXMLWithXSD(xmlData []byte, xsdPath string) error {
	if _, err := os.Stat(xsdPath); err != nil {
		return fmt.Errorf("XSD não encontrado em %s: %w", xsdPath, err)
	}

	if err := xsdvalidate.Init(); err != nil {
		return fmt.Errorf("erro inicializando validador XSD: %w", err)
	}
	defer xsdvalidate.Cleanup()

	xsdHandler, err := xsdvalidate.NewXsdHandlerUrl(xsdPath, xsdvalidate.ParsErrDefault)
	if err != nil {
		return fmt.Errorf("erro carregando XSD %s: %w", xsdPath, err)
	}
	defer xsdHandler.Free()

	if err := xsdHandler.ValidateMem(xmlData, xsdvalidate.ValidErrDefault); err != nil {
		return fmt.Errorf("%w (%s): %v", ErrSchemaInvalid, xsdPath, err)
	}

	return nil
}
