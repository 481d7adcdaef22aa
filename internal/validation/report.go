package validation

import "fmt"

// Códigos estáveis dos achados, usados pelo worker e pela API.
const (
	CodeAccessKeyMalformed       = "access_key_malformed"
	CodeDuplicateDocument        = "duplicate_document"
	CodeSupplierTaxIDInvalid     = "supplier_tax_id_invalid"
	CodeNCMInvalid               = "ncm_invalid"
	CodeCFOPInvalid              = "cfop_invalid"
	CodeCFOPShifted              = "cfop_shifted"
	CodeRecipientTaxIDSuspicious = "recipient_tax_id_suspicious"
	CodeTotalMismatch            = "total_mismatch"
	CodeTotalCorrected           = "total_corrected"
)

// Finding é um item do relatório. Item é o nItem (0 = cabeçalho).
type Finding struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Item    int    `json:"item,omitempty"`
	Message string `json:"message"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

func (f Finding) String() string {
	if f.Item > 0 {
		return fmt.Sprintf("item %d: %s", f.Item, f.Message)
	}
	return f.Message
}

// Report separa erros (bloqueiam a importação), avisos e correções já
// aplicadas no documento.
type Report struct {
	Errors      []Finding `json:"errors"`
	Warnings    []Finding `json:"warnings"`
	Corrections []Finding `json:"corrections"`
}

func (r *Report) IsValid() bool {
	return len(r.Errors) == 0
}

func (r *Report) HasCode(code string) bool {
	for _, list := range [][]Finding{r.Errors, r.Warnings, r.Corrections} {
		for _, f := range list {
			if f.Code == code {
				return true
			}
		}
	}
	return false
}

// Summary resume as contagens para logs e respostas.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d erro(s), %d aviso(s), %d correção(ões)",
		len(r.Errors), len(r.Warnings), len(r.Corrections))
}

func (r *Report) addError(f Finding) { r.Errors = append(r.Errors, f) }
func (r *Report) addWarning(f Finding) { r.Warnings = append(r.Warnings, f) }
func (r *Report) addCorrection(f Finding) { r.Corrections = append(r.Corrections, f) }
