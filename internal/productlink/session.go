package productlink

import "fmt"

// Session representa o diálogo de vínculo aberto sobre os itens de uma nota.
type Session struct {
	targets []*Target
}

func NewSession(targets []*Target) *Session {
	return &Session{targets: targets}
}

// Pending devolve os itens ainda pendentes, na ordem da nota.
func (s *Session) Pending() []*Target {
	var out []*Target
	for _, t := range s.targets {
		if !t.LinkStatus.Resolved() {
			out = append(out, t)
		}
	}
	return out
}

// Abandon fecha o diálogo. Com itens pendentes, exige confirmação do usuário;
// nada em andamento precisa ser cancelado.
func (s *Session) Abandon(confirmed bool) error {
	n := len(s.Pending())
	if n == 0 || confirmed {
		return nil
	}
	return fmt.Errorf("%w: %d item(ns); confirme para sair mesmo assim", ErrPendingLinks, n)
}

// CheckAllResolved é a regra de postagem: nenhum item pendente.
func CheckAllResolved(targets []*Target) error {
	pending := 0
	for _, t := range targets {
		if !t.LinkStatus.Resolved() {
			pending++
			continue
		}
		if t.LinkStatus != StatusIgnored && t.LinkedProductID == "" {
			pending++
		}
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d item(ns) sem vínculo", ErrPendingLinks, pending)
	}
	return nil
}
