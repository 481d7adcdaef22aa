package fiscal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShiftOutboundCFOP(t *testing.T) {
	tests := []struct {
		cfop string
		dir  Direction
		want string
		ok   bool
	}{
		{"5102", DirectionEntrada, "4102", true},
		{"5.405", DirectionDevolucao, "4405", true},
		{"1102", DirectionEntrada, "1102", false},
		{"6102", DirectionEntrada, "6102", false},
		{"5102", DirectionSaida, "5102", false},
		{"5000", DirectionEntrada, "5000", false},
		{"", DirectionEntrada, "", false},
	}
	for _, tt := range tests {
		got, ok := ShiftOutboundCFOP(tt.cfop, tt.dir)
		assert.Equal(t, tt.want, got, tt.cfop)
		assert.Equal(t, tt.ok, ok, tt.cfop)
	}
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-03-10", NormalizeDate("2024-03-10T10:00:00-03:00"))
	assert.Equal(t, "2024-03-10", NormalizeDate("2024-03-10"))
	assert.Equal(t, "2024-03-10", NormalizeDate("10/03/2024"))
	assert.Equal(t, "", NormalizeDate("  "))
}

func TestCaseVariants(t *testing.T) {
	assert.Equal(t, []string{"serie", "Serie", "SERIE"}, caseVariants("serie"))
	assert.Equal(t, []string{"CFOP"}, caseVariants("CFOP")[:1])
	assert.Nil(t, caseVariants(""))
}
