package fixture

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

var march = time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)

func TestExpand_DateWildcards(t *testing.T) {
	wc := Wildcards{Now: march, ExchangeRate: 18.5}
	cases := [][2]string{
		{"{fechaactual}", "15/03/2025"},
		{"{mesactual}/{añoactual}", "03/2025"},
		{"{anoactual}", "2025"},
		{"{dia1_mes}", "01/03/2025"},
		{"{ultimo_dia_mes}", "31/03/2025"},
		{"{tcfixed}", "18.5000"},
		{"Servicios de {mes_texto}", "Servicios de marzo"},
		{"{mes_texto_mayus}", "MARZO"},
		{"{mes_anterior_texto}", "febrero"},
		{"{mes_siguiente_texto}", "abril"},
		{"sin comodines", "sin comodines"},
		{"{desconocido}", "{desconocido}"},
	}
	for _, c := range cases {
		require.Equal(t, c[1], wc.Expand(c[0]), c[0])
	}
}

func TestExpand_YearBoundaries(t *testing.T) {
	jan := Wildcards{Now: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)}
	require.Equal(t, "diciembre", jan.Expand("{mes_anterior_texto}"))

	dec := Wildcards{Now: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)}
	require.Equal(t, "enero", dec.Expand("{mes_siguiente_texto}"))

	feb := Wildcards{Now: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)}
	require.Equal(t, "29/02/2024", feb.Expand("{ultimo_dia_mes}"))
}

func TestExpand_ClientAndFolio(t *testing.T) {
	c := DefaultCatalog().Clients[0]
	wc := Wildcards{
		Now:       march,
		Client:    &c,
		NextFolio: func(series string) int { return len(series) + 40 },
	}
	require.Equal(t, "SCO020904AB1 STILO CONCEPTO SA DE CV", wc.Expand("{cliente_rfc} {cliente_nombre}"))

	// No series yet: the folio wildcard waits.
	require.Equal(t, "{SiguienteFolio}", wc.Expand("{SiguienteFolio}"))

	wc.Series = "AB"
	require.Equal(t, "42", wc.Expand("{SiguienteFolio}"))
}

func TestEvalFormula(t *testing.T) {
	wc := Wildcards{Now: march, ExchangeRate: 18.5}

	v, err := wc.EvalFormula("600*{tcfixed}")
	require.NoError(t, err)
	require.InDelta(t, 11100.0, v, 1e-9)

	v, err = wc.EvalFormula(" (500 + 100) / 4 - -2 ")
	require.NoError(t, err)
	require.InDelta(t, 152.0, v, 1e-9)

	for _, bad := range []string{"", "1+", "(1", "1/0", "0/0", "abc", "{tcfixed}x", "2**3", "7%2", "max(1,2)", "1 2"} {
		_, err := wc.EvalFormula(bad)
		require.Error(t, err, bad)
		require.Equal(t, errs.InvalidArgument, errs.CodeOf(err), bad)
		require.Contains(t, errs.MessageOf(err), "Error evaluando fórmula", bad)
	}
}

func TestEvalFormula_DivisionByZero(t *testing.T) {
	wc := Wildcards{Now: march, ExchangeRate: 18.5}
	_, err := wc.EvalFormula("1955/(3-3)")
	require.ErrorContains(t, err, "división entre cero")
	require.Equal(t, "Error evaluando fórmula '1955/(3-3)'", errs.MessageOf(err))
}

// =============================================================================
// Property: the evaluator follows integer arithmetic precedence
// =============================================================================

func testEvalExpr_Precedence(t *rapid.T) {
	a := rapid.IntRange(-500, 500).Draw(t, "a")
	b := rapid.IntRange(-500, 500).Draw(t, "b")
	c := rapid.IntRange(-500, 500).Draw(t, "c")

	got, err := evalExpr(fmt.Sprintf("%d+%d*%d", a, b, c))
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if want := float64(a + b*c); got != want {
		t.Fatalf("%d+%d*%d = %v, want %v", a, b, c, got, want)
	}

	got, err = evalExpr(fmt.Sprintf("(%d+%d)*%d", a, b, c))
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if want := float64((a + b) * c); got != want {
		t.Fatalf("(%d+%d)*%d = %v, want %v", a, b, c, got, want)
	}

	got, err = evalExpr(fmt.Sprintf("%d-%d-%d", a, b, c))
	if err != nil {
		t.Fatalf("evalExpr: %v", err)
	}
	if want := float64(a - b - c); got != want {
		t.Fatalf("%d-%d-%d = %v, want %v", a, b, c, got, want)
	}
}

func TestEvalExpr_Precedence(t *testing.T) {
	rapid.Check(t, testEvalExpr_Precedence)
}

func hostingTemplate() Template {
	return Template{
		ClientID:    10,
		IssuerID:    2,
		Series:      "A",
		Folio:       "{SiguienteFolio}",
		PaymentForm: "03",
		CFDIUse:     "G03",
		Currency:    "MXN",
		VATType:     VATIncluded,
		Concepts: []Concept{
			{ID: 1, ProductCode: "81112105", UnitCode: "E48", QuantityFormula: "1", Description: "HOSTING WEB ANUAL {mes_texto}", UnitPriceFormula: "600*{tcfixed}", Order: 1},
		},
	}
}

func TestBuildInvoice_Cadena(t *testing.T) {
	c := DefaultCatalog()
	client, issuer := c.Clients[0], c.Issuers[1]
	wc := Wildcards{Now: march, ExchangeRate: 18.5, NextFolio: func(string) int { return 7 }}

	inv, err := BuildInvoice(hostingTemplate(), client, issuer, wc)
	require.NoError(t, err)

	require.Equal(t, "A-7", inv.SeriesFolio)
	require.InDelta(t, 11100.0, inv.Subtotal, 1e-6)
	require.InDelta(t, 1776.0, inv.VAT, 1e-6)
	require.InDelta(t, 12876.0, inv.Total, 1e-6)
	require.Equal(t, "IVA 16%", inv.VATLabel)

	parts := strings.Split(inv.Cadena, "~")
	require.Len(t, parts, 2)
	require.Equal(t,
		"A-7|03|SCO020904AB1|STILO CONCEPTO SA DE CV|MEX|G03|pagos@stiloconcepto.test|PES150101XX1|06000|MXN|||I|||601|44100",
		parts[0])
	require.Equal(t,
		"1|81112105|E48||1.00|HOSTING WEB ANUAL marzo|11100.00|11100.00|1776.00|12876.00|",
		parts[1])
}

func TestBuildInvoice_OrdersConceptsAndVAT(t *testing.T) {
	c := DefaultCatalog()
	tmpl := hostingTemplate()
	tmpl.VATType = VATExempt
	tmpl.Series = ""
	tmpl.Folio = "F-{mesactual}"
	tmpl.Concepts = []Concept{
		{ID: 2, ProductCode: "81111500", UnitCode: "HUR", QuantityFormula: "3", Description: "SOPORTE", UnitPriceFormula: "850", Order: 2},
		{ID: 1, ProductCode: "81112103", UnitCode: "E48", QuantityFormula: "1", Description: "DOMINIO", UnitPriceFormula: "450", Order: 1},
	}

	inv, err := BuildInvoice(tmpl, c.Clients[0], c.Issuers[1], Wildcards{Now: march})
	require.NoError(t, err)
	require.Equal(t, "F-03", inv.SeriesFolio)
	require.Equal(t, "Sin IVA", inv.VATLabel)
	require.Zero(t, inv.VAT)
	require.InDelta(t, 3000.0, inv.Total, 1e-6)

	parts := strings.Split(inv.Cadena, "~")
	require.Len(t, parts, 3)
	require.True(t, strings.HasPrefix(parts[1], "1|81112103|"))
	require.True(t, strings.HasPrefix(parts[2], "2|81111500|"))
}

func TestBuildInvoice_BadFormula(t *testing.T) {
	c := DefaultCatalog()
	tmpl := hostingTemplate()
	tmpl.Concepts[0].UnitPriceFormula = "600*{tcfixed"

	_, err := BuildInvoice(tmpl, c.Clients[0], c.Issuers[1], Wildcards{Now: march, ExchangeRate: 18.5})
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestBuildInvoice_FolioResolvedOnce(t *testing.T) {
	c := DefaultCatalog()
	tmpl := hostingTemplate()
	tmpl.Series = "H"
	tmpl.Notes = "Factura {SiguienteFolio}"
	tmpl.PaymentTerms = "Folio {SiguienteFolio}"
	tmpl.Concepts[0].Description = "HOSTING {SiguienteFolio}"

	calls := 0
	wc := Wildcards{Now: march, ExchangeRate: 18.5, NextFolio: func(string) int {
		calls++
		return calls
	}}

	inv, err := BuildInvoice(tmpl, c.Clients[0], c.Issuers[1], wc)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "H-1", inv.SeriesFolio)
	require.Equal(t, "Factura 1", inv.Notes)
	require.Equal(t, "Folio 1", inv.PaymentTerms)
	require.Equal(t, "HOSTING 1", inv.Lines[0].Description)
}
