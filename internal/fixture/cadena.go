package fixture

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/expr-lang/expr"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

const (
	defaultExpeditionPlace = "06000"
	defaultTaxRegime       = "601"
	vatRate                = 0.16
)

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

func monthName(t time.Time) string {
	return monthNames[t.Month()-1]
}

// WildcardNames lists every wildcard Expand understands.
var WildcardNames = []string{
	"{fechaactual}", "{mesactual}", "{añoactual}", "{anoactual}",
	"{dia1_mes}", "{ultimo_dia_mes}",
	"{tcfixed}", "{tc}",
	"{SiguienteFolio}",
	"{cliente_rfc}", "{cliente_nombre}", "{cliente_email}", "{cliente_regimen}", "{cliente_cp}",
	"{mes_texto}", "{mes_texto_mayus}", "{mes_anterior_texto}", "{mes_siguiente_texto}",
}

// Wildcards carries the values substituted into template text.
type Wildcards struct {
	Now          time.Time
	ExchangeRate float64
	Client       *Client
	// Series selects the folio sequence; {SiguienteFolio} is left alone
	// while it is empty.
	Series    string
	NextFolio func(series string) int
}

// Expand replaces every known wildcard in text. Unknown ones are left alone.
func (w Wildcards) Expand(text string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	now := w.Now
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last := first.AddDate(0, 1, -1)
	rate := strconv.FormatFloat(w.ExchangeRate, 'f', 4, 64)

	pairs := []string{
		"{fechaactual}", now.Format("02/01/2006"),
		"{mesactual}", fmt.Sprintf("%02d", int(now.Month())),
		"{añoactual}", strconv.Itoa(now.Year()),
		"{anoactual}", strconv.Itoa(now.Year()),
		"{dia1_mes}", first.Format("02/01/2006"),
		"{ultimo_dia_mes}", last.Format("02/01/2006"),
		"{tcfixed}", rate,
		"{tc}", rate,
		"{mes_texto_mayus}", strings.ToUpper(monthName(now)),
		"{mes_texto}", monthName(now),
		"{mes_anterior_texto}", monthName(first.AddDate(0, -1, 0)),
		"{mes_siguiente_texto}", monthName(first.AddDate(0, 1, 0)),
	}
	if w.NextFolio != nil && w.Series != "" && strings.Contains(text, "{SiguienteFolio}") {
		pairs = append(pairs, "{SiguienteFolio}", strconv.Itoa(w.NextFolio(w.Series)))
	}
	if c := w.Client; c != nil {
		pairs = append(pairs,
			"{cliente_rfc}", c.RFC,
			"{cliente_nombre}", c.Name,
			"{cliente_email}", c.Email,
			"{cliente_regimen}", c.TaxRegime,
			"{cliente_cp}", c.PostalCode,
		)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// EvalFormula expands wildcards in formula and evaluates the result as an
// arithmetic expression over + - * / and parentheses.
func (w Wildcards) EvalFormula(formula string) (float64, error) {
	v, err := evalExpr(w.Expand(formula))
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("Error evaluando fórmula '%s'", formula), err)
	}
	return v, nil
}

// arithmetic admits what a price or quantity formula may contain once its
// wildcards are expanded.
func arithmetic(r rune) bool {
	return unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(".+-*/()", r)
}

// evalExpr evaluates s as + - * / arithmetic with parentheses. Anything
// else expr understands (identifiers, ** and friends) is rejected first.
func evalExpr(s string) (float64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("expresión vacía")
	}
	if strings.IndexFunc(s, func(r rune) bool { return !arithmetic(r) }) >= 0 || strings.Contains(s, "**") {
		return 0, fmt.Errorf("no se pudo evaluar la expresión: %s", s)
	}
	program, err := expr.Compile(s, expr.AsFloat64())
	if err != nil {
		return 0, fmt.Errorf("no se pudo evaluar la expresión: %s: %w", s, err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, fmt.Errorf("no se pudo evaluar la expresión: %s: %w", s, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("no se pudo evaluar la expresión: %s", s)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("división entre cero")
	}
	return v, nil
}

// Line is an evaluated concept.
type Line struct {
	ProductCode string  `json:"claveProdServ"`
	UnitCode    string  `json:"claveUnidad"`
	Description string  `json:"descripcion"`
	Quantity    float64 `json:"cantidad"`
	UnitPrice   float64 `json:"valorUnitario"`
	Amount      float64 `json:"importe"`
	VAT         float64 `json:"iva"`
	Total       float64 `json:"total"`
}

// Invoice is a template evaluated for the current period.
type Invoice struct {
	IssuerRFC       string  `json:"emisorRFC"`
	IssuerName      string  `json:"emisorNombre"`
	ExpeditionPlace string  `json:"emisorLugarExpedicion"`
	ClientRFC       string  `json:"receptorRFC"`
	ClientName      string  `json:"receptorNombre"`
	ClientEmail     string  `json:"receptorEmail"`
	Series          string  `json:"serie"`
	Folio           string  `json:"folio"`
	SeriesFolio     string  `json:"seriefolio"`
	PaymentForm     string  `json:"formaPago"`
	CFDIUse         string  `json:"usoCFDI"`
	Currency        string  `json:"moneda"`
	PaymentTerms    string  `json:"condicionesPago"`
	Notes           string  `json:"observaciones"`
	Lines           []Line  `json:"conceptos"`
	Subtotal        float64 `json:"subtotal"`
	VAT             float64 `json:"ivaImporte"`
	VATLabel        string  `json:"ivaTexto"`
	Total           float64 `json:"total"`
	Cadena          string  `json:"cadena"`
}

func vatLabel(vatType string) string {
	switch vatType {
	case VATZero:
		return "IVA 0%"
	case VATExempt:
		return "Sin IVA"
	default:
		return "IVA 16%"
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// BuildInvoice evaluates t for client and issuer and renders the
// pipe-delimited cadena: general data, then one "~"-separated segment per
// concept in display order.
func BuildInvoice(t Template, client Client, issuer Issuer, base Wildcards) (Invoice, error) {
	wc := base
	wc.Client = &client
	wc.Series = ""
	if next := base.NextFolio; next != nil {
		// Every {SiguienteFolio} in one invoice is the same folio.
		folios := map[string]int{}
		wc.NextFolio = func(series string) int {
			if n, ok := folios[series]; ok {
				return n
			}
			n := next(series)
			folios[series] = n
			return n
		}
	}

	series := wc.Expand(t.Series)
	wc.Series = series
	folio := wc.Expand(t.Folio)
	seriesFolio := folio
	if series != "" {
		seriesFolio = series + "-" + folio
	}

	inv := Invoice{
		IssuerRFC:       issuer.RFC,
		IssuerName:      issuer.Name,
		ExpeditionPlace: orDefault(issuer.ExpeditionPlace, defaultExpeditionPlace),
		ClientRFC:       client.RFC,
		ClientName:      client.Name,
		ClientEmail:     client.Email,
		Series:          series,
		Folio:           folio,
		SeriesFolio:     seriesFolio,
		PaymentForm:     t.PaymentForm,
		CFDIUse:         t.CFDIUse,
		Currency:        t.Currency,
		PaymentTerms:    wc.Expand(t.PaymentTerms),
		Notes:           wc.Expand(t.Notes),
		VATLabel:        vatLabel(t.VATType),
	}

	general := strings.Join([]string{
		seriesFolio,
		t.PaymentForm,
		client.RFC,
		client.Name,
		"MEX",
		t.CFDIUse,
		client.Email,
		issuer.RFC,
		inv.ExpeditionPlace,
		t.Currency,
		inv.PaymentTerms,
		inv.Notes,
		"I",
		"",
		"",
		orDefault(client.TaxRegime, defaultTaxRegime),
		orDefault(client.PostalCode, defaultExpeditionPlace),
	}, "|")

	concepts := append([]Concept(nil), t.Concepts...)
	sort.SliceStable(concepts, func(i, j int) bool { return concepts[i].Order < concepts[j].Order })

	segments := []string{general}
	for _, c := range concepts {
		qty, err := wc.EvalFormula(c.QuantityFormula)
		if err != nil {
			return Invoice{}, err
		}
		price, err := wc.EvalFormula(c.UnitPriceFormula)
		if err != nil {
			return Invoice{}, err
		}
		line := Line{
			ProductCode: c.ProductCode,
			UnitCode:    c.UnitCode,
			Description: wc.Expand(c.Description),
			Quantity:    qty,
			UnitPrice:   price,
			Amount:      qty * price,
		}
		if t.VATType == VATIncluded || t.VATType == "" {
			line.VAT = line.Amount * vatRate
		}
		line.Total = line.Amount + line.VAT

		inv.Lines = append(inv.Lines, line)
		inv.Subtotal += line.Amount
		inv.VAT += line.VAT
		inv.Total += line.Total

		segments = append(segments, strings.Join([]string{
			strconv.Itoa(c.ID),
			c.ProductCode,
			c.UnitCode,
			"",
			money(qty),
			line.Description,
			money(price),
			money(line.Amount),
			money(line.VAT),
			money(line.Total),
			"",
		}, "|"))
	}

	inv.Cadena = strings.Join(segments, "~")
	return inv, nil
}
