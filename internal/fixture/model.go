package fixture

import "time"

// Issuer is an RFC the billing account may invoice as.
type Issuer struct {
	ID              int    `json:"idPropietarioRFC"`
	RFC             string `json:"rfc"`
	Name            string `json:"razonSocial"`
	Email           string `json:"correo"`
	TaxRegime       string `json:"regimenFiscal"`
	ExpeditionPlace string `json:"lugarExpedicion"`
}

// Client is an invoice recipient registered under an issuer.
type Client struct {
	ID         int    `json:"id_Cliente"`
	IssuerRFC  string `json:"rfc"`
	RFC        string `json:"rfcCliente"`
	Name       string `json:"razon_Social"`
	Email      string `json:"email"`
	PostalCode string `json:"domicilioFiscalCliente,omitempty"`
	TaxRegime  string `json:"regimenFiscalCliente,omitempty"`
}

// Product is a catalog item an issuer sells.
type Product struct {
	ID           int    `json:"idProdServ"`
	IssuerRFC    string `json:"rfc"`
	SATCode      string `json:"claveSAT"`
	InternalCode string `json:"codigoInterno"`
	Description  string `json:"descripcionInterna"`
	SATUnit      string `json:"unidadSAT"`
	PriceFormula string `json:"valorUnitarioFormula"`
}

// CatalogEntry is one code of a SAT catalog.
type CatalogEntry struct {
	Code        string `json:"codigo"`
	Description string `json:"descripcion"`
}

// VAT handling for a template.
const (
	VATIncluded = "ConIVA"
	VATZero     = "IVA0"
	VATExempt   = "SinIVA"
)

// Template is a recurring invoice template.
type Template struct {
	ID              int       `json:"id"`
	Name            string    `json:"nombre"`
	ClientID        int       `json:"clienteId"`
	IssuerID        int       `json:"emisorRFCId"`
	Series          string    `json:"serie"`
	Folio           string    `json:"folio"`
	PaymentForm     string    `json:"formaPago"`
	CFDIUse         string    `json:"usoCFDI"`
	ExpeditionPlace string    `json:"lugarExpedicion"`
	Currency        string    `json:"moneda"`
	VATType         string    `json:"tipoIVA"`
	PaymentTerms    string    `json:"condicionesPago"`
	Notes           string    `json:"observaciones"`
	Active          bool      `json:"activa"`
	CreatedAt       time.Time `json:"fechaCreacion"`
	ScheduleType    string    `json:"tipoProgramacion"`
	RunDay          int       `json:"diaEjecucion"`
	Concepts        []Concept `json:"conceptos"`
}

// Concept is one line item of a template. Quantity, price and description
// may contain wildcards; quantity and price may be arithmetic formulas.
type Concept struct {
	ID               int    `json:"id"`
	ProductCode      string `json:"claveProdServ"`
	UnitCode         string `json:"claveUnidad"`
	QuantityFormula  string `json:"cantidadFormula"`
	Description      string `json:"descripcion"`
	UnitPriceFormula string `json:"valorUnitarioFormula"`
	Order            int    `json:"orden"`
}

// Catalog is the reference data the fixture serves.
type Catalog struct {
	Issuers      []Issuer
	Clients      []Client
	Products     []Product
	PaymentForms []CatalogEntry
	CFDIUses     []CatalogEntry
	Currencies   []CatalogEntry
	ExchangeRate float64
}

// DefaultCatalog returns the seed data: two issuers, a handful of clients
// and products, and the SAT catalogs the wizard offers.
func DefaultCatalog() Catalog {
	return Catalog{
		Issuers: []Issuer{
			{ID: 1, RFC: "AAA010101AAA", Name: "ACME SERVICIOS DIGITALES", Email: "facturas@acme.test", TaxRegime: "601", ExpeditionPlace: "64000"},
			{ID: 2, RFC: "PES150101XX1", Name: "PROYECTOS ESPECIALES EN SISTEMAS", Email: "cobranza@pes.test", TaxRegime: "601", ExpeditionPlace: "06000"},
		},
		Clients: []Client{
			{ID: 10, IssuerRFC: "PES150101XX1", RFC: "SCO020904AB1", Name: "STILO CONCEPTO SA DE CV", Email: "pagos@stiloconcepto.test", PostalCode: "44100", TaxRegime: "601"},
			{ID: 11, IssuerRFC: "PES150101XX1", RFC: "SCA990101QW2", Name: "SCALA DISEÑO", Email: "admin@scala.test"},
			{ID: 12, IssuerRFC: "PES150101XX1", RFC: "GOMJ800101H10", Name: "JUAN GOMEZ MARTINEZ", Email: "juan@correo.test", TaxRegime: "612"},
			{ID: 20, IssuerRFC: "AAA010101AAA", RFC: "XAXX010101000", Name: "PUBLICO EN GENERAL", Email: "ventas@acme.test", TaxRegime: "616"},
		},
		Products: []Product{
			{ID: 100, IssuerRFC: "PES150101XX1", SATCode: "81112105", InternalCode: "HOSP-01", Description: "HOSTING WEB ANUAL", SATUnit: "E48", PriceFormula: "600*{tcfixed}"},
			{ID: 101, IssuerRFC: "PES150101XX1", SATCode: "81112103", InternalCode: "DOM-MX", Description: "DOMINIO .MX", SATUnit: "E48", PriceFormula: "450"},
			{ID: 102, IssuerRFC: "PES150101XX1", SATCode: "81111500", InternalCode: "SOP-HR", Description: "SOPORTE TECNICO POR HORA", SATUnit: "HUR", PriceFormula: "850"},
			{ID: 200, IssuerRFC: "AAA010101AAA", SATCode: "80101500", InternalCode: "CONS", Description: "CONSULTORIA", SATUnit: "E48", PriceFormula: "1200"},
		},
		PaymentForms: []CatalogEntry{
			{Code: "01", Description: "Efectivo"},
			{Code: "03", Description: "Transferencia electrónica de fondos"},
			{Code: "04", Description: "Tarjeta de crédito"},
			{Code: "99", Description: "Por definir"},
		},
		CFDIUses: []CatalogEntry{
			{Code: "G01", Description: "Adquisición de mercancías"},
			{Code: "G03", Description: "Gastos en general"},
			{Code: "S01", Description: "Sin efectos fiscales"},
		},
		Currencies: []CatalogEntry{
			{Code: "MXN", Description: "Peso Mexicano"},
			{Code: "USD", Description: "Dólar americano"},
		},
		ExchangeRate: 18.5,
	}
}
