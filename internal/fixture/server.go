// Package fixture serves a stand-in for the billing application's
// template wizard: the template listing, the step 1 form and the JSON
// endpoints its scripts call. It keeps everything in memory and exposes
// fault switches so the walkthrough's degraded paths can be exercised.
package fixture

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
	"github.com/kuitang/plantilla-walkthrough/internal/obs"
	"github.com/kuitang/plantilla-walkthrough/internal/ratelimit"
)

// SavedMessage is returned when a recurring template is stored.
const SavedMessage = "Plantilla de facturación recurrente configurada. Se ejecutará el día 1 de cada mes."

// RejectedMessage is the error a save returns while RejectSave is set.
const RejectedMessage = "No fue posible guardar la plantilla: el servicio de timbrado no respondió"

// Options toggles fixture behavior.
type Options struct {
	HideNewTemplateButton bool // listing has no "Nueva Plantilla" link
	OmitIssuerSelect      bool // wizard has no #emisorRFC
	RejectSave            bool // GuardarPlantillaRecurrente always fails
	LockPriceField        bool // unit price input ignores keystrokes
	NoClients             bool // client search never returns results
	RenamePriceField      bool // unit price input loses its ValorUnitarioFormula name

	// SeedTemplates adds an inactive template so the listing is never empty.
	SeedTemplates bool

	RateLimit ratelimit.Config
	Now       func() time.Time
}

// Server is the fixture application.
type Server struct {
	opts    Options
	store   *Store
	render  *renderer
	limiter *ratelimit.Limiter
	router  chi.Router
	log     *slog.Logger

	// issueMu keeps folio reads and consumption of one issuance together.
	issueMu sync.Mutex
}

// New builds a fixture over the default catalog.
func New(opts Options) (*Server, error) {
	return NewWithCatalog(opts, DefaultCatalog())
}

// NewWithCatalog builds a fixture over c.
func NewWithCatalog(opts Options, c Catalog) (*Server, error) {
	r, err := newRenderer()
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateLimit == (ratelimit.Config{}) {
		opts.RateLimit = ratelimit.DefaultConfig
	}

	s := &Server{
		opts:    opts,
		store:   NewStore(c),
		render:  r,
		limiter: ratelimit.New(opts.RateLimit),
		log:     obs.Pkg("fixture"),
	}
	s.store.now = opts.Now
	if opts.SeedTemplates {
		s.seed()
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) seed() {
	s.store.Seed(Template{
		Name:        "Plantilla ACME mensual",
		ClientID:    20,
		IssuerID:    1,
		Series:      "A",
		Folio:       "{SiguienteFolio}",
		PaymentForm: "01",
		CFDIUse:     "S01",
		Currency:    "MXN",
		VATType:     VATIncluded,
		Notes:       "Pausada por **cambio de tarifa**",
		Concepts: []Concept{
			{ID: 1, ProductCode: "80101500", UnitCode: "E48", QuantityFormula: "1", Description: "Consultoría {mes_texto}", UnitPriceFormula: "1200", Order: 1},
		},
	})
}

// Store exposes the fixture's data for assertions.
func (s *Server) Store() *Store {
	return s.store
}

// Close stops background work.
func (s *Server) Close() {
	s.limiter.Stop()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(obs.RequestContextMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return obs.AccessLogMiddleware("fixture", next)
	})

	r.Get("/", s.handleWizard)
	r.Get("/Home/Index", s.handleWizard)
	r.Get("/Home/Plantillas", s.handleListing)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter, ratelimit.ClientIP))

		r.Get("/Home/BuscarClientes", s.handleSearchClients)
		r.Get("/Home/ObtenerProductosPorRFC", s.handleProducts)
		r.Get("/Home/ObtenerTipoCambio", s.handleExchangeRate)
		r.Get("/Home/ObtenerClientePorId", s.handleClientByID)
		r.Get("/Home/ObtenerPropietarioRFCPorId", s.handleIssuerByID)
		r.Post("/Home/GenerarCadenaPreview", s.handleCadenaPreview)
		r.Post("/Home/GenerarVistaPrevia", s.handlePreview)
		r.Post("/Home/GuardarPlantillaRecurrente", s.handleSave)
		r.Post("/Home/EmitirFacturasDelMes", s.handleIssueMonth)
	})
	return r
}

// =============================================================================
// Pages
// =============================================================================

type wizardPage struct {
	ShowIssuer   bool
	LockPrice    bool
	PriceName    string
	Issuers      []Issuer
	PaymentForms []CatalogEntry
	CFDIUses     []CatalogEntry
	Currencies   []CatalogEntry
	Help         template.HTML
}

func (s *Server) handleWizard(w http.ResponseWriter, r *http.Request) {
	c := s.store.Catalog()
	priceFieldName := "Conceptos[0].ValorUnitarioFormula"
	if s.opts.RenamePriceField {
		priceFieldName = "Conceptos[0].Precio"
	}
	page := wizardPage{
		ShowIssuer:   !s.opts.OmitIssuerSelect,
		LockPrice:    s.opts.LockPriceField,
		PriceName:    priceFieldName,
		Issuers:      c.Issuers,
		PaymentForms: c.PaymentForms,
		CFDIUses:     c.CFDIUses,
		Currencies:   c.Currencies,
		Help:         renderMarkdown(wildcardHelp()),
	}
	if err := s.render.render(w, "wizard.html", page); err != nil {
		obs.From(r.Context()).Error("render_failed", "page", "wizard", "error", err)
		http.Error(w, "Error interno", http.StatusInternalServerError)
	}
}

type listingRow struct {
	Template
	ClientName string
	ClientRFC  string
	IssuerRFC  string
}

type listingPage struct {
	ShowNewButton bool
	Rows          []listingRow
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	page := listingPage{ShowNewButton: !s.opts.HideNewTemplateButton}
	for _, t := range s.store.Templates() {
		row := listingRow{Template: t}
		if c, err := s.store.ClientByID(t.ClientID); err == nil {
			row.ClientName, row.ClientRFC = c.Name, c.RFC
		}
		if i, err := s.store.IssuerByID(t.IssuerID); err == nil {
			row.IssuerRFC = i.RFC
		}
		page.Rows = append(page.Rows, row)
	}
	if err := s.render.render(w, "listing.html", page); err != nil {
		obs.From(r.Context()).Error("render_failed", "page", "listing", "error", err)
		http.Error(w, "Error interno", http.StatusInternalServerError)
	}
}

// =============================================================================
// JSON endpoints
// =============================================================================

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		obs.From(r.Context()).Error("json_encode_failed", "path", r.URL.Path, "error", err)
	}
}

// writeError replies with the {success:false, error} envelope the wizard
// scripts expect.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	obs.From(r.Context()).Warn("fixture_request_failed", "code", string(code), "error", err)
	writeJSON(w, r, errs.HTTPStatus(code), map[string]any{
		"success": false,
		"error":   errs.MessageOf(err),
	})
}

func queryInt(r *http.Request, key string) (int, error) {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0, errs.New(errs.InvalidArgument, fmt.Sprintf("parámetro %s inválido", key))
	}
	return v, nil
}

func (s *Server) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	clients := []Client{}
	if !s.opts.NoClients {
		if found := s.store.SearchClients(q.Get("busqueda"), q.Get("rfcEmisor")); found != nil {
			clients = found
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "clientes": clients})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	rfc := r.URL.Query().Get("rfc")
	if rfc == "" {
		writeError(w, r, errs.New(errs.InvalidArgument, "RFC requerido"))
		return
	}
	products := s.store.ProductsFor(rfc)
	if products == nil {
		products = []Product{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "productos": products})
}

func (s *Server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "tipoCambio": s.store.ExchangeRate()})
}

func (s *Server) handleClientByID(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.store.ClientByID(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "cliente": c})
}

func (s *Server) handleIssuerByID(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	i, err := s.store.IssuerByID(id)
	if err != nil {
		writeError(w, r, errs.New(errs.NotFound, "Propietario RFC no encontrado"))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success":         true,
		"lugarExpedicion": i.ExpeditionPlace,
		"razonSocial":     i.Name,
		"rfc":             i.RFC,
	})
}

func decodeTemplate(r *http.Request) (Template, error) {
	var t Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		return Template{}, errs.Wrap(errs.InvalidArgument, "Solicitud inválida", err)
	}
	return t, nil
}

// evaluate resolves the template's client and issuer and builds the
// invoice for the current period.
func (s *Server) evaluate(t Template) (Invoice, Client, error) {
	client, err := s.store.ClientByID(t.ClientID)
	if err != nil {
		return Invoice{}, Client{}, err
	}
	issuer, err := s.store.IssuerByID(t.IssuerID)
	if err != nil {
		return Invoice{}, Client{}, err
	}
	inv, err := BuildInvoice(t, client, issuer, s.wildcards(issuer))
	if err != nil {
		return Invoice{}, Client{}, err
	}
	return inv, client, nil
}

func (s *Server) wildcards(issuer Issuer) Wildcards {
	return Wildcards{
		Now:          s.opts.Now(),
		ExchangeRate: s.store.ExchangeRate(),
		NextFolio: func(series string) int {
			return s.store.NextFolio(issuer.RFC, series)
		},
	}
}

func (s *Server) handleCadenaPreview(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, _, err := s.evaluate(t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "cadena": inv.Cadena})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, _, err := s.evaluate(t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "factura": inv})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	t, err := decodeTemplate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.opts.RejectSave {
		writeError(w, r, errs.New(errs.Unavailable, RejectedMessage))
		return
	}
	inv, client, err := s.evaluate(t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if t.Name == "" {
		t.Name = "Plantilla " + client.Name
	}
	saved := s.store.SaveTemplate(t)
	s.log.Info("template_saved", "id", saved.ID, "client_rfc", client.RFC, "series", saved.Series)
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"id":      saved.ID,
		"mensaje": SavedMessage,
		"cadena":  inv.Cadena,
	})
}

// handleIssueMonth evaluates every active template. An invoice that uses
// {SiguienteFolio} consumes its folio only once it has been built.
func (s *Server) handleIssueMonth(w http.ResponseWriter, r *http.Request) {
	s.issueMu.Lock()
	defer s.issueMu.Unlock()

	var processed, ok, failed int
	var cadenas []string
	for _, t := range s.store.Templates() {
		if !t.Active {
			continue
		}
		processed++
		issuer, err := s.store.IssuerByID(t.IssuerID)
		if err != nil {
			failed++
			continue
		}
		client, err := s.store.ClientByID(t.ClientID)
		if err != nil {
			failed++
			continue
		}
		wc := s.wildcards(issuer)
		usedSeries := ""
		wc.NextFolio = func(series string) int {
			usedSeries = series
			return s.store.NextFolio(issuer.RFC, series)
		}
		inv, err := BuildInvoice(t, client, issuer, wc)
		if err != nil {
			obs.From(r.Context()).Warn("invoice_failed", "template_id", t.ID, "error", err)
			failed++
			continue
		}
		if usedSeries != "" {
			s.store.IssueFolio(issuer.RFC, usedSeries)
		}
		ok++
		cadenas = append(cadenas, inv.Cadena)
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success":            true,
		"mensaje":            "Se han procesado las facturas recurrentes del mes.",
		"facturasProcesadas": processed,
		"facturasExitosas":   ok,
		"facturasConError":   failed,
		"cadenas":            cadenas,
	})
}
