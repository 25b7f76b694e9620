package fixture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

const clientSearchLimit = 20

// Store holds the catalog and the saved templates in memory.
type Store struct {
	mu        sync.Mutex
	catalog   Catalog
	templates []Template
	nextID    int
	folios    map[string]int // last issued folio per issuer RFC and series
	now       func() time.Time
}

// NewStore returns a store over c with no saved templates.
func NewStore(c Catalog) *Store {
	return &Store{
		catalog: c,
		nextID:  1,
		folios:  make(map[string]int),
		now:     time.Now,
	}
}

// Issuers lists every issuer.
func (s *Store) Issuers() []Issuer {
	return append([]Issuer(nil), s.catalog.Issuers...)
}

// Catalog returns the reference data.
func (s *Store) Catalog() Catalog {
	return s.catalog
}

// IssuerByID finds an issuer.
func (s *Store) IssuerByID(id int) (Issuer, error) {
	for _, i := range s.catalog.Issuers {
		if i.ID == id {
			return i, nil
		}
	}
	return Issuer{}, errs.New(errs.NotFound, "Emisor RFC no encontrado")
}

// ClientByID finds a client.
func (s *Store) ClientByID(id int) (Client, error) {
	for _, c := range s.catalog.Clients {
		if c.ID == id {
			return c, nil
		}
	}
	return Client{}, errs.New(errs.NotFound, "Cliente no encontrado")
}

// SearchClients returns up to 20 clients whose RFC or name contains query,
// restricted to issuerRFC when it is set.
func (s *Store) SearchClients(query, issuerRFC string) []Client {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Client
	for _, c := range s.catalog.Clients {
		if issuerRFC != "" && c.IssuerRFC != issuerRFC {
			continue
		}
		if !strings.Contains(strings.ToUpper(c.RFC), q) && !strings.Contains(strings.ToUpper(c.Name), q) {
			continue
		}
		out = append(out, c)
		if len(out) == clientSearchLimit {
			break
		}
	}
	return out
}

// ProductsFor lists the products of an issuer.
func (s *Store) ProductsFor(issuerRFC string) []Product {
	var out []Product
	for _, p := range s.catalog.Products {
		if p.IssuerRFC == issuerRFC {
			out = append(out, p)
		}
	}
	return out
}

// ExchangeRate is the current USD/MXN rate.
func (s *Store) ExchangeRate() float64 {
	return s.catalog.ExchangeRate
}

func folioKey(issuerRFC, series string) string {
	return issuerRFC + "|" + series
}

// NextFolio is the folio the next invoice for issuer and series will get.
func (s *Store) NextFolio(issuerRFC, series string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folios[folioKey(issuerRFC, series)] + 1
}

// IssueFolio consumes and returns the next folio.
func (s *Store) IssueFolio(issuerRFC, series string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := folioKey(issuerRFC, series)
	s.folios[k]++
	return s.folios[k]
}

// SaveTemplate stores t as a new active monthly template and returns the
// stored copy.
func (s *Store) SaveTemplate(t Template) Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID
	s.nextID++
	t.CreatedAt = s.now().UTC()
	t.Active = true
	if t.ScheduleType == "" {
		t.ScheduleType = "DiaMes"
	}
	if t.RunDay == 0 {
		t.RunDay = 1
	}
	if t.Name == "" {
		t.Name = fmt.Sprintf("Plantilla %d", t.ID)
	}
	s.templates = append(s.templates, t)
	return t
}

// Seed stores t as is, keeping its Active flag.
func (s *Store) Seed(t Template) Template {
	active := t.Active
	saved := s.SaveTemplate(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[len(s.templates)-1].Active = active
	saved.Active = active
	return saved
}

// Templates returns a copy of every saved template in insertion order.
func (s *Store) Templates() []Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Template(nil), s.templates...)
}
