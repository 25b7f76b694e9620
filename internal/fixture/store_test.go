package fixture

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

func TestStore_SearchClients(t *testing.T) {
	s := NewStore(DefaultCatalog())

	got := s.SearchClients("stilo", "")
	require.Len(t, got, 1)
	require.Equal(t, "SCO020904AB1", got[0].RFC)

	require.Len(t, s.SearchClients("SCO02", "PES150101XX1"), 1)
	require.Empty(t, s.SearchClients("STILO", "AAA010101AAA"))
	require.Empty(t, s.SearchClients("   ", ""))
	require.Len(t, s.SearchClients("S", "PES150101XX1"), 2)
}

func TestStore_Lookups(t *testing.T) {
	s := NewStore(DefaultCatalog())

	c, err := s.ClientByID(20)
	require.NoError(t, err)
	require.Equal(t, "PUBLICO EN GENERAL", c.Name)

	_, err = s.ClientByID(999)
	require.Equal(t, errs.NotFound, errs.CodeOf(err))

	_, err = s.IssuerByID(999)
	require.Equal(t, errs.NotFound, errs.CodeOf(err))

	require.Len(t, s.ProductsFor("PES150101XX1"), 3)
	require.Empty(t, s.ProductsFor("NOEXISTE"))
}

func TestStore_Folios(t *testing.T) {
	s := NewStore(DefaultCatalog())

	require.Equal(t, 1, s.NextFolio("PES150101XX1", "A"))
	require.Equal(t, 1, s.IssueFolio("PES150101XX1", "A"))
	require.Equal(t, 2, s.NextFolio("PES150101XX1", "A"))
	require.Equal(t, 1, s.NextFolio("PES150101XX1", "B"))
	require.Equal(t, 1, s.NextFolio("AAA010101AAA", "A"))
}

func TestStore_SaveAndSeed(t *testing.T) {
	s := NewStore(DefaultCatalog())
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.FixedZone("CST", -6*3600))
	s.now = func() time.Time { return now }

	seeded := s.Seed(Template{Name: "vieja", ClientID: 20, IssuerID: 1})
	require.False(t, seeded.Active)

	saved := s.SaveTemplate(Template{ClientID: 10, IssuerID: 2})
	require.Equal(t, 2, saved.ID)
	require.True(t, saved.Active)
	require.Equal(t, "DiaMes", saved.ScheduleType)
	require.Equal(t, 1, saved.RunDay)
	require.Equal(t, "Plantilla 2", saved.Name)
	require.Equal(t, time.UTC, saved.CreatedAt.Location())

	all := s.Templates()
	require.Len(t, all, 2)
	require.False(t, all[0].Active)
	require.True(t, all[1].Active)

	all[0].Name = "modificada"
	require.Equal(t, "vieja", s.Templates()[0].Name)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	s := NewStore(DefaultCatalog())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.SaveTemplate(Template{ClientID: 10, IssuerID: 2})
			s.IssueFolio("PES150101XX1", "A")
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, tmpl := range s.Templates() {
		require.False(t, seen[tmpl.ID], "duplicate id %d", tmpl.ID)
		seen[tmpl.ID] = true
	}
	require.Len(t, seen, 20)
	require.Equal(t, 21, s.NextFolio("PES150101XX1", "A"))
}
