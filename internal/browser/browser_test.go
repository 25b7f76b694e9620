package browser

import (
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
)

const testTimeout = 5 * time.Second

func TestBrowserType_Unknown(t *testing.T) {
	_, err := browserType(&playwright.Playwright{}, "opera")
	require.Error(t, err)
	require.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestLocal_CloseIsIdempotent(t *testing.T) {
	s := &Local{}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 2, s.CloseCalls())
}

const formHTML = `<!doctype html>
<html><body>
<select id="emisor">
  <option value="">Seleccione</option>
  <option value="1">AAA010101AAA - ACME</option>
  <option value="2">PES150101XX1 - PROYECTOS ESPECIALES</option>
</select>
<input id="precio" name="precio" placeholder="600*{tcfixed}">
<input id="locked" onkeydown="if (event.key !== 'Tab') event.preventDefault()">
<div class="alert-success">Guardado</div>
<div class="alert-success" style="display:none">oculto</div>
</body></html>`

func launchForTest(t *testing.T) *Local {
	t.Helper()
	if testing.Short() {
		t.Skip("browser test skipped in short mode")
	}
	s, err := Launch(Options{Browser: "chromium", Headless: true, Timeout: testTimeout, RunID: "run-test"})
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPageHelpers(t *testing.T) {
	s := launchForTest(t)
	page := s.Page()
	require.NoError(t, page.SetContent(formHTML))

	sel, err := WaitAttached(page, "#emisor", testTimeout)
	require.NoError(t, err)

	opts, err := Options(sel)
	require.NoError(t, err)
	require.Len(t, opts, 3)
	require.Equal(t, "2", opts[2].Value)
	require.Contains(t, opts[2].Text, "PES")

	require.NoError(t, SelectIndex(sel, 2))
	v, err := ReadValue(sel)
	require.NoError(t, err)
	require.Equal(t, "2", v)

	require.NoError(t, SelectValue(sel, "1"))
	v, err = ReadValue(sel)
	require.NoError(t, err)
	require.Equal(t, "1", v)

	precio := page.Locator("#precio")
	require.NoError(t, TypeInto(precio, "1955"))
	v, err = ReadValue(precio)
	require.NoError(t, err)
	require.Equal(t, "1955", v)

	locked := page.Locator("#locked")
	require.NoError(t, TypeInto(locked, "1955"))
	v, err = ReadValue(locked)
	require.NoError(t, err)
	require.Empty(t, v)
	require.NoError(t, ForceValue(locked, "1955"))
	v, err = ReadValue(locked)
	require.NoError(t, err)
	require.Equal(t, "1955", v)

	require.Equal(t, []string{"Guardado"}, VisibleTexts(page, ".alert-success"))

	fields, err := Fields(page, "input")
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, "600*{tcfixed}", fields[0].Placeholder)

	require.True(t, Exists(page, "#precio"))
	require.False(t, Exists(page, "#nope"))
	loc, matched := FirstExisting(page, "#nope", "select[id*='emis']")
	require.NotNil(t, loc)
	require.Equal(t, "select[id*='emis']", matched)

	_, err = WaitVisible(page, "#nope", 200*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, errs.Timeout, errs.CodeOf(err))
	require.Contains(t, Describe(page), "url=")
}

func TestLaunch_CloseOnce(t *testing.T) {
	s := launchForTest(t)
	first := s.Close()
	second := s.Close()
	require.Equal(t, first, second)
	require.Equal(t, 2, s.CloseCalls())
}
