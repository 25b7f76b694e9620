package walkthrough

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/plantilla-walkthrough/internal/artifacts"
	"github.com/kuitang/plantilla-walkthrough/internal/browser"
	"github.com/kuitang/plantilla-walkthrough/internal/logutil"
	"github.com/kuitang/plantilla-walkthrough/internal/narrate"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
)

// Selectors for the wizard and listing pages.
const (
	selListingHeading = "h3:has-text('Plantillas de Facturación')"
	selNewTemplate    = "a.btn-success:has-text('Nueva Plantilla')"
	selIssuer         = "#emisorRFC"
	selClientSearch   = "#clienteBuscar"
	selClientItems    = "#clientesDropdown li"
	selClientLinks    = "#clientesDropdown li a"
	selSeries         = "#serie"
	selFolio          = "#folio"
	selConceptInputs  = ".concepto-item input"
	selNext           = "#btnSiguiente"
	selPreview        = "button:has-text('Actualizar Vista Previa')"
	selGenerate       = "button:has-text('Actualizar Cadena')"
	selErrorBanner    = ".alert-danger"
	selSuccessBanner  = ".alert-success"
	selScheduleStep   = "button:has-text('Siguiente'):has-text('Configurar Programación')"
	selListingRows    = "#tablePlantillas tbody tr"
	selListingTable   = "#tablePlantillas"

	bannerChars     = 100
	listingRowChars = 80
	listingSample   = 5

	bannerPoll = 100 * time.Millisecond
)

// productSelectors are tried in order to find the first line item's
// product dropdown.
var productSelectors = []string{
	"select[name='Conceptos[0].ProductoId']",
	"select[id*='producto']",
	".concepto-item select:first-of-type",
}

func conceptField(name string) string {
	return fmt.Sprintf("[name='Conceptos[0].%s']", name)
}

func (w *walk) openListing(ctx context.Context) error {
	if err := browser.Navigate(w.page, w.cfg.ListingURL(), w.t.Wait); err != nil {
		return err
	}
	w.pause(ctx, w.t.Settle)
	if _, err := browser.WaitVisible(w.page, selListingHeading, w.t.Wait); err != nil {
		w.soft(ctx, narrate.Warn, "Could not confirm the templates page heading: %v", err)
		return nil
	}
	w.say.Say(ctx, narrate.OK, "On the billing templates page")
	return nil
}

func (w *walk) newTemplate(ctx context.Context) error {
	btn, err := browser.WaitVisible(w.page, selNewTemplate, w.t.Wait)
	if err == nil {
		err = btn.Click()
	}
	if err != nil {
		w.soft(ctx, narrate.Warn, "New template button not found (%v), going to the application root", err)
		if err := browser.Navigate(w.page, w.cfg.RootURL(), w.t.Wait); err != nil {
			return err
		}
	} else {
		w.say.Say(ctx, narrate.OK, "Clicked New Template")
	}
	w.pause(ctx, w.t.Settle)
	return nil
}

func (w *walk) selectIssuer(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Selecting the issuer...")
	sel, err := browser.WaitAttached(w.page, selIssuer, w.t.Wait)
	if err != nil {
		return err
	}
	opts, err := browser.Options(sel)
	if err != nil {
		return err
	}

	idx := matchOption(opts, 0, w.sc.IssuerMatch)
	switch {
	case idx >= 0:
		if err := browser.SelectIndex(sel, idx); err != nil {
			return err
		}
		w.rep.Issuer = opts[idx].Text
		w.say.Say(ctx, narrate.OK, "Issuer selected: %s", opts[idx].Text)
	case fallbackIndex(opts, 1) >= 0:
		if err := browser.SelectIndex(sel, 1); err != nil {
			return err
		}
		w.rep.Issuer = opts[1].Text
		w.soft(ctx, narrate.Warn, "No issuer matching %q, selected the first one: %s", w.sc.IssuerMatch, opts[1].Text)
	default:
		w.soft(ctx, narrate.Warn, "No issuers to choose from")
	}

	// The product list is loaded for the selected issuer.
	w.pause(ctx, w.t.Settle)
	return nil
}

func (w *walk) selectClient(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Searching for client %s...", w.sc.ClientQuery)
	input, err := browser.WaitVisible(w.page, selClientSearch, w.t.Wait)
	if err != nil {
		return err
	}
	if err := browser.TypeInto(input, w.sc.ClientQuery); err != nil {
		return err
	}

	if err := w.pickClient(ctx, input); err != nil {
		w.soft(ctx, narrate.Warn, "Error selecting client: %v", err)
	}
	w.pause(ctx, w.t.Pause)
	return nil
}

func (w *walk) pickClient(ctx context.Context, input playwright.Locator) error {
	if _, err := browser.WaitAttached(w.page, selClientItems, w.t.Search); err != nil {
		return err
	}
	links := w.page.Locator(selClientLinks)
	texts, err := links.AllInnerTexts()
	if err != nil {
		return err
	}
	w.say.Detail(ctx, "Found %d clients", len(texts))
	for i, text := range texts {
		w.say.Detail(ctx, "Client %d: %s", i+1, strings.TrimSpace(text))
	}

	if idx := matchText(texts, w.sc.ClientMatches...); idx >= 0 {
		return w.clickClient(ctx, links.Nth(idx), texts[idx], "Client selected: %s")
	}

	w.soft(ctx, narrate.Warn, "No client matched %v, searching again...", w.sc.ClientMatches)
	if err := input.Clear(); err != nil {
		return err
	}
	if err := input.PressSequentially(w.sc.ClientQuery); err != nil {
		return err
	}
	w.pause(ctx, w.t.Search)
	texts, err = links.AllInnerTexts()
	if err != nil {
		return err
	}
	if len(texts) > 0 {
		return w.clickClient(ctx, links.First(), texts[0], "Client selected by RFC: %s")
	}
	w.soft(ctx, narrate.Fail, "No client found for %s", w.sc.ClientQuery)
	return nil
}

func (w *walk) clickClient(ctx context.Context, link playwright.Locator, text, msg string) error {
	if err := link.ScrollIntoViewIfNeeded(); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)
	if err := link.Click(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	w.rep.Client = text
	w.rep.ClientSelected = true
	w.say.Say(ctx, narrate.OK, msg, text)
	return nil
}

func (w *walk) fillSeriesFolio(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Filling series and folio...")
	if err := w.page.Locator(selSeries).Fill(w.sc.Series); err != nil {
		return fmt.Errorf("series field: %w", err)
	}
	if err := w.page.Locator(selFolio).Fill(w.sc.Folio); err != nil {
		return fmt.Errorf("folio field: %w", err)
	}
	return nil
}

func (w *walk) selectCatalogs(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Configuring tax fields...")
	fields := []struct{ selector, value string }{
		{"#formaPago", w.sc.PaymentForm},
		{"#usoCFDI", w.sc.CFDIUse},
		{"#moneda", w.sc.Currency},
	}
	for _, f := range fields {
		sel, err := browser.WaitAttached(w.page, f.selector, w.t.Wait)
		if err != nil {
			return err
		}
		opts, err := browser.Options(sel)
		if err != nil {
			return err
		}
		if len(opts) <= 1 {
			w.note(ctx, "%s has no options yet, left as is", f.selector)
			continue
		}
		if err := browser.SelectValue(sel, f.value); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) fillProductLine(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Adding the line item...")
	w.pause(ctx, w.t.Settle)
	if err := w.chooseProduct(ctx); err != nil {
		w.soft(ctx, narrate.Warn, "Error choosing product: %v", err)
	}
	if err := w.fillManualFields(ctx); err != nil {
		w.soft(ctx, narrate.Warn, "Error filling line item fields: %v", err)
	}
	return nil
}

func (w *walk) chooseProduct(ctx context.Context) error {
	sel, matched := browser.FirstExisting(w.page, productSelectors...)
	if sel == nil {
		w.say.Say(ctx, narrate.Info, "No product dropdown found, filling fields manually")
		return nil
	}
	w.say.Detail(ctx, "Product dropdown: %s", matched)
	w.pause(ctx, w.t.Pause)

	opts, err := browser.Options(sel)
	if err != nil {
		return err
	}
	for _, o := range opts[min(1, len(opts)):] {
		w.say.Detail(ctx, "Option %d: %s", o.Index, o.Text)
	}

	if idx := matchOption(opts, 1, w.sc.ProductKeywords...); idx >= 0 {
		if err := browser.SelectIndex(sel, idx); err != nil {
			return err
		}
		w.rep.Product = opts[idx].Text
		w.say.Say(ctx, narrate.OK, "Product selected: %s", opts[idx].Text)
		// Selecting a product fills the line item defaults.
		w.pause(ctx, w.t.Settle)
		return nil
	}
	if idx := fallbackIndex(opts, 1); idx >= 0 {
		if err := browser.SelectIndex(sel, idx); err != nil {
			return err
		}
		w.rep.Product = opts[idx].Text
		w.soft(ctx, narrate.Warn, "No product matched %v, selected: %s", w.sc.ProductKeywords, opts[idx].Text)
		w.pause(ctx, w.t.Settle)
		return nil
	}
	w.soft(ctx, narrate.Warn, "Product dropdown has no products")
	return nil
}

func (w *walk) fillManualFields(ctx context.Context) error {
	defaults := []struct{ name, value string }{
		{"ClaveProdServ", w.sc.ProductCode},
		{"ClaveUnidad", w.sc.UnitCode},
		{"Descripcion", w.sc.Description},
	}
	for _, d := range defaults {
		field := w.page.Locator(conceptField(d.name))
		if n, err := field.Count(); err != nil || n == 0 {
			continue
		}
		field = field.First()
		current, err := browser.ReadValue(field)
		if err != nil {
			return err
		}
		if current != "" {
			continue
		}
		if err := field.Fill(d.value); err != nil {
			return err
		}
		w.note(ctx, "%s filled with %s", d.name, d.value)
	}

	qty := w.page.Locator(conceptField("CantidadFormula"))
	if n, err := qty.Count(); err == nil && n > 0 {
		if err := qty.First().Fill(w.sc.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) fillUnitPrice(ctx context.Context) error {
	w.pause(ctx, w.t.Settle)
	w.say.Say(ctx, narrate.Info, "Setting unit price to %s...", w.sc.UnitPrice)
	if err := w.setUnitPrice(ctx); err != nil {
		w.soft(ctx, narrate.Warn, "Error setting unit price: %v", err)
	}
	return nil
}

func (w *walk) setUnitPrice(ctx context.Context) error {
	inputs, err := browser.Fields(w.page, selConceptInputs)
	if err != nil {
		return err
	}
	for i, f := range inputs {
		w.say.Detail(ctx, "Input %d: name=%q value=%q placeholder=%q", i, f.Name, f.Value, f.Placeholder)
	}

	field := w.locatePriceField(inputs)
	if field == nil {
		w.soft(ctx, narrate.Fail, "Unit price field not found")
		return nil
	}

	if err := field.ScrollIntoViewIfNeeded(); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)
	if err := field.Click(); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)
	if err := field.Clear(); err != nil {
		return err
	}
	if err := field.Press("Control+a"); err != nil {
		return err
	}
	if err := field.Press("Delete"); err != nil {
		return err
	}
	if err := field.PressSequentially(w.sc.UnitPrice); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)
	if err := field.Press("Tab"); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)

	got, err := browser.ReadValue(field)
	if err != nil {
		return err
	}
	if !strings.Contains(got, w.sc.UnitPrice) {
		w.soft(ctx, narrate.Warn, "Unit price field shows %q, setting it directly", got)
		if err := browser.ForceValue(field, w.sc.UnitPrice); err != nil {
			return err
		}
		w.rep.UnitPriceForced = true
		if got, err = browser.ReadValue(field); err != nil {
			return err
		}
		w.say.Detail(ctx, "Value after direct set: %s", got)
	}
	w.rep.UnitPrice = got

	if !strings.Contains(got, w.sc.UnitPrice) {
		w.soft(ctx, narrate.Fail, "Unit price is %q, expected %s", got, w.sc.UnitPrice)
		return nil
	}
	w.say.Say(ctx, narrate.OK, "Unit price set: %s", got)
	return nil
}

// locatePriceField finds the unit price input by name, falling back to
// the first line item input whose value or placeholder carries a hint.
func (w *walk) locatePriceField(inputs []browser.FieldInfo) playwright.Locator {
	byName := w.page.Locator(conceptField("ValorUnitarioFormula"))
	if n, err := byName.Count(); err == nil && n > 0 {
		return byName.First()
	}
	for i, f := range inputs {
		if scenario.ContainsAny(f.Value, w.sc.PriceFieldHints...) ||
			scenario.ContainsAny(f.Placeholder, w.sc.PriceFieldHints...) {
			return w.page.Locator(selConceptInputs).Nth(i)
		}
	}
	return nil
}

func (w *walk) advance(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Going to step 2...")
	next := w.page.Locator(selNext)
	if err := next.ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("next button: %w", err)
	}
	w.pause(ctx, w.t.Pause)
	if err := next.Click(); err != nil {
		return fmt.Errorf("next button: %w", err)
	}
	w.pause(ctx, w.t.Settle)
	return nil
}

func (w *walk) preview(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Generating preview...")
	btn, err := browser.WaitVisible(w.page, selPreview, w.t.Wait)
	if err == nil {
		err = w.scrollAndClick(ctx, btn)
	}
	if err != nil {
		w.soft(ctx, narrate.Warn, "Could not generate preview: %v", err)
		return nil
	}
	w.pause(ctx, w.t.Settle)
	w.say.Say(ctx, narrate.OK, "Preview generated")
	return nil
}

func (w *walk) generateAndSave(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Generating cadena and saving...")
	btn, err := browser.WaitVisible(w.page, selGenerate, w.t.Wait)
	if err == nil {
		err = w.scrollAndClick(ctx, btn)
	}
	if err != nil {
		w.soft(ctx, narrate.Fail, "Error generating cadena: %v", err)
		return nil
	}

	w.say.Say(ctx, narrate.Wait, "Waiting for the server response...")
	errorsSeen, successes := w.waitForBanners(ctx)

	for _, e := range errorsSeen {
		e = logutil.TruncateForLog(e, bannerChars)
		w.rep.ErrorBanners = append(w.rep.ErrorBanners, e)
		w.soft(ctx, narrate.Fail, "Error shown: %s", e)
	}
	for _, s := range successes {
		s = logutil.TruncateForLog(s, bannerChars)
		w.rep.SuccessBanners = append(w.rep.SuccessBanners, s)
		w.say.Say(ctx, narrate.OK, "Success: %s", s)
	}
	if len(errorsSeen) == 0 && len(successes) == 0 {
		w.soft(ctx, narrate.Warn, "No confirmation within %s", w.t.Save)
	}

	if len(successes) > 0 {
		if ok, _ := w.page.Locator(selScheduleStep).First().IsVisible(); ok {
			w.rep.NextStepFound = true
			w.say.Say(ctx, narrate.OK, "Schedule step button available")
		} else {
			w.soft(ctx, narrate.Warn, "Schedule step button not found")
		}
	}
	return nil
}

// waitForBanners polls until an error or success banner is visible or the
// save window runs out, and returns the visible texts of each kind.
func (w *walk) waitForBanners(ctx context.Context) (errorsSeen, successes []string) {
	for waited := time.Duration(0); ; waited += bannerPoll {
		errorsSeen = browser.VisibleTexts(w.page, selErrorBanner)
		successes = browser.VisibleTexts(w.page, selSuccessBanner)
		if len(errorsSeen) > 0 || len(successes) > 0 || waited >= w.t.Save || ctx.Err() != nil {
			return errorsSeen, successes
		}
		w.pause(ctx, bannerPoll)
	}
}

func (w *walk) scrollAndClick(ctx context.Context, btn playwright.Locator) error {
	if err := btn.ScrollIntoViewIfNeeded(); err != nil {
		return err
	}
	w.pause(ctx, w.t.Pause)
	return btn.Click()
}

func (w *walk) screenshot(ctx context.Context) error {
	w.say.Blank()
	w.say.Say(ctx, narrate.Summary, "SUMMARY")
	w.say.Rule(50)

	data, err := w.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
	if err != nil {
		return fmt.Errorf("take screenshot: %w", err)
	}
	path, err := artifacts.WriteFile(w.cfg.ScreenshotPath, data)
	if err != nil {
		return err
	}
	w.rep.Screenshot = path
	w.say.Say(ctx, narrate.Shot, "Screenshot saved: %s", path)

	url, err := w.pub.Publish(ctx, path, data)
	if err != nil {
		w.soft(ctx, narrate.Warn, "Could not upload screenshot: %v", err)
		return nil
	}
	if url != "" {
		w.rep.ScreenshotURL = url
		w.say.Detail(ctx, "Screenshot uploaded: %s", url)
	}
	return nil
}

func (w *walk) verifyListing(ctx context.Context) error {
	w.say.Say(ctx, narrate.Info, "Checking the template in the listing...")
	if err := browser.Navigate(w.page, w.cfg.ListingURL(), w.t.Wait); err != nil {
		return err
	}
	w.pause(ctx, w.t.Settle)
	if err := w.findListingRow(ctx); err != nil {
		w.soft(ctx, narrate.Warn, "Error checking the listing: %v", err)
	}
	return nil
}

func (w *walk) findListingRow(ctx context.Context) error {
	if _, err := browser.WaitAttached(w.page, selListingTable, w.t.Wait); err != nil {
		return err
	}
	rows := w.page.Locator(selListingRows)
	texts, err := rows.AllInnerTexts()
	if err != nil {
		return err
	}

	idx := matchRow(texts, w.sc.ListingMatches...)
	if idx < 0 {
		w.soft(ctx, narrate.Warn, "Template not found in the listing")
		for i, text := range texts {
			if i == listingSample {
				break
			}
			text = logutil.TruncateForLog(text, listingRowChars)
			w.rep.Listing.Sample = append(w.rep.Listing.Sample, text)
			w.say.Detail(ctx, "Row %d: %s", i+1, text)
		}
		return nil
	}

	buttons, err := rows.Nth(idx).Locator("button").Count()
	if err != nil {
		return err
	}
	status := "Inactiva"
	if scenario.ContainsAny(texts[idx], w.sc.ActiveStatus) {
		status = w.sc.ActiveStatus
	}
	w.rep.Listing = ListingResult{
		Found:   true,
		Row:     logutil.TruncateForLog(texts[idx], bannerChars),
		Buttons: buttons,
		Status:  status,
	}
	w.say.Say(ctx, narrate.OK, "Template found in the listing: %s", w.rep.Listing.Row)
	w.say.Detail(ctx, "Action buttons: %d", buttons)
	w.say.Detail(ctx, "Status: %s", status)
	return nil
}

func (w *walk) hold(ctx context.Context) error {
	if w.t.HoldOpen > 0 {
		w.say.Say(ctx, narrate.Info, "Keeping the browser open for %s...", w.t.HoldOpen)
		w.pause(ctx, w.t.HoldOpen)
	}
	return nil
}
