package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/plantilla-walkthrough/internal/errs"
	"github.com/kuitang/plantilla-walkthrough/internal/logutil"
)

const contentPreviewChars = 500

// Option is one <option> of a <select>, in document order.
type Option struct {
	Index int
	Value string
	Text  string
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// classify maps a Playwright failure to an error code.
func classify(err error, what string) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return errs.Wrap(errs.Timeout, what, err)
	}
	return errs.Wrap(errs.Unavailable, what, err)
}

// Navigate loads url and waits for DOMContentLoaded.
func Navigate(page playwright.Page, url string, timeout time.Duration) error {
	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	if err != nil {
		return classify(err, "navigate to "+url)
	}
	return nil
}

// WaitVisible waits for the first element matching selector to be visible.
func WaitVisible(page playwright.Page, selector string, timeout time.Duration) (playwright.Locator, error) {
	return waitFor(page, selector, playwright.WaitForSelectorStateVisible, timeout)
}

// WaitAttached waits for the first element matching selector to be in the DOM.
func WaitAttached(page playwright.Page, selector string, timeout time.Duration) (playwright.Locator, error) {
	return waitFor(page, selector, playwright.WaitForSelectorStateAttached, timeout)
}

func waitFor(page playwright.Page, selector string, state *playwright.WaitForSelectorState, timeout time.Duration) (playwright.Locator, error) {
	first := page.Locator(selector).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   state,
		Timeout: ms(timeout),
	}); err != nil {
		return nil, classify(err, fmt.Sprintf("wait for %s", selector))
	}
	return first, nil
}

// Exists reports whether selector matches at least one element right now.
func Exists(page playwright.Page, selector string) bool {
	n, err := page.Locator(selector).Count()
	return err == nil && n > 0
}

// FirstExisting returns the locator for the first selector that matches
// anything, or nil when none do.
func FirstExisting(page playwright.Page, selectors ...string) (playwright.Locator, string) {
	for _, sel := range selectors {
		if Exists(page, sel) {
			return page.Locator(sel).First(), sel
		}
	}
	return nil, ""
}

// Options lists the options of a <select> element.
func Options(sel playwright.Locator) ([]Option, error) {
	raw, err := sel.Evaluate(`el => Array.from(el.options || []).map(o => [o.value, o.text])`, nil)
	if err != nil {
		return nil, classify(err, "read select options")
	}
	items, _ := raw.([]interface{})
	out := make([]Option, 0, len(items))
	for i, item := range items {
		pair, _ := item.([]interface{})
		opt := Option{Index: i}
		if len(pair) == 2 {
			opt.Value, _ = pair[0].(string)
			opt.Text, _ = pair[1].(string)
		}
		out = append(out, opt)
	}
	return out, nil
}

// SelectIndex selects the option at idx, firing the change event.
func SelectIndex(sel playwright.Locator, idx int) error {
	if _, err := sel.SelectOption(playwright.SelectOptionValues{Indexes: &[]int{idx}}); err != nil {
		return classify(err, fmt.Sprintf("select option %d", idx))
	}
	return nil
}

// SelectValue selects the option whose value is value.
func SelectValue(sel playwright.Locator, value string) error {
	if _, err := sel.SelectOption(playwright.SelectOptionValues{Values: playwright.StringSlice(value)}); err != nil {
		return classify(err, fmt.Sprintf("select value %q", value))
	}
	return nil
}

// TypeInto clicks the field, clears it and types text key by key so that
// keyboard listeners on the page fire.
func TypeInto(field playwright.Locator, text string) error {
	if err := field.Click(); err != nil {
		return classify(err, "click field")
	}
	if err := field.Clear(); err != nil {
		return classify(err, "clear field")
	}
	if err := field.PressSequentially(text); err != nil {
		return classify(err, "type into field")
	}
	return nil
}

// ReadValue returns the current value of an input.
func ReadValue(field playwright.Locator) (string, error) {
	v, err := field.InputValue()
	if err != nil {
		return "", classify(err, "read field value")
	}
	return v, nil
}

// ForceValue writes value straight into the element and dispatches input
// and change events, for fields that swallow keystrokes.
func ForceValue(field playwright.Locator, value string) error {
	_, err := field.Evaluate(`(el, v) => {
		el.value = v;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	if err != nil {
		return classify(err, "set field value")
	}
	return nil
}

// VisibleTexts returns the inner text of every visible element matching selector.
func VisibleTexts(page playwright.Page, selector string) []string {
	loc := page.Locator(selector)
	n, err := loc.Count()
	if err != nil {
		return nil
	}
	var out []string
	for i := 0; i < n; i++ {
		el := loc.Nth(i)
		if ok, err := el.IsVisible(); err != nil || !ok {
			continue
		}
		text, err := el.InnerText()
		if err != nil {
			continue
		}
		out = append(out, strings.TrimSpace(text))
	}
	return out
}

// FieldInfo describes an input for diagnostics.
type FieldInfo struct {
	Name        string
	Value       string
	Placeholder string
}

// Fields describes every input matching selector.
func Fields(page playwright.Page, selector string) ([]FieldInfo, error) {
	raw, err := page.Locator(selector).EvaluateAll(`els => els.map(e => [e.name || '', e.value || '', e.placeholder || ''])`)
	if err != nil {
		return nil, classify(err, "describe fields")
	}
	items, _ := raw.([]interface{})
	out := make([]FieldInfo, 0, len(items))
	for _, item := range items {
		triple, _ := item.([]interface{})
		var f FieldInfo
		if len(triple) == 3 {
			f.Name, _ = triple[0].(string)
			f.Value, _ = triple[1].(string)
			f.Placeholder, _ = triple[2].(string)
		}
		out = append(out, f)
	}
	return out, nil
}

// Describe summarizes where the page is, for failure diagnostics.
func Describe(page playwright.Page) string {
	title, _ := page.Title()
	content, _ := page.Content()
	return fmt.Sprintf("url=%s title=%q content=%s",
		page.URL(), title, logutil.TruncateForLog(content, contentPreviewChars))
}
