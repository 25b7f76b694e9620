package walkthrough

import (
	"github.com/kuitang/plantilla-walkthrough/internal/browser"
	"github.com/kuitang/plantilla-walkthrough/internal/scenario"
)

// matchOption returns the index of the first option whose text contains
// any needle, ignoring case. Options before from are never considered.
// It returns -1 when nothing matches.
func matchOption(opts []browser.Option, from int, needles ...string) int {
	for i := from; i < len(opts); i++ {
		if scenario.ContainsAnyFold(opts[i].Text, needles...) {
			return i
		}
	}
	return -1
}

// matchText is matchOption for plain strings.
func matchText(texts []string, needles ...string) int {
	for i, t := range texts {
		if scenario.ContainsAnyFold(t, needles...) {
			return i
		}
	}
	return -1
}

// matchRow finds the first listing row containing a needle verbatim.
func matchRow(rows []string, needles ...string) int {
	for i, r := range rows {
		if scenario.ContainsAny(r, needles...) {
			return i
		}
	}
	return -1
}

// fallbackIndex picks the option to use when nothing matched: the first
// option at or after from, or -1 when there is none.
func fallbackIndex(opts []browser.Option, from int) int {
	if from < 0 {
		from = 0
	}
	if len(opts) > from {
		return from
	}
	return -1
}
