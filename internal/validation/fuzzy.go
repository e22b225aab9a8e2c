package validation

import (
	"strings"
	"unicode"
)

type matchKind int

const (
	matchGeneral matchKind = iota
	matchName
	matchAddress
)

var abbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"rd":   "road",
	"dr":   "drive",
	"ln":   "lane",
	"blvd": "boulevard",
	"corp": "corporation",
	"ltd":  "limited",
	"inc":  "incorporated",
	"co":   "company",
	"eng":  "engineer",
	"dev":  "developer",
	"mgr":  "manager",
	"dir":  "director",
	"pres": "president",
	"ceo":  "chief executive officer",
	"cto":  "chief technology officer",
	"cfo":  "chief financial officer",
}

// nicknames maps a formal first name to its common short forms.
var nicknames = map[string][]string{
	"william":     {"bill", "billy", "will", "willy", "liam"},
	"robert":      {"bob", "rob", "robby", "bobby", "bert"},
	"richard":     {"rick", "rich", "dick", "ricky"},
	"james":       {"jim", "jimmy", "jamie"},
	"john":        {"jon", "johnny", "jack"},
	"michael":     {"mike", "mikey", "mick", "mickey"},
	"david":       {"dave", "davey"},
	"christopher": {"chris", "topher"},
	"daniel":      {"dan", "danny"},
	"matthew":     {"matt", "matty"},
	"andrew":      {"andy", "drew"},
	"joseph":      {"joe", "joey"},
	"thomas":      {"tom", "tommy"},
	"anthony":     {"tony"},
	"edward":      {"ed", "eddie", "ted"},
	"alexander":   {"alex", "sasha"},
	"benjamin":    {"ben", "benny"},
	"nicholas":    {"nick", "nicky"},
	"elizabeth":   {"liz", "lizzy", "beth", "betty", "lisa", "eliza"},
	"margaret":    {"maggie", "meg", "peggy"},
	"patricia":    {"pat", "patty", "trish"},
	"jennifer":    {"jen", "jenny"},
	"susan":       {"sue", "suzie"},
	"jessica":     {"jess", "jessie"},
	"sarah":       {"sally", "sara"},
	"katherine":   {"kate", "kathy", "katie", "kat"},
	"catherine":   {"cathy", "cat", "kate"},
	"rebecca":     {"becky", "becca"},
	"victoria":    {"vicky", "tori"},
	"samantha":    {"sam", "sammy"},
	"alexandra":   {"alex", "sasha", "lexi"},
	"sandra":      {"sandy"},
	"caroline":    {"carol", "carrie"},
	"deborah":     {"deb", "debbie"},
	"laura":       {"laurie"},
}

// fuzzyMatch reports whether two values agree at or above threshold (0-1).
func fuzzyMatch(a, b string, threshold float64, kind matchKind) bool {
	a, b = collapse(a), collapse(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	a, b = expandAbbreviations(a), expandAbbreviations(b)
	if a == b {
		return true
	}
	switch kind {
	case matchName:
		return nameMatch(a, b, threshold)
	case matchAddress:
		return addressMatch(a, b, threshold)
	default:
		return generalSimilarity(a, b) >= threshold
	}
}

func nameMatch(a, b string, threshold float64) bool {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if len(wa) == 1 && len(wb) == 1 {
		return generalSimilarity(a, b) >= threshold || isNickname(wa[0], wb[0])
	}
	words := wordSimilarity(a, b)
	if words >= threshold {
		return true
	}
	chars := charSimilarity(a, b)
	if chars >= threshold {
		return true
	}
	if nicknameVariant(wa, wb) {
		return true
	}
	return words*0.6+chars*0.4 >= threshold
}

// nicknameVariant reports whether the names are equal once one word in each
// is a nickname pair, e.g. "bill smith" and "william smith".
func nicknameVariant(wa, wb []string) bool {
	if len(wa) != len(wb) {
		return false
	}
	swapped := false
	for i := range wa {
		if wa[i] == wb[i] {
			continue
		}
		if swapped || !isNickname(wa[i], wb[i]) {
			return false
		}
		swapped = true
	}
	return swapped
}

func isNickname(a, b string) bool {
	for _, n := range nicknames[a] {
		if n == b {
			return true
		}
	}
	for _, n := range nicknames[b] {
		if n == a {
			return true
		}
	}
	return false
}

var streetWords = map[string]bool{
	"street": true, "st": true, "avenue": true, "ave": true, "road": true, "rd": true,
	"drive": true, "dr": true, "lane": true, "ln": true, "boulevard": true, "blvd": true,
}

func cleanAddress(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, s)
	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if !streetWords[w] {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func addressMatch(a, b string, threshold float64) bool {
	a, b = cleanAddress(a), cleanAddress(b)
	if a == b {
		return true
	}
	words := wordSimilarity(a, b)
	if words >= threshold {
		return true
	}
	if sameHouseNumber(a, b) {
		return true
	}
	return words*0.7+charSimilarity(a, b)*0.3 >= threshold
}

// sameHouseNumber accepts addresses that share the first number and mostly
// agree on the remaining words (e.g. differing apartment designations).
func sameHouseNumber(a, b string) bool {
	wa, wb := strings.Fields(a), strings.Fields(b)
	if abs(len(wa)-len(wb)) > 3 {
		return false
	}
	na, nb := firstNumber(wa), firstNumber(wb)
	if na == "" || na != nb {
		return false
	}
	return wordSimilarity(without(wa, na), without(wb, nb)) >= 0.7
}

func firstNumber(words []string) string {
	for _, w := range words {
		if isDigits(w) {
			return w
		}
	}
	return ""
}

func without(words []string, drop string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != drop {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}

func generalSimilarity(a, b string) float64 {
	return wordSimilarity(a, b)*0.5 + charSimilarity(a, b)*0.3 + abbreviationSimilarity(a, b)*0.2
}

// wordSimilarity is the Jaccard index of the word sets.
func wordSimilarity(a, b string) float64 {
	return jaccard(strings.Fields(a), strings.Fields(b))
}

// charSimilarity is the Jaccard index of the character sets, ignoring spaces.
func charSimilarity(a, b string) float64 {
	return jaccard(
		strings.Split(strings.ReplaceAll(a, " ", ""), ""),
		strings.Split(strings.ReplaceAll(b, " ", ""), ""),
	)
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		if v != "" {
			setA[v] = struct{}{}
		}
	}
	setB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if v != "" {
			setB[v] = struct{}{}
		}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for v := range setA {
		if _, ok := setB[v]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func abbreviationSimilarity(a, b string) float64 {
	wa, wb := strings.Fields(a), strings.Fields(b)
	switch {
	case len(wa) == 1 && len(wb) > 1 && isAbbreviation(wa[0], wb):
		return 0.9
	case len(wb) == 1 && len(wa) > 1 && isAbbreviation(wb[0], wa):
		return 0.9
	}
	return 0
}

func isAbbreviation(abbrev string, words []string) bool {
	if len(abbrev) < 2 {
		return false
	}
	var initials strings.Builder
	for _, w := range words {
		initials.WriteByte(w[0])
	}
	if initials.String() == abbrev {
		return true
	}
	for _, w := range words {
		if strings.HasPrefix(w, abbrev) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func expandAbbreviations(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if full, ok := abbreviations[strings.TrimSuffix(w, ".")]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
