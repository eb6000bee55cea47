package intent

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Catalog answers price questions over the vehicle list. Methods are called
// from response templates.
type Catalog struct {
	vehicles []Vehicle
	aliases  []aliasEntry
}

type aliasEntry struct {
	phrase string
	index  int
}

func newCatalog(vehicles []Vehicle) *Catalog {
	c := &Catalog{vehicles: vehicles}
	// Specific aliases first, brands last, so "bajaj chetak" resolves to the Chetak.
	for i, v := range vehicles {
		c.aliases = append(c.aliases, aliasEntry{phrase: normalize(v.Name), index: i})
		for _, a := range v.Aliases {
			c.aliases = append(c.aliases, aliasEntry{phrase: normalize(a), index: i})
		}
	}
	for i, v := range vehicles {
		if v.Brand != "" {
			c.aliases = append(c.aliases, aliasEntry{phrase: normalize(v.Brand), index: i})
		}
	}
	return c
}

// All returns every vehicle in catalog order.
func (c *Catalog) All() []Vehicle {
	out := make([]Vehicle, len(c.vehicles))
	copy(out, c.vehicles)
	return out
}

// Select returns up to limit vehicles of a category and fuel in catalog order.
// Empty filters match everything; limit <= 0 means no limit.
func (c *Catalog) Select(category, fuel string, limit int) []Vehicle {
	var out []Vehicle
	for _, v := range c.vehicles {
		if (category == "" || v.Category == category) && (fuel == "" || v.Fuel == fuel) {
			out = append(out, v)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// Under returns up to limit matching vehicles priced at or below budget.
func (c *Catalog) Under(category, fuel string, budget int64, limit int) []Vehicle {
	var out []Vehicle
	for _, v := range c.Select(category, fuel, 0) {
		if v.Price <= budget {
			out = append(out, v)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

// AveragePrice is the integer mean price of the matching vehicles.
func (c *Catalog) AveragePrice(category, fuel string) int64 {
	vs := c.Select(category, fuel, 0)
	if len(vs) == 0 {
		return 0
	}
	var sum int64
	for _, v := range vs {
		sum += v.Price
	}
	return sum / int64(len(vs))
}

// MinPrice is the lowest matching price.
func (c *Catalog) MinPrice(category, fuel string) int64 {
	if v := c.Cheapest(category, fuel); v != nil {
		return v.Price
	}
	return 0
}

// MaxPrice is the highest matching price.
func (c *Catalog) MaxPrice(category, fuel string) int64 {
	var highest int64
	for _, v := range c.Select(category, fuel, 0) {
		if v.Price > highest {
			highest = v.Price
		}
	}
	return highest
}

// Cheapest returns the lowest priced match, or nil.
func (c *Catalog) Cheapest(category, fuel string) *Vehicle {
	var best *Vehicle
	for _, v := range c.Select(category, fuel, 0) {
		if best == nil || v.Price < best.Price {
			v := v
			best = &v
		}
	}
	return best
}

// LongestRange returns the electric vehicle with the largest quoted range, or nil.
func (c *Catalog) LongestRange(category string) *Vehicle {
	var (
		best   *Vehicle
		bestKm int
	)
	for _, v := range c.Select(category, "electric", 0) {
		km := leadingInt(v.Range)
		if best == nil || km > bestKm {
			v := v
			best, bestKm = &v, km
		}
	}
	return best
}

// Mentioned returns the first vehicle whose name, alias or brand appears in
// the normalized message, or nil.
func (c *Catalog) Mentioned(padded string) *Vehicle {
	for _, a := range c.aliases {
		if a.phrase != "" && strings.Contains(padded, " "+a.phrase+" ") {
			v := c.vehicles[a.index]
			return &v
		}
	}
	return nil
}

// FormatINR renders rupees with Indian digit grouping: 112000 -> ₹1,12,000.
func FormatINR(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	if len(digits) > 3 {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		digits = strings.Join(groups, ",") + "," + tail
	}
	if neg {
		return "-₹" + digits
	}
	return "₹" + digits
}

var budgetPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(lakhs?|lacs?|लाख|லட்சம்|k|thousand|हजार|हज़ार)?`)

const defaultBudget int64 = 100000

// budgetFrom extracts a rupee budget such as "1 lakh", "1.5 lakh", "80k" or
// "90000" from a normalized message. Without an amount it returns one lakh.
func budgetFrom(text string) int64 {
	for _, m := range budgetPattern.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil || n <= 0 {
			continue
		}
		unit := ""
		if m[4] >= 0 && wordEndsAt(text, m[5]) {
			unit = text[m[4]:m[5]]
		}
		switch unit {
		case "lakh", "lakhs", "lac", "lacs", "लाख", "லட்சம்":
			return int64(n * 100000)
		case "k", "thousand", "हजार", "हज़ार":
			return int64(n * 1000)
		}
		if n >= 10000 {
			return int64(n)
		}
	}
	return defaultBudget
}

// wordEndsAt reports whether no letter or combining mark follows text[i:].
// regexp's \b only understands ASCII word characters.
func wordEndsAt(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r))
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
