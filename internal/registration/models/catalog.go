package models

import "strings"

// BusinessCategories is the fixed catalog a merchant picks a business category from.
var BusinessCategories = []string{
	"سوپرمارکت و خواربارفروشی",
	"رستوران و فست فود",
	"کافه و کافی شاپ",
	"نانوایی",
	"قنادی و شیرینی فروشی",
	"میوه و تره بار",
	"پوشاک",
	"کیف و کفش",
	"لوازم آرایشی و بهداشتی",
	"داروخانه",
	"موبایل و لوازم جانبی",
	"کامپیوتر و لوازم الکترونیکی",
	"لوازم خانگی",
	"لوازم التحریر و کتاب فروشی",
	"اسباب بازی",
	"آرایشگاه و سالن زیبایی",
	"طلا و جواهر",
	"ابزار و یراق",
	"مصالح ساختمانی",
	"خدمات خودرو",
	"گل و گیاه",
	"ورزشی",
	"خدمات آموزشی",
	"فروشگاه اینترنتی",
}

// IsBusinessCategory reports whether name is an exact catalog entry.
func IsBusinessCategory(name string) bool {
	for _, c := range BusinessCategories {
		if c == name {
			return true
		}
	}
	return false
}

// SearchBusinessCategories returns catalog entries containing query, ignoring case.
// An empty query returns the whole catalog.
func SearchBusinessCategories(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]string, 0, len(BusinessCategories))
	for _, c := range BusinessCategories {
		if q == "" || strings.Contains(strings.ToLower(c), q) {
			out = append(out, c)
		}
	}
	return out
}
