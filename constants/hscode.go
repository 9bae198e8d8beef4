package constants

import "strings"

// HSCode is one entry of the closed customs taxonomy the classifier may return.
type HSCode struct {
	Code        string
	Description string
}

// hsCodes is the fixed enumeration embedded in the classification prompt.
// Codes are 8-digit combined nomenclature subheadings without separators.
var hsCodes = []HSCode{
	{"33011200", "Essential oils of orange"},
	{"33011300", "Essential oils of lemon"},
	{"33012400", "Essential oils of peppermint"},
	{"33012990", "Other essential oils (excluding citrus fruit)"},
	{"33019000", "Concentrates and aqueous distillates of essential oils"},
	{"33021090", "Odoriferous mixtures for the food or drink industries"},
	{"33029090", "Other odoriferous mixtures used as raw materials in industry"},
	{"33030010", "Perfumes (extrait, parfum)"},
	{"33030090", "Toilet waters (eau de parfum, eau de toilette, eau de cologne)"},
	{"33041000", "Lip make-up preparations"},
	{"33042000", "Eye make-up preparations"},
	{"33043000", "Manicure or pedicure preparations"},
	{"33049100", "Powders, whether or not compressed"},
	{"33049900", "Other beauty or skin-care preparations, sunscreen, creams, serums"},
	{"33051000", "Shampoos"},
	{"33052000", "Preparations for permanent waving or straightening"},
	{"33053000", "Hair lacquers"},
	{"33059000", "Other hair preparations (conditioners, masks, dyes, oils)"},
	{"33061000", "Dentifrices"},
	{"33062000", "Yarn used to clean between the teeth (dental floss)"},
	{"33069000", "Other preparations for oral or dental hygiene (mouthwash)"},
	{"33071000", "Pre-shave, shaving or after-shave preparations"},
	{"33072000", "Personal deodorants and antiperspirants"},
	{"33073000", "Perfumed bath salts and other bath preparations"},
	{"33074100", "Agarbatti and other odoriferous preparations which operate by burning"},
	{"33074900", "Other preparations for perfuming or deodorising rooms"},
	{"33079000", "Depilatories and other perfumery or toilet preparations"},
	{"34011100", "Soap and organic surface-active products for toilet use, in bars"},
	{"34011900", "Soap in bars for other uses"},
	{"34012010", "Soap in the form of flakes, granules or powders"},
	{"34012090", "Soap in other forms"},
	{"34013000", "Liquid or cream washing preparations for the skin"},
	{"34022090", "Washing and cleaning preparations put up for retail sale"},
	{"34049000", "Artificial and prepared waxes"},
	{"30045000", "Medicaments containing vitamins, put up in measured doses"},
	{"30049000", "Other medicaments put up in measured doses"},
	{"30051000", "Adhesive dressings and other articles having an adhesive layer"},
	{"30069100", "Appliances identifiable for ostomy use"},
	{"21011100", "Extracts, essences and concentrates of coffee"},
	{"21069020", "Compound alcoholic preparations for making beverages"},
	{"21069092", "Food preparations (supplements) containing no milk fats or starch"},
	{"21069098", "Other food preparations and food supplements"},
	{"29362100", "Vitamins A and their derivatives"},
	{"29362700", "Vitamin C and its derivatives"},
	{"29362900", "Other vitamins and their derivatives"},
	{"29369000", "Provitamins and mixtures of vitamins"},
	{"13021990", "Other vegetable saps and extracts"},
	{"15159099", "Other fixed vegetable fats and oils"},
	{"17049099", "Other sugar confectionery not containing cocoa"},
	{"19019099", "Other food preparations of flour, starch or malt extract"},
	{"22029919", "Other non-alcoholic beverages"},
	{"35040090", "Peptones, other protein substances and their derivatives"},
	{"39233010", "Plastic bottles, flasks and similar articles (containers)"},
	{"39249000", "Other household and toilet articles of plastics"},
	{"40141000", "Sheath contraceptives"},
	{"42021299", "Vanity cases and toiletry bags with outer surface of plastics or textile"},
	{"48182010", "Handkerchiefs and cleansing or facial tissues"},
	{"56012110", "Absorbent wadding of cotton (cotton pads)"},
	{"67041100", "Complete wigs of synthetic textile materials"},
	{"82142000", "Manicure or pedicure sets and instruments"},
	{"84243000", "Spray guns and similar appliances"},
	{"85101000", "Shavers with self-contained electric motor"},
	{"85102000", "Hair clippers with self-contained electric motor"},
	{"85103000", "Hair-removing appliances with self-contained electric motor"},
	{"85163100", "Electro-thermic hair dryers"},
	{"85163200", "Other electro-thermic hairdressing apparatus (straighteners, curlers)"},
	{"90049010", "Spectacles and goggles, corrective or protective"},
	{"96032100", "Toothbrushes, including dental-plate brushes"},
	{"96032930", "Hair brushes"},
	{"96033090", "Brushes for the application of cosmetics"},
	{"96050000", "Travel sets for personal toilet, sewing or cleaning"},
	{"96151100", "Combs and hair-slides of hard rubber or plastics"},
	{"96161010", "Scent sprays and similar toilet sprays"},
	{"96162000", "Powder puffs and pads for the application of cosmetics"},
	{"96190081", "Sanitary towels (pads) and tampons"},
}

var hsCodeSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(hsCodes))
	for _, c := range hsCodes {
		set[c.Code] = struct{}{}
	}
	return set
}()

// HSCodes returns a copy of the closed classification enumeration.
func HSCodes() []HSCode {
	out := make([]HSCode, len(hsCodes))
	copy(out, hsCodes)
	return out
}

// HSCodeValues returns just the code strings, in enumeration order.
func HSCodeValues() []string {
	out := make([]string, len(hsCodes))
	for i, c := range hsCodes {
		out[i] = c.Code
	}
	return out
}

// NormalizeHSCode strips dots and spaces the model sometimes adds ("3304.99.00").
func NormalizeHSCode(code string) string {
	return strings.NewReplacer(".", "", " ", "", "-", "").Replace(strings.TrimSpace(code))
}

// IsValidHSCode reports whether code (after normalization) is in the enumeration.
func IsValidHSCode(code string) bool {
	_, ok := hsCodeSet[NormalizeHSCode(code)]
	return ok
}
