package catalog

import (
	"github.com/joseph-ayodele/catalog-extractor/constants"
	"github.com/joseph-ayodele/catalog-extractor/internal/shape"
)

func str(name string) Field    { return Field{Name: name, Kind: KindString} }
func num(name string) Field    { return Field{Name: name, Kind: KindNumber} }
func arr(name string) Field    { return Field{Name: name, Kind: KindArray} }
func strNum(name string) Field { return Field{Name: name, Kind: KindStringOrNumber} }

func cosmetics() Entry {
	return Entry{
		Category:   constants.Cosmetics,
		TemplateID: "cosmetics",
		Shape:      shape.FlatObject,
		RootFields: []Field{
			str("TitleEN"), str("TitlePT"),
			str("DescriptionEN"), str("DescriptionPT"),
			str("UrlEN"), str("UrlPT"),
			str("HowToEN"), str("HowToPT"),
			strNum("HowtoType"), str("brand"), str("ModelName"), num("CategoryId"),
			arr(shape.SubtypesKey),
		},
		VariantFields: []Field{
			str("EAN"), str("CNP"),
			str("ItemDescriptionEN"), str("ItemDescriptionPT"),
			num("ItemCapacity"), strNum("ItemCapacityUnits"), strNum("PackType"),
			str("VariantType"), str("VariantValue"),
		},
		Classification: shape.FieldMapping{
			"product_name": {shape.FromRoot("TitleEN"), shape.FromVariant("ItemDescriptionEN")},
			"description":  {shape.FromRoot("DescriptionEN")},
			"brand":        {shape.FromRoot("brand"), shape.FromVariant("brand")},
			"product_type": {shape.FromVariant("product_type"), shape.FromRoot("product_type")},
			"ingredients":  {shape.FromVariant("ingredients"), shape.FromRoot("ingredients")},
			"how_to_use":   {shape.FromRoot("HowToEN")},
		},
	}
}

func fragrance() Entry {
	return Entry{
		Category:   constants.Fragrance,
		TemplateID: "fragrance",
		Shape:      shape.FlatObject,
		RootFields: []Field{
			str("TitleEN"), str("TitlePT"),
			str("DescriptionEN"), str("DescriptionPT"),
			str("brand"), str("concentration"), str("scent_family"), str("gender"),
			arr("top_notes"), arr("middle_notes"), arr("base_notes"),
			arr(shape.SubtypesKey),
		},
		VariantFields: []Field{
			str("EAN"),
			str("ItemDescriptionEN"), str("ItemDescriptionPT"),
			num("ItemCapacity"), strNum("ItemCapacityUnits"),
		},
		Classification: shape.FieldMapping{
			"product_name": {shape.FromRoot("TitleEN"), shape.FromVariant("ItemDescriptionEN")},
			"description":  {shape.FromRoot("DescriptionEN")},
			"brand":        {shape.FromRoot("brand")},
			"product_type": {shape.FromRoot("concentration"), shape.FromVariant("product_type")},
			"ingredients":  {shape.FromRoot("ingredients"), shape.FromRoot("top_notes")},
			"how_to_use":   {shape.FromRoot("HowToEN")},
		},
	}
}

func subtype() Entry {
	return Entry{
		Category:   constants.Subtype,
		TemplateID: "subtype",
		Shape:      shape.FlatList,
		VariantFields: []Field{
			str("EAN"), str("CNP"),
			str("ItemDescriptionEN"), str("ItemDescriptionPT"),
			num("ItemCapacity"), strNum("ItemCapacityUnits"), strNum("PackType"),
			strNum("VariantType"), str("VariantValue"),
		},
		Classification: shape.FieldMapping{
			"product_name": {shape.FromVariant("ItemDescriptionEN")},
			"description":  {shape.FromVariant("description")},
			"brand":        {shape.FromVariant("brand")},
			"product_type": {shape.FromVariant("product_type")},
			"ingredients":  {shape.FromVariant("ingredients")},
			"how_to_use":   {shape.FromVariant("how_to_use")},
		},
	}
}

func supplements() Entry {
	return Entry{
		Category:   constants.Supplements,
		TemplateID: "supplements",
		Shape:      shape.Supplement,
		RootFields: []Field{
			str("product_name"), str("brand"),
			str("DescriptionEN"), str("DescriptionPT"),
			arr("ingredients"), str("how_to_use"),
			arr(shape.PresentationsKey),
		},
		VariantFields: []Field{
			str("EAN"), str("form"), num("count"), strNum("dosage"),
		},
		Classification: shape.FieldMapping{
			"product_name": {shape.FromRoot("product_name")},
			"description":  {shape.FromRoot("DescriptionEN")},
			"brand":        {shape.FromRoot("brand")},
			"product_type": {shape.FromVariant("form")},
			"ingredients":  {shape.FromRoot("ingredients")},
			"how_to_use":   {shape.FromRoot("how_to_use")},
		},
	}
}
