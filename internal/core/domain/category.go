package domain

import "strings"

// Category is the closed scene vocabulary photos are classified into.
type Category string

const (
	CategoryPortrait     Category = "portrait"
	CategoryLandscape    Category = "landscape"
	CategoryStreet       Category = "street"
	CategoryArchitecture Category = "architecture"
	CategoryFood         Category = "food"
	CategoryNight        Category = "night"
	CategoryAnimal       Category = "animal"
	CategoryEvent        Category = "event"
	CategoryMacro        Category = "macro"
	CategoryUnclassified Category = "unclassified"
)

var allCategories = []Category{
	CategoryPortrait,
	CategoryLandscape,
	CategoryStreet,
	CategoryArchitecture,
	CategoryFood,
	CategoryNight,
	CategoryAnimal,
	CategoryEvent,
	CategoryMacro,
	CategoryUnclassified,
}

// Localized labels accepted from model output.
var categoryAliases = map[string]Category{
	"人像":  CategoryPortrait,
	"风光":  CategoryLandscape,
	"街拍":  CategoryStreet,
	"建筑":  CategoryArchitecture,
	"美食":  CategoryFood,
	"夜景":  CategoryNight,
	"动物":  CategoryAnimal,
	"活动":  CategoryEvent,
	"微距":  CategoryMacro,
	"未分类": CategoryUnclassified,
}

func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps a raw label onto the vocabulary. Unknown labels become
// CategoryUnclassified and ok reports false.
func ParseCategory(raw string) (Category, bool) {
	label := strings.TrimSpace(raw)
	if alias, found := categoryAliases[label]; found {
		return alias, true
	}
	c := Category(strings.ToLower(label))
	if c.Valid() {
		return c, true
	}
	return CategoryUnclassified, false
}
