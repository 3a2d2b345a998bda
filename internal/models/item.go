package models

import "math"

// Item is a listing in the second-chance catalog.
//
// ID is a decimal integer encoded as a string. DateAdded and UpdatedAt are
// unix seconds.
type Item struct {
	ID          string  `json:"id" gorm:"primaryKey;type:varchar(20)"`
	Name        string  `json:"name" gorm:"type:varchar(200)"`
	Category    string  `json:"category" gorm:"type:varchar(100);index"`
	Condition   string  `json:"condition" gorm:"type:varchar(100);index"`
	PostedBy    string  `json:"posted_by" gorm:"type:varchar(100)"`
	Zipcode     string  `json:"zipcode" gorm:"type:varchar(20)"`
	Description string  `json:"description" gorm:"type:text"`
	AgeDays     int     `json:"age_days"`
	AgeYears    float64 `json:"age_years"`
	DateAdded   int64   `json:"date_added"`
	Image       string  `json:"image,omitempty" gorm:"type:varchar(255)"`
	UpdatedAt   int64   `json:"updatedAt,omitempty" gorm:"autoUpdateTime:false"`
}

// ItemPatch lists the fields an update may change. Nil means "leave as is".
type ItemPatch struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Condition   *string `json:"condition"`
	PostedBy    *string `json:"posted_by"`
	Zipcode     *string `json:"zipcode"`
	Description *string `json:"description"`
	AgeDays     *int    `json:"age_days"`
}

// ItemFilter narrows a catalog search. Zero values match everything.
type ItemFilter struct {
	Name        string
	Category    string
	Condition   string
	MaxAgeYears *float64
}

// AgeInYears converts an age in days to years, rounded to one decimal place.
func AgeInYears(days int) float64 {
	return math.Round(float64(days)/365*10) / 10
}

// Apply copies the supplied fields of p onto item. AgeYears follows AgeDays.
func (p ItemPatch) Apply(item *Item) {
	setString(&item.Name, p.Name)
	setString(&item.Category, p.Category)
	setString(&item.Condition, p.Condition)
	setString(&item.PostedBy, p.PostedBy)
	setString(&item.Zipcode, p.Zipcode)
	setString(&item.Description, p.Description)
	if p.AgeDays != nil {
		item.AgeDays = *p.AgeDays
		item.AgeYears = AgeInYears(*p.AgeDays)
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
