package casehub

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/multicare-dataset/website/internal/apperr"
	"github.com/multicare-dataset/website/internal/models"
	"github.com/multicare-dataset/website/internal/store"
)

// Resource selects what a search pages over.
type Resource string

// Resource kinds.
const (
	ResourceText  Resource = "text"  // cases
	ResourceImage Resource = "image" // images
	ResourceBoth  Resource = "both"  // cases with their images
)

// License filters.
const (
	LicenseAll        = "all"
	LicenseCommercial = "commercial"
)

// Gender filters. GenderAny disables the filter.
const (
	GenderAny    = "Any"
	GenderFemale = "Female"
	GenderMale   = "Male"
)

// Bounds of the published dataset. An age bound at its limit is not applied,
// so cases with an unknown age stay in the selection.
const (
	MinAge  = 0
	MaxAge  = 100
	MinYear = 1990
	MaxYear = 2024
)

// Criteria is the full set of search filters.
type Criteria struct {
	MinAge                int      `json:"min_age"`
	MaxAge                int      `json:"max_age"`
	Gender                string   `json:"gender"`
	CaseSearch            string   `json:"case_search"`
	ImageTypeLabel        string   `json:"image_type_label"`
	AnatomicalRegionLabel string   `json:"anatomical_region_label"`
	CaptionSearch         string   `json:"caption_search"`
	MinYear               int      `json:"min_year"`
	MaxYear               int      `json:"max_year"`
	Resource              Resource `json:"resource"`
	License               string   `json:"license"`
}

// DefaultCriteria returns criteria that select the whole dataset as text.
func DefaultCriteria() Criteria {
	return Criteria{
		MinAge:   MinAge,
		MaxAge:   MaxAge,
		Gender:   GenderAny,
		MinYear:  MinYear,
		MaxYear:  MaxYear,
		Resource: ResourceText,
		License:  LicenseAll,
	}
}

// Validate normalises blank enums to their defaults, trims the free-text
// fields and checks every bound. Errors wrap apperr.ErrInvalidCriteria.
func (c *Criteria) Validate() error {
	if c.Gender == "" {
		c.Gender = GenderAny
	}
	if c.Resource == "" {
		c.Resource = ResourceText
	}
	if c.License == "" {
		c.License = LicenseAll
	}
	c.CaseSearch = strings.TrimSpace(c.CaseSearch)
	c.CaptionSearch = strings.TrimSpace(c.CaptionSearch)
	c.ImageTypeLabel = strings.TrimSpace(c.ImageTypeLabel)
	c.AnatomicalRegionLabel = strings.TrimSpace(c.AnatomicalRegionLabel)

	err := validation.ValidateStruct(c,
		validation.Field(&c.MinAge, validation.Min(MinAge), validation.Max(MaxAge)),
		validation.Field(&c.MaxAge, validation.Min(MinAge), validation.Max(MaxAge)),
		validation.Field(&c.MinYear, validation.Required, validation.Min(MinYear), validation.Max(MaxYear)),
		validation.Field(&c.MaxYear, validation.Required, validation.Min(MinYear), validation.Max(MaxYear)),
		validation.Field(&c.Gender, validation.In(GenderAny, GenderFemale, GenderMale)),
		validation.Field(&c.Resource, validation.In(ResourceText, ResourceImage, ResourceBoth)),
		validation.Field(&c.License, validation.In(LicenseAll, LicenseCommercial)),
		validation.Field(&c.ImageTypeLabel, validation.In(anyOf(models.ImageTypeLabels)...)),
		validation.Field(&c.AnatomicalRegionLabel, validation.In(anyOf(models.AnatomicalRegionLabels)...)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidCriteria, err)
	}
	if c.MinAge > c.MaxAge {
		return fmt.Errorf("%w: min_age %d exceeds max_age %d", apperr.ErrInvalidCriteria, c.MinAge, c.MaxAge)
	}
	if c.MinYear > c.MaxYear {
		return fmt.Errorf("%w: min_year %d exceeds max_year %d", apperr.ErrInvalidCriteria, c.MinYear, c.MaxYear)
	}
	return nil
}

func anyOf(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (c Criteria) articleFilter() store.ArticleFilter {
	return store.ArticleFilter{
		MinYear:        c.MinYear,
		MaxYear:        c.MaxYear,
		CommercialOnly: c.License == LicenseCommercial,
	}
}

func (c Criteria) caseFilter() store.CaseFilter {
	f := store.CaseFilter{
		MinYear: c.MinYear,
		MaxYear: c.MaxYear,
		Query:   c.CaseSearch,
	}
	if c.MinAge != MinAge {
		v := c.MinAge
		f.MinAge = &v
	}
	if c.MaxAge != MaxAge {
		v := c.MaxAge
		f.MaxAge = &v
	}
	if c.Gender != GenderAny {
		f.Gender = c.Gender
	}
	return f
}

func (c Criteria) imageFilter() store.ImageFilter {
	return store.ImageFilter{
		MinYear: c.MinYear,
		MaxYear: c.MaxYear,
		Labels:  []string{c.ImageTypeLabel, c.AnatomicalRegionLabel},
		Query:   c.CaptionSearch,
	}
}
