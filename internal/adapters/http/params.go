package httpadapter

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

func pathPhotoID(r *http.Request) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", mux.Vars(r)["id"], &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "photo id", err)
	}
	return id, nil
}

// dateRangeQuery reads the optional from/to query parameters.
func dateRangeQuery(query url.Values) (domain.DateRange, error) {
	var from, to *string
	if err := runtime.BindQueryParameter("form", true, false, "from", query, &from); err != nil {
		return domain.DateRange{}, domain.WrapError(domain.ErrInvalidInput, "from", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "to", query, &to); err != nil {
		return domain.DateRange{}, domain.WrapError(domain.ErrInvalidInput, "to", err)
	}
	return domain.ParseDateRange(deref(from), deref(to))
}

func photoFilterQuery(query url.Values) (domain.PhotoFilter, error) {
	window, err := dateRangeQuery(query)
	if err != nil {
		return domain.PhotoFilter{}, err
	}
	filter := domain.PhotoFilter{Range: window}

	var page, pageSize *int
	var category *string
	binds := []struct {
		name string
		dest any
	}{
		{"page", &page},
		{"page_size", &pageSize},
		{"category", &category},
		{"is_selected", &filter.IsSelected},
		{"focal_min", &filter.FocalMin},
		{"focal_max", &filter.FocalMax},
		{"iso_min", &filter.ISOMin},
		{"iso_max", &filter.ISOMax},
	}
	for _, b := range binds {
		if err := runtime.BindQueryParameter("form", true, false, b.name, query, b.dest); err != nil {
			return domain.PhotoFilter{}, domain.WrapError(domain.ErrInvalidInput, b.name, err)
		}
	}
	if page != nil {
		filter.Page = *page
	}
	if pageSize != nil {
		filter.PageSize = *pageSize
	}
	if category != nil && *category != "" {
		c := domain.Category(*category)
		filter.Category = &c
	}
	return filter, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
