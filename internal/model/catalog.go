package model

type CatalogService struct {
	ID               int64          `json:"id"`
	Code             string         `json:"code"`
	Name             string         `json:"name"`
	Category         string         `json:"category"`
	Description      string         `json:"description"`
	IsActive         bool           `json:"isActive"`
	AdditionalFields []CatalogField `json:"additionalFields"`
}

type CatalogField struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"serviceId"`
	FieldName string `json:"fieldName"`
	Label     string `json:"label"`
	FieldType string `json:"fieldType"`
	Required  bool   `json:"required"`
}

// MissingRequiredFields lists the required additional fields a filled-in
// instance does not carry a non-empty value for.
func (s CatalogService) MissingRequiredFields(values []ServiceInstanceValue) []string {
	present := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v.FieldValue != "" {
			present[v.FieldName] = struct{}{}
		}
	}

	var missing []string
	for _, f := range s.AdditionalFields {
		if !f.Required {
			continue
		}
		if _, ok := present[f.FieldName]; !ok {
			missing = append(missing, f.FieldName)
		}
	}
	return missing
}
