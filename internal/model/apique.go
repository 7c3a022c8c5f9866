package model

import (
	"strconv"
	"strings"
	"time"
)

// Apique is a test pit logged layer by layer.
type Apique struct {
	ID             int64         `json:"id"`
	ProjectID      int64         `json:"projectId"`
	ApiqueNumber   int           `json:"apiqueNumber"`
	Location       string        `json:"location"`
	Depth          float64       `json:"depth"`
	ExcavationDate string        `json:"excavationDate"`
	Collapse       bool          `json:"collapse"`
	Description    string        `json:"description"`
	Layers         []ApiqueLayer `json:"layers"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type ApiqueLayer struct {
	ID              int64   `json:"id"`
	ApiqueID        int64   `json:"apiqueId"`
	LayerNumber     int     `json:"layerNumber"`
	Thickness       float64 `json:"thickness"`
	SoilDescription string  `json:"soilDescription"`
	SampleID        string  `json:"sampleId"`
	Observation     string  `json:"observation"`
}

type ApiqueLayerInput struct {
	LayerNumber     int     `json:"layerNumber"`
	Thickness       float64 `json:"thickness"`
	SoilDescription string  `json:"soilDescription"`
	SampleID        string  `json:"sampleId"`
	Observation     string  `json:"observation"`
}

func (a Apique) Validate() error {
	var errs fieldErrors
	if a.ApiqueNumber < 1 {
		errs.add("apiqueNumber", "must be at least 1")
	}
	if !finite(a.Depth) || a.Depth < 0 {
		errs.add("depth", "must be zero or positive")
	}
	if !validDate(a.ExcavationDate) {
		errs.add("excavationDate", "must be YYYY-MM-DD")
	}
	seen := make(map[int]struct{}, len(a.Layers))
	for i, l := range a.Layers {
		field := "layers[" + strconv.Itoa(i) + "]"
		if l.LayerNumber < 1 {
			errs.add(field+".layerNumber", "must be at least 1")
		}
		if _, dup := seen[l.LayerNumber]; dup {
			errs.add(field+".layerNumber", "duplicates layer %d", l.LayerNumber)
		}
		seen[l.LayerNumber] = struct{}{}
		if !finite(l.Thickness) || l.Thickness <= 0 {
			errs.add(field+".thickness", "must be positive")
		}
	}
	return errs.err()
}

func toApiqueLayers(in []ApiqueLayerInput) []ApiqueLayer {
	layers := make([]ApiqueLayer, 0, len(in))
	for _, l := range in {
		layers = append(layers, ApiqueLayer{
			LayerNumber:     l.LayerNumber,
			Thickness:       l.Thickness,
			SoilDescription: strings.TrimSpace(l.SoilDescription),
			SampleID:        strings.TrimSpace(l.SampleID),
			Observation:     l.Observation,
		})
	}
	return layers
}

type CreateApiqueRequest struct {
	ApiqueNumber   int                `json:"apiqueNumber"`
	Location       string             `json:"location"`
	Depth          float64            `json:"depth"`
	ExcavationDate string             `json:"excavationDate"`
	Collapse       bool               `json:"collapse"`
	Description    string             `json:"description"`
	Layers         []ApiqueLayerInput `json:"layers"`
}

func (r CreateApiqueRequest) ToApique(projectID int64) Apique {
	return Apique{
		ProjectID:      projectID,
		ApiqueNumber:   r.ApiqueNumber,
		Location:       strings.TrimSpace(r.Location),
		Depth:          r.Depth,
		ExcavationDate: strings.TrimSpace(r.ExcavationDate),
		Collapse:       r.Collapse,
		Description:    r.Description,
		Layers:         toApiqueLayers(r.Layers),
	}
}

// UpdateApiqueRequest distinguishes an absent layers field (nil, children
// untouched) from an empty one (replace with nothing).
type UpdateApiqueRequest struct {
	ApiqueNumber   *int                `json:"apiqueNumber"`
	Location       *string             `json:"location"`
	Depth          *float64            `json:"depth"`
	ExcavationDate *string             `json:"excavationDate"`
	Collapse       *bool               `json:"collapse"`
	Description    *string             `json:"description"`
	Layers         *[]ApiqueLayerInput `json:"layers"`
}

// Apply merges the scalar fields and, when present, swaps in the
// replacement layer set.
func (r UpdateApiqueRequest) Apply(a Apique) Apique {
	if r.ApiqueNumber != nil {
		a.ApiqueNumber = *r.ApiqueNumber
	}
	if r.Location != nil {
		a.Location = strings.TrimSpace(*r.Location)
	}
	if r.Depth != nil {
		a.Depth = *r.Depth
	}
	if r.ExcavationDate != nil {
		a.ExcavationDate = strings.TrimSpace(*r.ExcavationDate)
	}
	if r.Collapse != nil {
		a.Collapse = *r.Collapse
	}
	if r.Description != nil {
		a.Description = *r.Description
	}
	if r.Layers != nil {
		a.Layers = toApiqueLayers(*r.Layers)
	}
	return a
}

func (r UpdateApiqueRequest) ReplacesLayers() bool {
	return r.Layers != nil
}
