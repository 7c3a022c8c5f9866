package model

import (
	"strconv"
	"strings"
	"time"
)

// Profile is an SPT sounding with its blow counts.
type Profile struct {
	ID             int64        `json:"id"`
	ProjectID      int64        `json:"projectId"`
	SoundingNumber int          `json:"soundingNumber"`
	Location       string       `json:"location"`
	ProfileDate    string       `json:"profileDate"`
	WaterLevel     float64      `json:"waterLevel"`
	TotalDepth     float64      `json:"totalDepth"`
	Description    string       `json:"description"`
	Blows          []Blow       `json:"blows"`
	Summary        ProfileStats `json:"summary"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Blow struct {
	ID          int64   `json:"id"`
	ProfileID   int64   `json:"profileId"`
	Depth       float64 `json:"depth"`
	Fill        string  `json:"fill"`
	Blows6      int     `json:"blows6"`
	Blows12     int     `json:"blows12"`
	Blows18     int     `json:"blows18"`
	N           int     `json:"n"`
	Observation string  `json:"observation"`
}

type BlowInput struct {
	Depth       float64 `json:"depth"`
	Fill        string  `json:"fill"`
	Blows6      int     `json:"blows6"`
	Blows12     int     `json:"blows12"`
	Blows18     int     `json:"blows18"`
	Observation string  `json:"observation"`
}

type ProfileStats struct {
	BlowCount int     `json:"blowCount"`
	MaxDepth  float64 `json:"maxDepth"`
	MaxN      int     `json:"maxN"`
}

// BlowN is the SPT N value: the first 15 cm are seating drive and do not count.
func BlowN(b Blow) int {
	return b.Blows12 + b.Blows18
}

func ProfileSummary(blows []Blow) ProfileStats {
	stats := ProfileStats{BlowCount: len(blows)}
	for _, b := range blows {
		if b.Depth > stats.MaxDepth {
			stats.MaxDepth = b.Depth
		}
		if n := BlowN(b); n > stats.MaxN {
			stats.MaxN = n
		}
	}
	return stats
}

// WithDerived fills the read-only values computed from the blow counts.
func (p Profile) WithDerived() Profile {
	blows := make([]Blow, len(p.Blows))
	for i, b := range p.Blows {
		b.N = BlowN(b)
		blows[i] = b
	}
	p.Blows = blows
	p.Summary = ProfileSummary(blows)
	return p
}

func (p Profile) Validate() error {
	var errs fieldErrors
	if p.SoundingNumber < 1 {
		errs.add("soundingNumber", "must be at least 1")
	}
	if !validDate(p.ProfileDate) {
		errs.add("profileDate", "must be YYYY-MM-DD")
	}
	if !finite(p.WaterLevel) || p.WaterLevel < 0 {
		errs.add("waterLevel", "must be zero or positive")
	}
	if !finite(p.TotalDepth) || p.TotalDepth < 0 {
		errs.add("totalDepth", "must be zero or positive")
	}
	for i, b := range p.Blows {
		field := "blows[" + strconv.Itoa(i) + "]"
		if !finite(b.Depth) || b.Depth < 0 {
			errs.add(field+".depth", "must be zero or positive")
		}
		if b.Blows6 < 0 || b.Blows12 < 0 || b.Blows18 < 0 {
			errs.add(field, "blow counts must be zero or positive")
		}
	}
	return errs.err()
}

func toBlows(in []BlowInput) []Blow {
	blows := make([]Blow, 0, len(in))
	for _, b := range in {
		blows = append(blows, Blow{
			Depth:       b.Depth,
			Fill:        strings.TrimSpace(b.Fill),
			Blows6:      b.Blows6,
			Blows12:     b.Blows12,
			Blows18:     b.Blows18,
			Observation: b.Observation,
		})
	}
	return blows
}

type CreateProfileRequest struct {
	SoundingNumber int         `json:"soundingNumber"`
	Location       string      `json:"location"`
	ProfileDate    string      `json:"profileDate"`
	WaterLevel     float64     `json:"waterLevel"`
	TotalDepth     float64     `json:"totalDepth"`
	Description    string      `json:"description"`
	Blows          []BlowInput `json:"blows"`
}

func (r CreateProfileRequest) ToProfile(projectID int64) Profile {
	return Profile{
		ProjectID:      projectID,
		SoundingNumber: r.SoundingNumber,
		Location:       strings.TrimSpace(r.Location),
		ProfileDate:    strings.TrimSpace(r.ProfileDate),
		WaterLevel:     r.WaterLevel,
		TotalDepth:     r.TotalDepth,
		Description:    r.Description,
		Blows:          toBlows(r.Blows),
	}
}

type UpdateProfileRequest struct {
	SoundingNumber *int         `json:"soundingNumber"`
	Location       *string      `json:"location"`
	ProfileDate    *string      `json:"profileDate"`
	WaterLevel     *float64     `json:"waterLevel"`
	TotalDepth     *float64     `json:"totalDepth"`
	Description    *string      `json:"description"`
	Blows          *[]BlowInput `json:"blows"`
}

func (r UpdateProfileRequest) Apply(p Profile) Profile {
	if r.SoundingNumber != nil {
		p.SoundingNumber = *r.SoundingNumber
	}
	if r.Location != nil {
		p.Location = strings.TrimSpace(*r.Location)
	}
	if r.ProfileDate != nil {
		p.ProfileDate = strings.TrimSpace(*r.ProfileDate)
	}
	if r.WaterLevel != nil {
		p.WaterLevel = *r.WaterLevel
	}
	if r.TotalDepth != nil {
		p.TotalDepth = *r.TotalDepth
	}
	if r.Description != nil {
		p.Description = *r.Description
	}
	if r.Blows != nil {
		p.Blows = toBlows(*r.Blows)
	}
	return p
}

func (r UpdateProfileRequest) ReplacesBlows() bool {
	return r.Blows != nil
}
