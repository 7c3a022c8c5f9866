package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"geotech-lab-api/pkg/apierror"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// fieldErrors collects every problem in a payload so the client can fix
// them in one round trip.
type fieldErrors []string

func (f *fieldErrors) add(field string, format string, args ...any) {
	*f = append(*f, field+": "+fmt.Sprintf(format, args...))
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apierror.Validation("invalid request body", strings.Join(f, "; "))
}

func validDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

func validMonth(s string) bool {
	if len(s) != len(MonthLayout) {
		return false
	}
	_, err := time.Parse(MonthLayout, s)
	return err == nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
