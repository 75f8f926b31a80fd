package server

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"greeks-dashboard/internal/api"
	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/export"
	"greeks-dashboard/internal/greeks"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/security"
	"greeks-dashboard/pkg/utils"
)

var validate = validator.New()

// SeriesRequest is the query string of the series endpoints.
type SeriesRequest struct {
	Date         string `query:"date" json:"date" validate:"omitempty,datetime=2006-01-02"`
	Index        string `query:"index" json:"index" default:"NIFTY" validate:"required,oneof=NIFTY BANKNIFTY FINNIFTY MIDCPNIFTY SENSEX"`
	Expiry       string `query:"expiry" json:"expiry" validate:"omitempty,max=16"`
	Source       string `query:"source" json:"source" default:"live" validate:"oneof=live historical"`
	Baseline     bool   `query:"baseline" json:"baseline"`
	Truncate     string `query:"truncate" json:"truncate" default:"full" validate:"oneof=full now"`
	Order        string `query:"order" json:"order" default:"desc" validate:"oneof=asc desc"`
	Precision    int    `query:"precision" json:"precision" default:"2" validate:"gte=0,lte=6"`
	IncludeEmpty bool   `query:"include_empty" json:"include_empty"`
}

// FieldError is one validation failure in a 400 answer.
type FieldError struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// bindSeriesRequest binds the query, fills config then tag defaults and validates.
func bindSeriesRequest(c echo.Context, dash config.DashboardConfig) (*SeriesRequest, []FieldError) {
	req := &SeriesRequest{}
	if err := c.Bind(req); err != nil {
		return nil, fieldErrors(err)
	}

	req.Index = strings.ToUpper(strings.TrimSpace(req.Index))
	req.Expiry = strings.TrimSpace(req.Expiry)
	if req.Index == "" {
		req.Index = strings.ToUpper(dash.Index)
	}
	if req.Expiry == "" {
		req.Expiry = dash.Expiry
	}
	if req.Source == "" {
		req.Source = dash.Source
	}
	if req.Truncate == "" {
		req.Truncate = dash.Truncate
	}
	if !c.QueryParams().Has("baseline") {
		req.Baseline = dash.Baseline
	}

	if err := defaults.Set(req); err != nil {
		return nil, fieldErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return nil, fieldErrors(err)
	}
	expiry, err := security.ValidateExpiry(req.Expiry)
	if err != nil {
		return nil, []FieldError{{Code: "ERR_EXPIRY", Field: "expiry", Message: err.Error()}}
	}
	req.Expiry = expiry
	return req, nil
}

// toDashboard converts the bound request. An empty date means the latest
// trading day at now.
func (r *SeriesRequest) toDashboard(now time.Time, owner string) (dashboard.Request, error) {
	var date time.Time
	if r.Date == "" {
		date = utils.LatestTradingDay(now)
	} else {
		session, err := greeks.ParseSessionDate(r.Date)
		if err != nil {
			return dashboard.Request{}, err
		}
		date = session.Date
	}
	trunc, err := greeks.ParseTruncation(r.Truncate)
	if err != nil {
		return dashboard.Request{}, err
	}
	return dashboard.Request{
		Query: models.SeriesQuery{
			Date:   date,
			Index:  models.Index(r.Index),
			Expiry: r.Expiry,
			Source: models.Source(r.Source),
		},
		Baseline:   r.Baseline,
		Truncation: trunc,
		Owner:      owner,
	}, nil
}

func (r *SeriesRequest) exportOptions() export.Options {
	order := export.Descending
	if r.Order == string(export.Ascending) {
		order = export.Ascending
	}
	return export.Options{Order: order, Precision: r.Precision, IncludeEmpty: r.IncludeEmpty}
}

// ownerOf derives a stable, non-reversible partition key from the caller's token.
func ownerOf(c echo.Context) string {
	token := api.TokenFromContext(c.Request().Context())
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			out = append(out, FieldError{
				Code:    "ERR_" + strings.ToUpper(e.Tag()),
				Field:   strings.ToLower(e.Field()),
				Message: fieldMessage(e),
				Params:  fieldParams(e),
			})
		}
		return out
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []FieldError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []FieldError{{Code: "ERR_INVALID", Message: err.Error()}}
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD form", field)
	case "max":
		if fe.Type().Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func fieldParams(fe validator.FieldError) map[string]interface{} {
	params := make(map[string]interface{})
	switch fe.Tag() {
	case "gte":
		params["min"] = fe.Param()
	case "max", "lte":
		params["max"] = fe.Param()
	case "oneof":
		params["options"] = strings.Split(fe.Param(), " ")
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
