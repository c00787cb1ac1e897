package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/yatrik/scheduler/core/model"
)

// ref is a reference id sent either as a plain string or as a populated
// document carrying an _id field.
type ref string

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*r = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*r = ref(s)
		return nil
	case b[0] == '{':
		var doc struct {
			ID    string `json:"_id"`
			AltID string `json:"id"`
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		if doc.ID == "" {
			doc.ID = doc.AltID
		}
		*r = ref(doc.ID)
		return nil
	default:
		return fmt.Errorf("unsupported reference %s", b)
	}
}

// identity accepts both _id and id.
type identity struct {
	ID    string `json:"_id"`
	AltID string `json:"id"`
}

func (i identity) id() string {
	if i.ID != "" {
		return i.ID
	}
	return i.AltID
}

type depotDTO struct {
	identity
	Code     string `json:"depotCode"`
	Name     string `json:"depotName"`
	Location struct {
		City string `json:"city"`
	} `json:"location"`
	Capacity struct {
		Total       int `json:"total"`
		Available   int `json:"available"`
		Maintenance int `json:"maintenance"`
	} `json:"capacity"`
	Status string `json:"status"`
}

func (d depotDTO) model() model.Depot {
	return model.Depot{
		ID:   d.id(),
		Code: d.Code,
		Name: d.Name,
		City: d.Location.City,
		Capacity: model.DepotCapacity{
			Total:       d.Capacity.Total,
			Available:   d.Capacity.Available,
			Maintenance: d.Capacity.Maintenance,
		},
		Status: d.Status,
	}
}

type endpointDTO struct {
	City        string `json:"city"`
	Coordinates struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"coordinates"`
}

func (e endpointDTO) model() model.Endpoint {
	return model.Endpoint{City: e.City, Lat: e.Coordinates.Lat, Lng: e.Coordinates.Lng}
}

type routeDTO struct {
	identity
	Number            string      `json:"routeNumber"`
	Name              string      `json:"routeName"`
	DepotID           ref         `json:"depotId"`
	From              endpointDTO `json:"from"`
	To                endpointDTO `json:"to"`
	EstimatedDuration int         `json:"estimatedDuration"`
	BaseFare          float64     `json:"baseFare"`
	ExpectedDemand    int         `json:"expectedDemand"`
	Status            string      `json:"status"`
}

func (r routeDTO) model() model.Route {
	return model.Route{
		ID:                r.id(),
		Number:            r.Number,
		Name:              r.Name,
		DepotID:           string(r.DepotID),
		From:              r.From.model(),
		To:                r.To.model(),
		EstimatedDuration: r.EstimatedDuration,
		BaseFare:          r.BaseFare,
		ExpectedDemand:    r.ExpectedDemand,
		Status:            r.Status,
	}
}

type busDTO struct {
	identity
	Number   string `json:"busNumber"`
	DepotID  ref    `json:"depotId"`
	Capacity struct {
		Total int `json:"total"`
	} `json:"capacity"`
	Status string `json:"status"`
}

func (b busDTO) model() model.Bus {
	return model.Bus{ID: b.id(), Number: b.Number, DepotID: string(b.DepotID), Capacity: b.Capacity.Total, Status: b.Status}
}

type staffDTO struct {
	identity
	Name    string `json:"name"`
	DepotID ref    `json:"depotId"`
	Status  string `json:"status"`
}

func (s staffDTO) model(kind model.ResourceKind) model.Staff {
	return model.Staff{ID: s.id(), Name: s.Name, DepotID: string(s.DepotID), Status: s.Status, Kind: kind}
}

// tripBody is the create trip request body.
type tripBody struct {
	RouteID     string  `json:"routeId"`
	BusID       string  `json:"busId,omitempty"`
	DriverID    string  `json:"driverId,omitempty"`
	ConductorID string  `json:"conductorId,omitempty"`
	DepotID     string  `json:"depotId"`
	ServiceDate string  `json:"serviceDate"`
	StartTime   string  `json:"startTime"`
	EndTime     string  `json:"endTime"`
	ArrivalDate string  `json:"arrivalDate,omitempty"`
	Fare        float64 `json:"fare"`
	Capacity    int     `json:"capacity"`
	Status      string  `json:"status"`
	Notes       string  `json:"notes,omitempty"`
}

func newTripBody(t model.Trip) tripBody {
	return tripBody{
		RouteID:     t.RouteID,
		BusID:       t.BusID,
		DriverID:    t.DriverID,
		ConductorID: t.ConductorID,
		DepotID:     t.DepotID,
		ServiceDate: t.ServiceDate,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		ArrivalDate: t.ArrivalDate,
		Fare:        t.Fare,
		Capacity:    t.Capacity,
		Status:      t.Status,
		Notes:       t.Notes,
	}
}

// createdTrip accepts both {"trip": {...}} and a bare trip document as the
// data of a create response.
type createdTrip struct {
	identity
	Trip *identity `json:"trip"`
}

func (c createdTrip) tripID() string {
	if c.Trip != nil && c.Trip.id() != "" {
		return c.Trip.id()
	}
	return c.id()
}

// envelope is the common response wrapper of the backend.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type pagination struct {
	Page  int  `json:"page"`
	Limit int  `json:"limit"`
	Total *int `json:"total"`
	Pages int  `json:"pages"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	Data    struct {
		Token string `json:"token"`
		User  struct {
			Role string `json:"role"`
		} `json:"user"`
	} `json:"data"`
	User struct {
		Role string `json:"role"`
	} `json:"user"`
}

func (l loginResponse) token() string {
	if l.Token != "" {
		return l.Token
	}
	return l.Data.Token
}

func (l loginResponse) role() string {
	if l.User.Role != "" {
		return l.User.Role
	}
	return l.Data.User.Role
}
