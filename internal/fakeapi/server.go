package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yatrik/scheduler/core/model"
)

// Server serves a Store over the backend's HTTP API.
type Server struct {
	Store    *Store
	Email    string
	Password string
	// Role is returned for the logged in user; defaults to admin.
	Role string
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration
	// OmitPagination drops the pagination object from list responses.
	OmitPagination bool
	// OmitTotal drops the total from the pagination object.
	OmitTotal bool
	// ReportedTotal, when set, overrides the total in list responses.
	ReportedTotal func(resource string, actual int) int

	mu       sync.Mutex
	tokens   map[string]bool
	issued   int
	failures map[string][]int
	calls    map[string]int
	mux      *http.ServeMux
}

// NewServer returns a server accepting the given admin credentials.
func NewServer(store *Store, email, password string) *Server {
	s := &Server{
		Store:    store,
		Email:    email,
		Password: password,
		Role:     "admin",
		TokenTTL: time.Hour,
		tokens:   map[string]bool{},
		failures: map[string][]int{},
		calls:    map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", s.login)
	mux.HandleFunc("/api/admin/depots", s.list("depots"))
	mux.HandleFunc("/api/admin/routes", s.list("routes"))
	mux.HandleFunc("/api/admin/buses", s.list("buses"))
	mux.HandleFunc("/api/admin/drivers", s.list("drivers"))
	mux.HandleFunc("/api/admin/conductors", s.list("conductors"))
	mux.HandleFunc("/api/admin/trips", s.createTrip)
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.URL.Path]++
	s.mu.Unlock()
	s.mux.ServeHTTP(w, r)
}

// FailNext makes the next requests to path answer with the given statuses,
// one status per request.
func (s *Server) FailNext(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], statuses...)
}

// RevokeTokens invalidates every issued token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = map[string]bool{}
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *Server) injected(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.failures[path]
	if len(q) == 0 {
		return 0
	}
	s.failures[path] = q[1:]
	return q[0]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if st := s.injected(r.URL.Path); st != 0 {
		fail(w, st, "injected failure")
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "bad request")
		return
	}
	if req.Email != s.Email || req.Password != s.Password {
		fail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.mu.Lock()
	s.issued++
	claims := jwt.MapClaims{
		"sub": req.Email,
		"jti": strconv.Itoa(s.issued),
		"exp": time.Now().Add(s.TokenTTL).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("fakeapi"))
	if err == nil {
		s.tokens[tok] = true
	}
	s.mu.Unlock()
	if err != nil {
		fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   tok,
		"user":    map[string]any{"email": req.Email, "role": s.Role},
	})
}

func (s *Server) authorized(r *http.Request) bool {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[tok]
}

func (s *Server) list(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			fail(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if !s.authorized(r) {
			fail(w, http.StatusUnauthorized, "token expired")
			return
		}
		if st := s.injected(r.URL.Path); st != 0 {
			fail(w, st, "injected failure")
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 10
		}
		items := s.items(resource, r.URL.Query().Get("depotId"))
		total := len(items)
		from := (page - 1) * limit
		to := from + limit
		if from > total {
			from = total
		}
		if to > total {
			to = total
		}
		data := map[string]any{resource: items[from:to]}
		if !s.OmitPagination {
			reported := total
			if s.ReportedTotal != nil {
				reported = s.ReportedTotal(resource, total)
			}
			pages := (total + limit - 1) / limit
			pg := map[string]int{"page": page, "limit": limit, "total": reported, "pages": pages}
			if s.OmitTotal {
				delete(pg, "total")
			}
			data["pagination"] = pg
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
	}
}

type wireRef struct {
	ID   string `json:"_id"`
	Name string `json:"depotName,omitempty"`
}

type wirePoint struct {
	City        string             `json:"city"`
	Coordinates map[string]float64 `json:"coordinates"`
}

func point(e model.Endpoint) wirePoint {
	return wirePoint{City: e.City, Coordinates: map[string]float64{"lat": e.Lat, "lng": e.Lng}}
}

type wireDepot struct {
	ID       string            `json:"_id"`
	Code     string            `json:"depotCode"`
	Name     string            `json:"depotName"`
	Location map[string]string `json:"location"`
	Capacity map[string]int    `json:"capacity"`
	Status   string            `json:"status"`
}

type wireRoute struct {
	ID                string    `json:"_id"`
	Number            string    `json:"routeNumber"`
	Name              string    `json:"routeName"`
	DepotID           string    `json:"depotId"`
	From              wirePoint `json:"from"`
	To                wirePoint `json:"to"`
	EstimatedDuration int       `json:"estimatedDuration"`
	BaseFare          float64   `json:"baseFare"`
	ExpectedDemand    int       `json:"expectedDemand"`
	Status            string    `json:"status"`
}

type wireBus struct {
	ID       string         `json:"_id"`
	Number   string         `json:"busNumber"`
	Depot    wireRef        `json:"depotId"`
	Capacity map[string]int `json:"capacity"`
	Status   string         `json:"status"`
}

type wireStaff struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	DepotID string `json:"depotId"`
	Status  string `json:"status"`
}

// items renders the stored resources in wire form. Bus depots are sent as
// populated documents, every other reference as a plain id.
func (s *Server) items(resource, depotID string) []any {
	st := s.Store
	st.mu.Lock()
	defer st.mu.Unlock()
	out := []any{}
	switch resource {
	case "depots":
		for _, d := range st.depots {
			out = append(out, wireDepot{
				ID:       d.ID,
				Code:     d.Code,
				Name:     d.Name,
				Location: map[string]string{"city": d.City},
				Capacity: map[string]int{"total": d.Capacity.Total, "available": d.Capacity.Available, "maintenance": d.Capacity.Maintenance},
				Status:   d.Status,
			})
		}
	case "routes":
		for _, rt := range st.routes {
			out = append(out, wireRoute{
				ID:                rt.ID,
				Number:            rt.Number,
				Name:              rt.Name,
				DepotID:           rt.DepotID,
				From:              point(rt.From),
				To:                point(rt.To),
				EstimatedDuration: rt.EstimatedDuration,
				BaseFare:          rt.BaseFare,
				ExpectedDemand:    rt.ExpectedDemand,
				Status:            rt.Status,
			})
		}
	case "buses":
		for _, b := range st.buses {
			out = append(out, wireBus{
				ID:       b.ID,
				Number:   b.Number,
				Depot:    wireRef{ID: b.DepotID, Name: "populated"},
				Capacity: map[string]int{"total": b.Capacity},
				Status:   b.Status,
			})
		}
	case "drivers", "conductors":
		list := st.drivers
		if resource == "conductors" {
			list = st.conductors
		}
		for _, m := range list {
			if depotID != "" && m.DepotID != depotID {
				continue
			}
			out = append(out, wireStaff{ID: m.ID, Name: m.Name, DepotID: m.DepotID, Status: m.Status})
		}
	}
	return out
}

func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		fail(w, http.StatusUnauthorized, "token expired")
		return
	}
	if st := s.injected(r.URL.Path); st != 0 {
		fail(w, st, fmt.Sprintf("injected failure %d", st))
		return
	}
	var body struct {
		RouteID     string  `json:"routeId"`
		BusID       string  `json:"busId"`
		DriverID    string  `json:"driverId"`
		ConductorID string  `json:"conductorId"`
		DepotID     string  `json:"depotId"`
		ServiceDate string  `json:"serviceDate"`
		StartTime   string  `json:"startTime"`
		EndTime     string  `json:"endTime"`
		ArrivalDate string  `json:"arrivalDate"`
		Fare        float64 `json:"fare"`
		Capacity    int     `json:"capacity"`
		Status      string  `json:"status"`
		Notes       string  `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.RouteID == "" || body.ServiceDate == "" || body.StartTime == "" {
		fail(w, http.StatusBadRequest, "routeId, serviceDate and startTime are required")
		return
	}
	trip, err := s.Store.CreateTrip(r.Context(), model.Trip{
		RouteID: body.RouteID, BusID: body.BusID, DriverID: body.DriverID, ConductorID: body.ConductorID,
		DepotID: body.DepotID, ServiceDate: body.ServiceDate, StartTime: body.StartTime, EndTime: body.EndTime,
		ArrivalDate: body.ArrivalDate, Fare: body.Fare, Capacity: body.Capacity, Status: body.Status, Notes: body.Notes,
	})
	if err != nil {
		fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    map[string]any{"trip": map[string]any{"_id": trip.ID, "routeId": trip.RouteID, "startTime": trip.StartTime}},
	})
}
