// Package api is the client of the YATRIK CRUD backend. It logs in as an
// administrator, lists depots, routes, buses and crew page by page and
// creates trips.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yatrik/scheduler/core/logger"
	"github.com/yatrik/scheduler/core/model"
	"github.com/yatrik/scheduler/core/scheduler"
)

// Client talks to the CRUD backend. It implements scheduler.ResourceSource
// and scheduler.TripCreator.
type Client struct {
	cfg     Config
	http    *http.Client
	log     logger.Logger
	session *Session
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock overrides the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.session.now = now
		}
	}
}

// NewClient validates cfg and returns a client. No request is made until
// the first call.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout()},
		log:  logger.NopLogger{},
	}
	c.session = &Session{c: c, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Session returns the token holder of the client.
func (c *Client) Session() *Session { return c.session }

// Login authenticates eagerly so that bad credentials fail before any work.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.session.GetToken(ctx)
	return err
}

func (c *Client) url(path string, q url.Values) string {
	u := c.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// call performs one authenticated request and decodes the envelope data into
// out. A 401 triggers one re-login and an immediate repeat.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}
	refreshed := false
	for {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rd)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if err := c.session.SetAuthHeader(ctx, req); err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			refreshed = true
			c.log.Infof("token rejected on %s %s, logging in again", method, path)
			if _, err := c.session.ForceRefresh(ctx); err != nil {
				return err
			}
			continue
		}
		var env envelope
		decodeErr := json.Unmarshal(raw, &env)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := env.Message
			if msg == "" {
				msg = strings.TrimSpace(string(raw))
			}
			return &statusError{Status: resp.StatusCode, Msg: msg}
		}
		if decodeErr != nil {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
		if !env.Success {
			return &statusError{Status: resp.StatusCode, Msg: "success=false: " + env.Message}
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
		return nil
	}
}

// FetchResources loads every resource needed by a run. Depots, routes and
// buses are listed in full; drivers and conductors are listed per requested
// depot, or in full when depotIDs is empty.
func (c *Client) FetchResources(ctx context.Context, depotIDs []string) (scheduler.Resources, error) {
	if err := c.Login(ctx); err != nil {
		return scheduler.Resources{}, err
	}
	var (
		res              scheduler.Resources
		depots           []depotDTO
		routes           []routeDTO
		buses            []busDTO
		drivers, conduct []staffDTO
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	g.Go(func() (err error) {
		depots, err = collect(Pages[depotDTO](gctx, c, "depots", nil))
		return err
	})
	g.Go(func() (err error) {
		routes, err = collect(Pages[routeDTO](gctx, c, "routes", nil))
		return err
	})
	g.Go(func() (err error) {
		buses, err = collect(Pages[busDTO](gctx, c, "buses", nil))
		return err
	})
	g.Go(func() (err error) {
		drivers, err = c.staff(gctx, "drivers", depotIDs)
		return err
	})
	g.Go(func() (err error) {
		conduct, err = c.staff(gctx, "conductors", depotIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return scheduler.Resources{}, err
	}

	for _, d := range depots {
		res.Depots = append(res.Depots, d.model())
	}
	for _, r := range routes {
		res.Routes = append(res.Routes, r.model())
	}
	for _, b := range buses {
		res.Buses = append(res.Buses, b.model())
	}
	for _, s := range drivers {
		res.Drivers = append(res.Drivers, s.model(model.KindDriver))
	}
	for _, s := range conduct {
		res.Conductors = append(res.Conductors, s.model(model.KindConductor))
	}
	c.log.Infow("resources fetched", map[string]any{
		"depots":     len(res.Depots),
		"routes":     len(res.Routes),
		"buses":      len(res.Buses),
		"drivers":    len(res.Drivers),
		"conductors": len(res.Conductors),
	})
	return res, nil
}

func (c *Client) staff(ctx context.Context, resource string, depotIDs []string) ([]staffDTO, error) {
	if len(depotIDs) == 0 {
		return collect(Pages[staffDTO](ctx, c, resource, nil))
	}
	seen := map[string]bool{}
	var out []staffDTO
	for _, id := range depotIDs {
		list, err := collect(Pages[staffDTO](ctx, c, resource, url.Values{"depotId": {id}}))
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			if seen[s.id()] {
				continue
			}
			seen[s.id()] = true
			if s.DepotID == "" {
				s.DepotID = ref(id)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// CreateTrip posts trip and returns it with the id assigned by the backend.
// Failures are returned as *scheduler.WriteError.
func (c *Client) CreateTrip(ctx context.Context, trip model.Trip) (model.Trip, error) {
	created, err := withRetry(ctx, c, "create trip", func() (createdTrip, error) {
		var out createdTrip
		err := c.call(ctx, http.MethodPost, "/api/admin/trips", nil, newTripBody(trip), &out)
		return out, err
	})
	if err != nil {
		return trip, toWriteError(err)
	}
	trip.ID = created.tripID()
	return trip, nil
}

func toWriteError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &scheduler.WriteError{Status: se.Status, Msg: se.Msg}
	}
	return &scheduler.WriteError{Msg: err.Error(), Err: err}
}
