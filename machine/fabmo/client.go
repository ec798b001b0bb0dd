// Package fabmo talks to a FabMo engine over its HTTP API.
package fabmo

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

	"go.uber.org/zap"

	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/atc"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/machine"
	"github.com/JoshAyersSBT/Fabmo-Desktop-ATC-APP/opensbp"
)

// Default timings for RunSBP.
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultStartGrace   = 2 * time.Second
)

// Config configures a Client.
type Config struct {
	// URL is the engine base URL, e.g. http://fabmo.local.
	URL string

	// PersistURL receives the ATC document. Defaults to URL + "/config/opensbp.json".
	PersistURL string

	// PollInterval is how often status is polled while a program runs.
	PollInterval time.Duration

	// StartGrace is how long to wait for a submitted program to leave idle
	// before treating it as already complete.
	StartGrace time.Duration

	Client *http.Client
	Logger *zap.Logger
}

// Client is a machine.Adapter and atc.Store backed by a FabMo engine.
type Client struct {
	cfg     Config
	base    *url.URL
	persist string
	log     *zap.Logger
}

var (
	_ machine.Adapter = &Client{}
	_ atc.Store       = &Client{}
)

// ErrStopped is returned by RunSBP when the engine ends up stopped or dead
// instead of finishing the program.
var ErrStopped = errors.New("engine stopped")

func terminal(st machine.State) bool {
	return strings.EqualFold(st.Status, "stopped") || strings.EqualFold(st.Status, "dead")
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("engine url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("engine url: unsupported scheme %q", base.Scheme)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StartGrace <= 0 {
		cfg.StartGrace = DefaultStartGrace
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	c := &Client{
		cfg:     cfg,
		base:    base,
		persist: cfg.PersistURL,
		log:     cfg.Logger,
	}
	if c.persist == "" {
		c.persist = c.endpoint("config", "opensbp.json")
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Join(parts, "/")
	return u.String()
}

// envelope is the engine's response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message json.RawMessage `json:"message"`
}

func (e envelope) err() error {
	if e.Status == "success" {
		return nil
	}
	msg := e.Message
	if len(msg) == 0 {
		msg = e.Data
	}
	var s string
	if json.Unmarshal(msg, &s) != nil {
		s = string(msg)
	}
	return fmt.Errorf("engine %s: %s", e.Status, s)
}

func (c *Client) do(ctx context.Context, method, u string, body interface{}) ([]byte, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, u, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// call performs a request and unwraps the engine envelope into out, if set.
func (c *Client) call(ctx context.Context, method, u string, body, out interface{}) error {
	data, err := c.do(ctx, method, u, body)
	if err != nil {
		return err
	}

	var env envelope
	err = json.Unmarshal(data, &env)
	if err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, u, err)
	}
	if err = env.err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return errors.New("engine response has no data")
	}
	return json.Unmarshal(env.Data, out)
}

type codeRequest struct {
	Cmd  string `json:"cmd"`
	Code string `json:"code"`
}

// RunSBP submits code and waits for the engine to finish running it.
func (c *Client) RunSBP(ctx context.Context, code string) error {
	err := c.call(ctx, "POST", c.endpoint("code"), codeRequest{Cmd: "sbp", Code: code}, nil)
	if err != nil {
		return fmt.Errorf("submit program: %w", err)
	}
	c.log.Debug("program submitted", zap.String("code", code))
	return c.waitIdle(ctx)
}

func (c *Client) waitIdle(ctx context.Context) error {
	t := time.NewTicker(c.cfg.PollInterval)
	defer t.Stop()

	grace := time.Now().Add(c.cfg.StartGrace)
	var started bool
	for {
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		switch {
		case terminal(st):
			return fmt.Errorf("%w: %s", ErrStopped, st.Status)
		case !st.Idle():
			started = true
		case started, time.Now().After(grace):
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Status returns the engine status.
func (c *Client) Status(ctx context.Context) (machine.State, error) {
	var data struct {
		Status status `json:"status"`
	}
	err := c.call(ctx, "GET", c.endpoint("status"), nil, &data)
	if err != nil {
		return machine.State{}, fmt.Errorf("status: %w", err)
	}
	return data.Status.state(), nil
}

// Config reads the engine configuration.
func (c *Client) Config(ctx context.Context) (*opensbp.Config, error) {
	var data struct {
		Config json.RawMessage `json:"config"`
	}
	err := c.call(ctx, "GET", c.endpoint("config"), nil, &data)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if len(data.Config) == 0 {
		return nil, errors.New("config: engine returned no configuration")
	}
	return opensbp.Decode(bytes.NewReader(data.Config))
}

// Save replaces the stored ATC document.
func (c *Client) Save(ctx context.Context, doc atc.Document) error {
	_, err := c.do(ctx, "PUT", c.persist, doc)
	if err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}
