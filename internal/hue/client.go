package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client talks to one paired bridge over the v1 API.
type Client struct {
	address    string
	token      string
	bridge     *huego.Bridge
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// NewClient creates a new Hue client for a paired bridge
func NewClient(address, token string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 10.0
	}
	address = normalizeAddress(address)

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		address:    address,
		token:      token,
		bridge:     huego.New(address, token),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Address returns the bridge address
func (c *Client) Address() string {
	return c.address
}

// Close closes the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// begin waits for the rate limiter and bounds the call with the client timeout.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	return callCtx, cancel, nil
}

// Lights returns all lights known to the bridge, ordered by ordinal.
func (c *Client) Lights(ctx context.Context) ([]Light, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.bridge.GetLightsContext(callCtx)
	if err != nil {
		return nil, fmt.Errorf("get lights from %s: %w", c.address, err)
	}

	lights := make([]Light, 0, len(raw))
	for _, l := range raw {
		lights = append(lights, convertLight(l))
	}
	sortByOrdinal(lights, func(l Light) string { return l.ID })

	return lights, nil
}

// Sensors returns all sensors that carry a unique id, ordered by ordinal.
// Virtual sensors without one (daylight, CLIP flags) cannot be tracked
// across restarts and are skipped.
func (c *Client) Sensors(ctx context.Context) ([]Sensor, error) {
	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	raw, err := c.bridge.GetSensorsContext(callCtx)
	if err != nil {
		return nil, fmt.Errorf("get sensors from %s: %w", c.address, err)
	}

	sensors := make([]Sensor, 0, len(raw))
	for _, s := range raw {
		if s.UniqueID == "" {
			continue
		}
		sensors = append(sensors, convertSensor(s))
	}
	sortByOrdinal(sensors, func(s Sensor) string { return s.ID })

	return sensors, nil
}

// SetLightState applies a partial state to one light, e.g. {"on": true}.
// Only the given attributes are sent.
func (c *Client) SetLightState(ctx context.Context, lightID string, attrs map[string]any) error {
	bodyBytes, err := json.Marshal(attrs)
	if err != nil {
		return err
	}

	callCtx, cancel, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	resp, err := c.v1Request(callCtx, http.MethodPut, fmt.Sprintf("lights/%s/state", lightID), bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("set light %s state: %w", lightID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("set light %s state: read response: %w", lightID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to set light %s state: status %d: %s", lightID, resp.StatusCode, string(body))
	}

	var results []v1Result
	if err := json.Unmarshal(body, &results); err != nil {
		return fmt.Errorf("set light %s state: decode response: %w", lightID, err)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("set light %s state: %w", lightID, r.Error)
		}
	}

	log.Debug().
		Str("light", lightID).
		Interface("state", attrs).
		Msg("Light state applied")

	return nil
}

func (c *Client) v1URL(path string) string {
	return fmt.Sprintf("http://%s/api/%s/%s", c.address, c.token, path)
}

func (c *Client) v1Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.v1URL(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

func convertLight(l huego.Light) Light {
	out := Light{
		ID:       strconv.Itoa(l.ID),
		UniqueID: l.UniqueID,
		Name:     l.Name,
		Type:     l.Type,
		ModelID:  l.ModelID,
	}
	if l.State != nil {
		out.State = LightState{
			On:        l.State.On,
			Hue:       int(l.State.Hue),
			Sat:       int(l.State.Sat),
			Bri:       int(l.State.Bri),
			CT:        int(l.State.Ct),
			Reachable: l.State.Reachable,
		}
	}
	return out
}

func convertSensor(s huego.Sensor) Sensor {
	state := make(map[string]any, len(s.State))
	for k, v := range s.State {
		state[k] = v
	}
	return Sensor{
		ID:       strconv.Itoa(s.ID),
		UniqueID: s.UniqueID,
		Name:     s.Name,
		Type:     s.Type,
		ModelID:  s.ModelID,
		State:    state,
	}
}

// sortByOrdinal sorts numerically by bridge ordinal, falling back to string order.
func sortByOrdinal[T any](items []T, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := strconv.Atoi(id(items[i]))
		b, errB := strconv.Atoi(id(items[j]))
		if errA == nil && errB == nil {
			return a < b
		}
		return id(items[i]) < id(items[j])
	})
}
