package nominatimhttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"context"

	"github.com/BeanBarn/BrewTrack/internal/integrations/geocoder"
	"github.com/BeanBarn/BrewTrack/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL string
	email   string
	httpc   *http.Client
}

func New(baseURL, email string) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Client{
		baseURL: baseURL,
		email:   email,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type nominatimHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *Client) Resolve(ctx context.Context, address string) (models.Coordinate, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return models.Coordinate{}, errors.Wrap(err, "parse base url")
	}
	u.Path = "/search"

	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.email != "" {
		q.Set("email", c.email)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.Coordinate{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", "BrewTrack/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.Coordinate{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return models.Coordinate{}, fmt.Errorf("nominatim http %d", resp.StatusCode)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return models.Coordinate{}, errors.Wrap(err, "decode")
	}
	if len(hits) == 0 {
		return models.Coordinate{}, geocoder.ErrNoResults
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return models.Coordinate{}, errors.Wrap(err, "parse lat")
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return models.Coordinate{}, errors.Wrap(err, "parse lon")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return models.Coordinate{}, fmt.Errorf("nominatim coordinate out of range: %f,%f", lat, lng)
	}

	return models.Coordinate{Lat: lat, Lng: lng}, nil
}
