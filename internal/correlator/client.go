package correlator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production weight service
	DefaultBaseURL = "https://sfm-ver-two.on-forge.com/api"
	// DefaultTimeout bounds every remote call
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// SamplingRecord is a sampling session as listed under a cage
type SamplingRecord struct {
	ID  int64  `json:"id"`
	Doc string `json:"doc"`
}

// Cage is the subset of the cage listing the correlator needs
type Cage struct {
	ID        int64            `json:"id"`
	Samplings []SamplingRecord `json:"samplings"`
}

// WeightRequest is the body of POST /weight. Height is the fish length.
type WeightRequest struct {
	SamplingID int64   `json:"sampling_id"`
	Doc        string  `json:"doc"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// WeightResult is the computed weight plus the sampling statistics the
// service returns with it
type WeightResult struct {
	WeightG          float64 `json:"weight"`
	SampleNo         string  `json:"sample_no"`
	ABW              float64 `json:"abw"`
	TotalWeight      float64 `json:"total_weight"`
	RemainingSamples int     `json:"remaining_samples"`
}

// SampleProgress describes the next unfilled sample of a sampling session
type SampleProgress struct {
	SamplingID int64   `json:"sampling_id"`
	SampleID   int64   `json:"sample_id"`
	SampleNo   string  `json:"sample_no"`
	Filled     int     `json:"filled"`
	Remaining  int     `json:"remaining"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	Investor   string  `json:"investor"`
	Date       string  `json:"date"`
	Doc        string  `json:"doc"`
}

// Client talks to the weight-estimation service. The API key travels in
// the "key" query parameter of every call.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient returns a client with a per-call timeout. A non-positive
// timeout selects DefaultTimeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope is the service's response wrapper
type envelope struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) hasData() bool {
	return len(e.Data) > 0 && string(e.Data) != "null"
}

// explanation flattens message and validation errors into one line
func (e envelope) explanation() string {
	parts := []string{}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if len(e.Errors) > 0 && string(e.Errors) != "null" {
		var fields map[string][]string
		if err := json.Unmarshal(e.Errors, &fields); err == nil {
			for _, k := range slices.Sorted(maps.Keys(fields)) {
				parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(fields[k], ", ")))
			}
		} else {
			parts = append(parts, string(e.Errors))
		}
	}
	return strings.Join(parts, "; ")
}

// FetchCages lists every cage with its sampling sessions. Any failure,
// including a non-2xx status, is reported as ErrRemoteUnavailable.
func (c *Client) FetchCages(ctx context.Context) ([]Cage, error) {
	status, env, err := c.do(ctx, http.MethodGet, "/cages", nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: cages returned HTTP %d %s", ErrRemoteUnavailable, status, env.explanation())
	}
	if !env.hasData() {
		return nil, fmt.Errorf("%w: cages response has no data", ErrRemoteUnavailable)
	}
	var cages []Cage
	if err := json.Unmarshal(env.Data, &cages); err != nil {
		return nil, fmt.Errorf("%w: decode cages: %v", ErrRemoteUnavailable, err)
	}
	return cages, nil
}

// ComputeWeight asks the service to convert dimensions into a weight
func (c *Client) ComputeWeight(ctx context.Context, req WeightRequest) (WeightResult, error) {
	status, env, err := c.do(ctx, http.MethodPost, "/weight", req)
	if err != nil {
		return WeightResult{}, err
	}
	if err := classify(status, env); err != nil {
		return WeightResult{}, err
	}

	var data struct {
		Weight           *float64   `json:"weight"`
		SampleNo         flexString `json:"sample_no"`
		ABW              float64    `json:"abw"`
		TotalWeight      float64    `json:"total_weight"`
		RemainingSamples int        `json:"remaining_samples"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return WeightResult{}, fmt.Errorf("%w: decode weight: %v", ErrRemoteUnavailable, err)
	}
	if data.Weight == nil {
		return WeightResult{}, &RejectedError{Status: status, Message: nonEmpty(env.explanation(), "response carries no weight")}
	}
	return WeightResult{
		WeightG:          *data.Weight,
		SampleNo:         string(data.SampleNo),
		ABW:              data.ABW,
		TotalWeight:      data.TotalWeight,
		RemainingSamples: data.RemainingSamples,
	}, nil
}

// NextSample reports which sample of a session should be measured next
func (c *Client) NextSample(ctx context.Context, samplingID int64) (SampleProgress, error) {
	body := map[string]int64{"sampling_id": samplingID}
	status, env, err := c.do(ctx, http.MethodPost, "/sampling/calculate", body)
	if err != nil {
		return SampleProgress{}, err
	}
	if err := classify(status, env); err != nil {
		return SampleProgress{}, err
	}

	var data struct {
		SamplingID    int64 `json:"sampling_id"`
		CurrentSample struct {
			ID       int64      `json:"id"`
			SampleNo flexString `json:"sample_no"`
		} `json:"current_sample"`
		Progress struct {
			Filled     int     `json:"filled"`
			Remaining  int     `json:"remaining"`
			Total      int     `json:"total"`
			Percentage float64 `json:"percentage"`
		} `json:"progress"`
		SamplingInfo struct {
			Investor flexString `json:"investor"`
			Date     flexString `json:"date"`
			Doc      flexString `json:"doc"`
		} `json:"sampling_info"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return SampleProgress{}, fmt.Errorf("%w: decode sampling progress: %v", ErrRemoteUnavailable, err)
	}
	return SampleProgress{
		SamplingID: data.SamplingID,
		SampleID:   data.CurrentSample.ID,
		SampleNo:   string(data.CurrentSample.SampleNo),
		Filled:     data.Progress.Filled,
		Remaining:  data.Progress.Remaining,
		Total:      data.Progress.Total,
		Percentage: data.Progress.Percentage,
		Investor:   string(data.SamplingInfo.Investor),
		Date:       string(data.SamplingInfo.Date),
		Doc:        string(data.SamplingInfo.Doc),
	}, nil
}

// classify maps a decoded response onto the error taxonomy. A nil return
// means a 2xx response with data present.
func classify(status int, env envelope) error {
	switch {
	case status >= 500:
		return fmt.Errorf("%w: HTTP %d %s", ErrRemoteUnavailable, status, env.explanation())
	case status >= 400:
		msg := env.explanation()
		if msg == "" {
			return fmt.Errorf("%w: HTTP %d without explanation", ErrRemoteUnavailable, status)
		}
		return &RejectedError{Status: status, Message: msg}
	case status < 200 || status > 299:
		return fmt.Errorf("%w: unexpected HTTP %d", ErrRemoteUnavailable, status)
	case !env.hasData():
		return &RejectedError{Status: status, Message: nonEmpty(env.explanation(), "response carries no data")}
	}
	return nil
}

// do performs one call and decodes the envelope. Transport failures,
// timeouts and undecodable bodies come back as ErrRemoteUnavailable.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, envelope, error) {
	var env envelope

	target := c.baseURL + path + "?" + url.Values{"key": {c.apiKey}}.Encode()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, env, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, env, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, env, fmt.Errorf("%w: %s %s: %v", ErrRemoteUnavailable, method, path, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, env, fmt.Errorf("%w: read %s response: %v", ErrRemoteUnavailable, path, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, env, fmt.Errorf("%w: %s returned undecodable body (HTTP %d)", ErrRemoteUnavailable, path, resp.StatusCode)
	}
	return resp.StatusCode, env, nil
}

// redact keeps the API key out of logged URL errors
func redact(err error, key string) string {
	msg := err.Error()
	var uerr *url.Error
	if key != "" && errors.As(err, &uerr) {
		msg = strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
	}
	return msg
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// flexString accepts a JSON string or number; the service is not
// consistent about which it sends for sample numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
