package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds the remote write HTTP request.
const DefaultTimeout = 30 * time.Second

// PushConfig configures a push Client.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint
	// (e.g. "http://localhost:8428"). The write path is appended.
	URL string
	// Prefix is prepended to every metric name with an underscore.
	Prefix string
	// Job is the job label for all samples.
	Job string
	// Instance is the instance label for all samples.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Client remote-writes metric batches to VictoriaMetrics/Prometheus.
type Client struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
}

// NewClient creates a push client for the given endpoint.
func NewClient(cfg PushConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:        cfg.URL + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
	}
}

// Push sends all metrics in a single remote write request.
func (c *Client) Push(ctx context.Context, batch []Metric) error {
	if len(batch) == 0 {
		return nil
	}

	timeseries := make([]prompb.TimeSeries, 0, len(batch))
	for _, m := range batch {
		timeseries = append(timeseries, c.metricToTimeSeries(m))
	}

	req := &prompb.WriteRequest{Timeseries: timeseries}
	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// metricToTimeSeries converts a Metric to Prometheus TimeSeries format.
func (c *Client) metricToTimeSeries(m Metric) prompb.TimeSeries {
	labels := make([]prompb.Label, 0, len(m.Labels)+3)

	name := m.Name
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})

	if c.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: c.job})
	}
	if c.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: c.instance})
	}
	for k, v := range m.Labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}

	timestamp := m.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: m.Value, Timestamp: timestamp.UnixMilli()}},
	}
}
