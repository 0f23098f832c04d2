package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	gzip "github.com/klauspost/pgzip"

	"github.com/routeflow/routeflow/pipeline/types"
	rhttp "github.com/routeflow/routeflow/pkg/http"
	"github.com/routeflow/routeflow/pkg/pool"
)

const (
	CodecJSON = "json"

	CompressionNone = "none"
	CompressionGzip = "gzip"
)

var bufPool = pool.NewBytes(1024)

type HttpSinkConfig struct {
	Name               string
	URI                string
	Codec              string
	Compression        string
	Headers            map[string]string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// HttpSink delivers batches to a remote ingestion endpoint.  Classification
// of the response decides the caller's next move: 2xx acknowledges, other
// 4xx is terminal, everything else is retryable.
type HttpSink struct {
	name    string
	uri     string
	gzip    bool
	headers map[string]string
	client  *http.Client
	timeout time.Duration
}

func NewHttpSink(config HttpSinkConfig) (*HttpSink, error) {
	u, err := url.Parse(config.URI)
	if err != nil {
		return nil, fmt.Errorf("http sink %s: invalid uri: %w", config.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("http sink %s: uri %s must be http or https", config.Name, config.URI)
	}

	switch config.Codec {
	case CodecJSON:
	default:
		return nil, fmt.Errorf("http sink %s: unknown encoding.codec %q", config.Name, config.Codec)
	}

	var useGzip bool
	switch config.Compression {
	case CompressionGzip:
		useGzip = true
	case CompressionNone, "":
	default:
		return nil, fmt.Errorf("http sink %s: unknown compression %q", config.Name, config.Compression)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := rhttp.WithLogging(rhttp.NewClient(rhttp.ClientOpts{
		Timeout:            timeout,
		InsecureSkipVerify: config.InsecureSkipVerify,
		DisableHTTP2:       true,
	}))

	return &HttpSink{
		name:    config.Name,
		uri:     config.URI,
		gzip:    useGzip,
		headers: config.Headers,
		client:  client,
		timeout: timeout,
	}, nil
}

func (s *HttpSink) Open(ctx context.Context) error {
	return nil
}

func (s *HttpSink) Submit(ctx context.Context, batch *types.RecordBatch) types.DeliveryResult {
	buf := bufPool.Get(64 * 1024)
	defer bufPool.Put(buf)
	body := bytes.NewBuffer(buf[:0])

	if err := s.encode(body, batch); err != nil {
		return types.Terminal(fmt.Errorf("encode batch: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.uri, body)
	if err != nil {
		return types.Terminal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if s.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return types.Retryable(fmt.Errorf("send batch: %w", err), 0)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		batch.Ack()
		return types.Acknowledged()

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return types.Retryable(fmt.Errorf("endpoint returned %s", resp.Status), retryAfter(resp))

	default:
		// Remaining 4xx: the payload or credentials are wrong and a retry
		// can never fix them.
		return types.Terminal(fmt.Errorf("endpoint rejected batch: %s", resp.Status))
	}
}

func (s *HttpSink) encode(w io.Writer, batch *types.RecordBatch) error {
	var enc *json.Encoder
	var gw *gzip.Writer
	if s.gzip {
		gw = gzip.NewWriter(w)
		enc = json.NewEncoder(gw)
	} else {
		enc = json.NewEncoder(w)
	}

	for _, r := range batch.Records {
		if err := enc.Encode(r.Fields()); err != nil {
			return err
		}
	}

	if gw != nil {
		return gw.Close()
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func (s *HttpSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HttpSink) Name() string {
	return s.name
}
