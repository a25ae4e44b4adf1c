// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package opennaas implements the HTTP/XML client toward the OpenNaaS
// controller. The client enumerates the ROADM inventory (resources, endpoints,
// labels, cross-connects) and drives cross-connect creation, removal and queue
// execution on the devices.
package opennaas

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"

	"github.com/ironcore-dev/opennaas-am/internal/metrics"
	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

// Resource identifies one device managed by OpenNaaS.
type Resource struct {
	Type string
	Name string
}

// XConnection is the wire representation of a ROADM cross-connect.
type XConnection struct {
	XMLName     xml.Name `xml:"xConnection"`
	InstanceID  string   `xml:"instanceID"`
	SrcEndpoint string   `xml:"srcEndPointId"`
	SrcLabel    string   `xml:"srcLabelId"`
	DstEndpoint string   `xml:"dstEndPointId"`
	DstLabel    string   `xml:"dstLabelId"`
}

// Client is the operation surface of the OpenNaaS controller.
type Client interface {
	// ResourceTypes lists the resource types known to the controller.
	ResourceTypes(ctx context.Context) ([]string, error)
	// ResourceNames lists the device names of one resource type.
	ResourceNames(ctx context.Context, rtype string) ([]string, error)
	// Resources composes ResourceTypes and ResourceNames into the full
	// (type, name) inventory.
	Resources(ctx context.Context) ([]Resource, error)
	// Endpoints lists the endpoint ids of a device.
	Endpoints(ctx context.Context, rtype, name string) ([]string, error)
	// Labels lists the label ids available on one endpoint of a device.
	Labels(ctx context.Context, rtype, name, endpoint string) ([]string, error)
	// XConnections lists the cross-connect instance ids active on a device.
	XConnections(ctx context.Context, rtype, name string) ([]string, error)
	// XConnection fetches one cross-connect. A malformed response is logged
	// and yields (nil, nil).
	XConnection(ctx context.Context, rtype, name, id string) (*XConnection, error)
	// CreateXConnection posts a cross-connect and verifies that the instance
	// id assigned by the controller matches the one sent.
	CreateXConnection(ctx context.Context, rtype, name string, xc XConnection) error
	// DeleteXConnection removes a cross-connect.
	DeleteXConnection(ctx context.Context, rtype, name, id string) error
	// ExecuteQueue drains the pending action queue of a device. Any ERROR
	// status in the response fails the call with the offending action id.
	ExecuteQueue(ctx context.Context, rtype, name string) error
}

type client struct {
	base     string
	user     string
	password string
	http     *retryablehttp.Client
	breaker  *gobreaker.CircuitBreaker
	logger   logr.Logger
}

var _ Client = (*client)(nil)

// Option configures the client.
type Option func(*client)

// WithLogger replaces the default logger.
func WithLogger(logger logr.Logger) Option {
	return func(c *client) { c.logger = logger }
}

// WithTimeout bounds every upstream request. The default is 15 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *client) { c.http.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http.HTTPClient = hc }
}

// New creates a Client toward the controller at host:port using basic-auth
// credentials. Requests retry transparently on transient transport failures;
// a circuit breaker makes a dead upstream fail fast instead of holding the
// caller for the full timeout on every tick.
func New(host string, port int, user, password string, opts ...Option) Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil

	c := &client{
		base:     fmt.Sprintf("http://%s:%d/opennaas/", host, port),
		user:     user,
		password: password,
		http:     rc,
		logger:   logr.FromSlogHandler(slog.Default().Handler()),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "opennaas",
		Timeout: 30 * time.Second,
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	start := time.Now()
	res, err := c.breaker.Execute(func() (any, error) {
		var rawBody io.Reader
		if body != nil {
			rawBody = bytes.NewReader(body)
		}
		req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, rawBody)
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.user, c.password)
		req.Header.Set("Accept", "application/xml")
		if body != nil {
			req.Header.Set("Content-Type", "application/xml")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return data, nil
	})
	metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(op, "error").Inc()
		return nil, onserr.Wrapf(err, "%s %s%s failed", method, c.base, path)
	}
	metrics.UpstreamRequests.WithLabelValues(op, "success").Inc()
	return res.([]byte), nil
}

// decodeEntries parses a list response of <entry> elements. Parse errors are
// logged and downgraded to an empty list.
func (c *client) decodeEntries(op string, data []byte) []string {
	var list struct {
		Entries []string `xml:"entry"`
	}
	if err := xml.Unmarshal(data, &list); err != nil {
		c.logger.Info("discarding malformed list response", "operation", op, "error", err.Error())
		return nil
	}
	return list.Entries
}

func (c *client) ResourceTypes(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, "resourceTypes", http.MethodGet, "resources/getResourceTypes", nil)
	if err != nil {
		return nil, err
	}
	return c.decodeEntries("resourceTypes", data), nil
}

func (c *client) ResourceNames(ctx context.Context, rtype string) ([]string, error) {
	data, err := c.do(ctx, "resourceNames", http.MethodGet, "resources/listResourcesByType/"+rtype, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeEntries("resourceNames", data), nil
}

func (c *client) Resources(ctx context.Context) ([]Resource, error) {
	types, err := c.ResourceTypes(ctx)
	if err != nil {
		return nil, err
	}
	var resources []Resource
	for _, rtype := range types {
		names, err := c.ResourceNames(ctx, rtype)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			resources = append(resources, Resource{Type: rtype, Name: name})
		}
	}
	return resources, nil
}

func (c *client) Endpoints(ctx context.Context, rtype, name string) ([]string, error) {
	data, err := c.do(ctx, "endpoints", http.MethodGet, rtype+"/"+name+"/xconnect/getEndPoints", nil)
	if err != nil {
		return nil, err
	}
	return c.decodeEntries("endpoints", data), nil
}

func (c *client) Labels(ctx context.Context, rtype, name, endpoint string) ([]string, error) {
	data, err := c.do(ctx, "labels", http.MethodGet, rtype+"/"+name+"/xconnect/getLabels/"+endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeEntries("labels", data), nil
}

func (c *client) XConnections(ctx context.Context, rtype, name string) ([]string, error) {
	data, err := c.do(ctx, "xconnections", http.MethodGet, rtype+"/"+name+"/xconnect/", nil)
	if err != nil {
		return nil, err
	}
	return c.decodeEntries("xconnections", data), nil
}

func (c *client) XConnection(ctx context.Context, rtype, name, id string) (*XConnection, error) {
	data, err := c.do(ctx, "xconnection", http.MethodGet, rtype+"/"+name+"/xconnect/"+id, nil)
	if err != nil {
		return nil, err
	}
	xc := new(XConnection)
	if err := xml.Unmarshal(data, xc); err != nil {
		c.logger.Info("discarding malformed cross-connect response", "id", id, "error", err.Error())
		return nil, nil
	}
	return xc, nil
}

func (c *client) CreateXConnection(ctx context.Context, rtype, name string, xc XConnection) error {
	body, err := xml.Marshal(xc)
	if err != nil {
		return onserr.Wrap(err, "failed to encode cross-connect")
	}
	data, err := c.do(ctx, "createXConnection", http.MethodPost, rtype+"/"+name+"/xconnect/", body)
	if err != nil {
		return err
	}
	assigned := strings.TrimSpace(string(data))
	if assigned != xc.InstanceID {
		return onserr.Errorf("controller assigned cross-connect id %q, want %q", assigned, xc.InstanceID)
	}
	return nil
}

func (c *client) DeleteXConnection(ctx context.Context, rtype, name, id string) error {
	_, err := c.do(ctx, "deleteXConnection", http.MethodDelete, rtype+"/"+name+"/xconnect/"+id, nil)
	return err
}

func (c *client) ExecuteQueue(ctx context.Context, rtype, name string) error {
	data, err := c.do(ctx, "executeQueue", http.MethodPost, rtype+"/"+name+"/queue/execute", nil)
	if err != nil {
		return err
	}
	return checkQueueResponse(data)
}

// checkQueueResponse scans a queue/execute response for failed actions. Each
// action reports inside its own <responses> element.
func checkQueueResponse(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return onserr.Wrap(err, "failed to decode queue response")
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "responses" {
			continue
		}
		var action struct {
			Status   string `xml:"status"`
			ActionID string `xml:"actionID"`
		}
		if err := dec.DecodeElement(&action, &start); err != nil {
			return onserr.Wrap(err, "failed to decode queue response")
		}
		if action.Status == "ERROR" {
			return onserr.Errorf("queue execution failed (actionID=%s)", action.ActionID)
		}
	}
}
