package client

import "net/http"

// HTTPClient exposes the underlying client to tests.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
