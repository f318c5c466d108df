package health

import (
	"context"
	"fmt"
	"net/http"
)

type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c *checkFunc) Name() string                    { return c.name }
func (c *checkFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewCheckFunc adapts a function to HealthCheck.
func NewCheckFunc(name string, fn func(ctx context.Context) error) HealthCheck {
	return &checkFunc{name: name, fn: fn}
}

// HTTPCheck reports an error unless GET url answers below 500.
func HTTPCheck(name, url string, client *http.Client) HealthCheck {
	if client == nil {
		client = http.DefaultClient
	}
	return NewCheckFunc(name, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request %s: %w", url, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("request %s: status %d", url, resp.StatusCode)
		}
		return nil
	})
}
