package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/auth-core/internal/auth"
)

// ErrUnavailable wraps transport failures and non-2xx answers from a collaborator.
var ErrUnavailable = errors.New("integration unavailable")

// serviceClient performs JSON calls against a peer service using the fiber client.
type serviceClient struct {
	baseURL      string
	serviceToken string
	timeout      time.Duration
}

func newServiceClient(baseURL, serviceToken string, timeout time.Duration) serviceClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return serviceClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		timeout:      timeout,
	}
}

func (c serviceClient) call(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	agent.Timeout(c.timeout)
	if c.serviceToken != "" {
		agent.Set(auth.ServiceTokenHeader, c.serviceToken)
	}
	if body != nil {
		agent.JSON(body)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}

	code, respBody, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, code)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
