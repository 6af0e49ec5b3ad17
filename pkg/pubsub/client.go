package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielortiz-dev/vendique-backend/pkg/config"
	"github.com/danielortiz-dev/vendique-backend/pkg/logger"
)

// Client wraps the Pub/Sub v2 client around the inventory event topic. The
// topic must already exist; it is verified at startup and on every Ping, and
// the client never creates infrastructure itself.
type Client struct {
	client    *pubsub.Client
	projectID string
	topic     string
}

var (
	errProjectRequired = errors.New("gcp project id is required")
	errTopicRequired   = errors.New("pubsub inventory topic is required")
)

// NewClient dials Pub/Sub and verifies the configured inventory topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectRequired
	}
	topic := strings.TrimSpace(cfg.InventoryTopic)
	if topic == "" {
		return nil, errTopicRequired
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, topic: topic}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client ready")
	}
	return c, nil
}

// Ping checks the inventory topic is still reachable. The v2 API surfaces
// failures as gRPC status codes, with NotFound meaning the topic is gone.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}

	name := qualifyTopic(c.projectID, c.topic)
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", c.topic)
	default:
		return fmt.Errorf("checking topic %q: %w", c.topic, err)
	}
}

// Publisher returns a publish handle for name, which may be a bare topic ID
// or a full resource name. Empty names yield nil.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := qualifyTopic(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Close releases the underlying client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// qualifyTopic expands a bare topic ID into projects/<id>/topics/<name>;
// already-qualified names pass through untouched.
func qualifyTopic(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, name)
}
