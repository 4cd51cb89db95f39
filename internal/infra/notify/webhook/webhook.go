// Package webhook delivers mined-block notifications to a configured HTTP
// endpoint, using the retrying HTTP client so transient delivery failures
// are absorbed.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gabapcia/supplyledger/internal/ledger"
	"github.com/gabapcia/supplyledger/internal/pipeline"

	"github.com/hashicorp/go-retryablehttp"
)

type notifier struct {
	endpoint string
	client   *retryablehttp.Client
}

// Compile-time assertion to ensure notifier implements MinedBlockNotifier.
var _ pipeline.MinedBlockNotifier = (*notifier)(nil)

// New creates a webhook notifier that POSTs each mined block as JSON to the
// given endpoint using the provided retrying HTTP client.
func New(endpoint string, client *retryablehttp.Client) *notifier {
	return &notifier{
		endpoint: endpoint,
		client:   client,
	}
}

// NotifyBlockMined posts the mined block to the configured endpoint. Any
// response outside the 2xx range is reported as an error.
func (n *notifier) NotifyBlockMined(ctx context.Context, block ledger.Block) error {
	body, err := json.Marshal(block)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
