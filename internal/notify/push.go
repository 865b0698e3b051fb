package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PushRoute posts events to an external push provider (FCM-style HTTP
// endpoint). It is a secondary delivery route behind the websocket
// registry for recipients without a live socket.
type PushRoute struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushRoute(endpoint, key string) *PushRoute {
	return &PushRoute{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushRoute) Publish(ctx context.Context, to Recipient, event string, payload any) error {
	if p.Endpoint == "" {
		return fmt.Errorf("push route not configured")
	}
	body := map[string]any{
		"recipients": to.Aliases,
		"event":      event,
		"payload":    payload,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push provider status %d", resp.StatusCode)
	}
	return nil
}
