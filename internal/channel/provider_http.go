package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// GatewayProvider sends through a JSON messaging gateway (sms, whatsapp
// and email all ride the same wire shape at the gateway). Transient
// provider errors are retried briefly in place; 4xx rejections are
// surfaced immediately as TransportError.
type GatewayProvider struct {
	Channel  string
	Endpoint string
	Client   *http.Client
}

func (p *GatewayProvider) Name() string { return p.Channel }

type gatewayRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type gatewayResponse struct {
	MessageID string `json:"message_id"`
}

func (p *GatewayProvider) Send(ctx context.Context, msg Message) (Receipt, error) {
	payload, err := json.Marshal(gatewayRequest{
		From:    msg.SenderIdentity,
		To:      msg.Recipient,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	op := backoff.NewExponentialBackOff()
	op.MaxElapsedTime = 5 * time.Second

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.Endpoint+"/v1/messages", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+msg.SenderIdentity)

		client := p.Client
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}

		resp, err := client.Do(req)
		if err != nil {
			return &TransportError{StatusCode: http.StatusBadGateway, Message: err.Error()}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &TransportError{StatusCode: resp.StatusCode, Message: readBody(resp.Body)}
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(&TransportError{StatusCode: resp.StatusCode, Message: readBody(resp.Body)})
		}

		var out gatewayResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode gateway response: %w", err))
		}
		receipt = Receipt{ProviderID: out.MessageID}
		return nil
	}

	if err := backoff.Retry(attempt, backoff.WithContext(op, ctx)); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func readBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no response body"
	}
	return string(b)
}
