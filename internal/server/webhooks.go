package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"hrline/internal/config"
	"hrline/internal/domain"
	"hrline/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookTimeout      = 5 * time.Second
	webhookBatchSize    = 100
)

// hookWorker streams events from the log to one configured webhook endpoint.
// Each worker keeps its own cursor, so a slow or failing endpoint never holds
// back deliveries to the others.
type hookWorker struct {
	eng    engine.Engine
	hook   config.Webhook
	accept map[string]struct{}
	client *http.Client
	cursor int64
}

func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil {
		return
	}
	for _, hook := range e.Config.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		w := &hookWorker{
			eng:    e,
			hook:   hook,
			accept: acceptSet(hook.Events),
			client: &http.Client{Timeout: webhookTimeout},
		}
		go w.run()
	}
}

func acceptSet(events []string) map[string]struct{} {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	// nil means deliver everything
	if len(set) == 0 {
		return nil
	}
	return set
}

func (w *hookWorker) run() {
	ctx := context.Background()
	if cur, err := w.eng.Repo.LatestEventID(ctx); err == nil {
		w.cursor = cur
	} else {
		log.Printf("webhook %s: init cursor: %v", w.hook.ID, err)
	}
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		w.drain(ctx)
		<-ticker.C
	}
}

func (w *hookWorker) drain(ctx context.Context) {
	for {
		events, err := w.eng.Repo.EventsAfter(ctx, webhookBatchSize, w.cursor)
		if err != nil {
			log.Printf("webhook %s: fetch events: %v", w.hook.ID, err)
			return
		}
		if len(events) == 0 {
			return
		}
		for _, evt := range events {
			if !w.wants(evt.Type) {
				w.cursor = evt.ID
				continue
			}
			if err := w.deliver(ctx, evt); err != nil {
				log.Printf("webhook %s: deliver event %d: %v", w.hook.ID, evt.ID, err)
				return
			}
			w.cursor = evt.ID
		}
		if len(events) < webhookBatchSize {
			return
		}
	}
}

func (w *hookWorker) wants(evtType string) bool {
	if w.accept == nil {
		return true
	}
	_, ok := w.accept[evtType]
	return ok
}

func (w *hookWorker) deliver(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	body, err := json.Marshal(struct {
		ID         int64           `json:"id"`
		Type       string          `json:"type"`
		EntityKind string          `json:"entity_kind"`
		EntityID   string          `json:"entity_id,omitempty"`
		ActorID    string          `json:"actor_id"`
		TS         string          `json:"ts"`
		Payload    json.RawMessage `json:"payload"`
	}{evt.ID, evt.Type, evt.EntityKind, evt.EntityID, evt.ActorID, evt.TS, payload})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hrline-Event", evt.Type)
	req.Header.Set("X-Hrline-Delivery", fmt.Sprintf("%d", evt.ID))
	if secret := strings.TrimSpace(w.hook.Secret); secret != "" {
		req.Header.Set("X-Hrline-Signature", signBody(secret, body))
	}
	res, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// signBody returns hex(HMAC-SHA256(secret, body)) so receivers can verify
// both origin and integrity without the secret ever crossing the wire.
func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
