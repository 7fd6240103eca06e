package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/skillmesh/trust-engine/internal/events"
	"github.com/skillmesh/trust-engine/pkg/models"
)

// Alert & Webhook System
//
// Structured alert emission for registry operators. Alerts are:
//   1. Broadcast via the WebSocket hub to connected dashboards
//   2. Pushed to registered webhook endpoints (Slack, Discord, SIEM)
//   3. Kept in memory for recent alert history
//
// Watch turns sybil-cluster detections and failed attestations from the
// event bus into alerts; it raises no alerts on score changes. Other alert
// types reach the manager only through direct Emit calls. Webhook payloads use a common
// JSON shape compatible with Slack and Discord incoming webhooks.

// Alert is a structured operator notification
type Alert struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Severity    string      `json:"severity"`  // info/low/medium/high/critical
	AlertType   string      `json:"alertType"` // sybil_cluster/attestation_failed/score_collapse
	Title       string      `json:"title"`
	Description string      `json:"description"`
	AgentID     string      `json:"agentId,omitempty"`
	Detail      interface{} `json:"detail,omitempty"`
}

// WebhookEndpoint is a registered webhook receiver
type WebhookEndpoint struct {
	Name        string            `json:"name"`
	URL         string            `json:"url"`
	Enabled     bool              `json:"enabled"`
	Headers     map[string]string `json:"headers,omitempty"`
	MinSeverity string            `json:"minSeverity"`
}

// Manager handles alert emission and webhook delivery
type Manager struct {
	mu           sync.RWMutex
	webhooks     []WebhookEndpoint
	recentAlerts []Alert
	maxHistory   int
	httpClient   *http.Client
	broadcastFn  func(Alert)
}

// NewManager creates the alert system. broadcastFn feeds the WebSocket
// hub and may be nil.
func NewManager(broadcastFn func(Alert)) *Manager {
	return &Manager{
		webhooks:     make([]WebhookEndpoint, 0),
		recentAlerts: make([]Alert, 0),
		maxHistory:   1000,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		broadcastFn:  broadcastFn,
	}
}

// RegisterWebhook adds a webhook endpoint
func (m *Manager) RegisterWebhook(name, url, minSeverity string, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, WebhookEndpoint{
		Name:        name,
		URL:         url,
		Enabled:     true,
		Headers:     headers,
		MinSeverity: minSeverity,
	})
	log.Printf("[AlertManager] Registered webhook: %s → %s (min: %s)", name, url, minSeverity)
}

// RemoveWebhook removes a webhook by name
func (m *Manager) RemoveWebhook(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, wh := range m.webhooks {
		if wh.Name == name {
			m.webhooks = append(m.webhooks[:i], m.webhooks[i+1:]...)
			return
		}
	}
}

// Emit processes and distributes an alert
func (m *Manager) Emit(alert Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	if alert.ID == "" {
		alert.ID = alert.Severity + "-" + alert.AlertType + "-" + alert.AgentID
	}

	m.mu.Lock()
	m.recentAlerts = append(m.recentAlerts, alert)
	if len(m.recentAlerts) > m.maxHistory {
		m.recentAlerts = m.recentAlerts[len(m.recentAlerts)-m.maxHistory:]
	}
	webhooks := make([]WebhookEndpoint, len(m.webhooks))
	copy(webhooks, m.webhooks)
	m.mu.Unlock()

	if m.broadcastFn != nil {
		m.broadcastFn(alert)
	}

	for _, wh := range webhooks {
		if !wh.Enabled || !severityMeetsThreshold(alert.Severity, wh.MinSeverity) {
			continue
		}
		go m.sendWebhook(wh, alert)
	}

	log.Printf("[Alert] [%s] %s: %s (agent: %s)", alert.Severity, alert.AlertType, alert.Title, alert.AgentID)
}

// Recent returns the most recent alerts, newest first
func (m *Manager) Recent(limit int) []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.recentAlerts) {
		limit = len(m.recentAlerts)
	}
	start := len(m.recentAlerts) - limit
	result := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		result[i] = m.recentAlerts[start+limit-1-i]
	}
	return result
}

// Watch converts bus events into operator alerts until ctx is cancelled
func (m *Manager) Watch(ctx context.Context, bus *events.Bus) error {
	sub := bus.Subscribe(events.KindClusterDetected, events.KindAttestationSubmitted)
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			switch evt.Kind {
			case events.KindClusterDetected:
				ids, _ := evt.Payload.([]string)
				m.Emit(Alert{
					Severity:    "high",
					AlertType:   "sybil_cluster",
					Title:       "Sybil cluster detected",
					Description: fmt.Sprintf("Mutual-pair analysis found a collusion ring of %d identifiers", len(ids)),
					AgentID:     evt.AgentID,
					Detail:      ids,
				})
			case events.KindAttestationSubmitted:
				result, ok := evt.Payload.(models.VerificationResult)
				if !ok || result.Valid {
					continue
				}
				m.Emit(Alert{
					Severity:    "medium",
					AlertType:   "attestation_failed",
					Title:       "Attestation verification failed",
					Description: "An attestation for the agent failed signature, platform or freshness checks",
					AgentID:     evt.AgentID,
					Detail:      result,
				})
			}
		}
	}
}

// sendWebhook delivers an alert to a webhook endpoint
func (m *Manager) sendWebhook(wh WebhookEndpoint, alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		log.Printf("[Webhook] Failed to marshal alert: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, wh.URL, bytes.NewBuffer(payload))
	if err != nil {
		log.Printf("[Webhook] Failed to create request for %s: %v", wh.Name, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for key, val := range wh.Headers {
		req.Header.Set(key, val)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Printf("[Webhook] Failed to send to %s: %v", wh.Name, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[Webhook] %s returned status %d", wh.Name, resp.StatusCode)
	}
}

// severityMeetsThreshold checks if a severity meets the minimum
func severityMeetsThreshold(severity, minimum string) bool {
	levels := map[string]int{
		"info": 0, "low": 1, "medium": 2, "high": 3, "critical": 4,
	}
	return levels[severity] >= levels[minimum]
}
