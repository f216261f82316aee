package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPRulesEngine reaches the geometry rules engine over its JSON RPC
// surface: one POST per operation, rows back as JSON.
type HTTPRulesEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRulesEngine builds an engine client for the given base URL.
func NewHTTPRulesEngine(baseURL string, timeout time.Duration) *HTTPRulesEngine {
	if timeout <= 0 {
		timeout = defaultRulesTimeout
	}
	return &HTTPRulesEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type updatePositionRequest struct {
	GameID      string   `json:"game_id"`
	PlayerID    string   `json:"player_id"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	ShieldedIDs []string `json:"shielded_ids"`
}

type severTrailRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

// UpdatePosition runs the position-update rule evaluation and returns the
// raw event rows it produced.
func (e *HTTPRulesEngine) UpdatePosition(ctx context.Context, gameID, playerID string, lat, lng float64, shieldedIDs []string) ([]RawEvent, error) {
	if shieldedIDs == nil {
		shieldedIDs = []string{}
	}
	req := updatePositionRequest{GameID: gameID, PlayerID: playerID, Lat: lat, Lng: lng, ShieldedIDs: shieldedIDs}
	var events []RawEvent
	if err := e.post(ctx, "/rpc/update_player_position", req, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// ApplySever applies a detected sever to the victim's trail.
func (e *HTTPRulesEngine) ApplySever(ctx context.Context, gameID, victimID string) error {
	req := severTrailRequest{GameID: gameID, PlayerID: victimID}
	return e.post(ctx, "/rpc/sever_trail", req, nil)
}

func (e *HTTPRulesEngine) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("call %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
