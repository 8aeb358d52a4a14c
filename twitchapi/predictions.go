package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// PredictionOutcome is one choice viewers can back with channel points.
type PredictionOutcome struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Users         int    `json:"users"`
	ChannelPoints int    `json:"channel_points"`
	Color         string `json:"color"`
}

// Prediction is a channel points prediction as Helix returns it. Status is
// one of ACTIVE, LOCKED, RESOLVED, CANCELED.
type Prediction struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Status           string              `json:"status"`
	WinningOutcomeID string              `json:"winning_outcome_id"`
	Outcomes         []PredictionOutcome `json:"outcomes"`
	PredictionWindow int                 `json:"prediction_window"`
	CreatedAt        string              `json:"created_at"`
	EndedAt          string              `json:"ended_at"`
	LockedAt         string              `json:"locked_at"`
}

type predictionList struct {
	Data []Prediction `json:"data"`
}

// CreatePrediction opens a prediction on the channel. Helix requires
// between 2 and 10 outcomes and a window of 30s to 30m.
func (mc *ModClient) CreatePrediction(ctx context.Context, channel, title string, outcomes []string, windowSeconds int) (*Prediction, error) {
	if len(outcomes) < 2 {
		return nil, fmt.Errorf("prediction needs at least two outcomes")
	}
	broadcasterID, err := mc.Helix.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	type outcomeTitle struct {
		Title string `json:"title"`
	}
	payload := struct {
		BroadcasterID    string         `json:"broadcaster_id"`
		Title            string         `json:"title"`
		Outcomes         []outcomeTitle `json:"outcomes"`
		PredictionWindow int            `json:"prediction_window"`
	}{BroadcasterID: broadcasterID, Title: title, PredictionWindow: windowSeconds}
	for _, o := range outcomes {
		payload.Outcomes = append(payload.Outcomes, outcomeTitle{Title: o})
	}
	b, err := mc.do(ctx, http.MethodPost, "/helix/predictions", nil, payload)
	if err != nil {
		return nil, err
	}
	var body predictionList
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("prediction create returned no data")
	}
	return &body.Data[0], nil
}

// LatestPrediction returns the most recent prediction on the channel, or
// nil when the channel has never run one.
func (mc *ModClient) LatestPrediction(ctx context.Context, channel string) (*Prediction, error) {
	broadcasterID, err := mc.Helix.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("broadcaster_id", broadcasterID)
	q.Set("first", "1")
	b, err := mc.do(ctx, http.MethodGet, "/helix/predictions", q, nil)
	if err != nil {
		return nil, err
	}
	var body predictionList
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, nil
	}
	return &body.Data[0], nil
}

// EndPrediction transitions a prediction to RESOLVED (with the winning
// outcome), CANCELED (refunds points), or LOCKED (stops new entries).
func (mc *ModClient) EndPrediction(ctx context.Context, channel, predictionID, status, winningOutcomeID string) (*Prediction, error) {
	switch status {
	case "RESOLVED", "CANCELED", "LOCKED":
	default:
		return nil, fmt.Errorf("invalid prediction status %q", status)
	}
	if status == "RESOLVED" && winningOutcomeID == "" {
		return nil, fmt.Errorf("resolving a prediction requires a winning outcome id")
	}
	broadcasterID, err := mc.Helix.GetUserID(ctx, channel)
	if err != nil {
		return nil, err
	}
	payload := map[string]string{
		"broadcaster_id": broadcasterID,
		"id":             predictionID,
		"status":         status,
	}
	if winningOutcomeID != "" {
		payload["winning_outcome_id"] = winningOutcomeID
	}
	b, err := mc.do(ctx, http.MethodPatch, "/helix/predictions", nil, payload)
	if err != nil {
		return nil, err
	}
	var body predictionList
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, err
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("prediction end returned no data")
	}
	return &body.Data[0], nil
}
