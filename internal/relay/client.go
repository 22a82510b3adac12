package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// JoinResponse is the room server's answer to a join request.
type JoinResponse struct {
	ClientID    string   `json:"clientId"`
	IsInitiator bool     `json:"isInitiator"`
	Messages    []string `json:"messages"`
	WSS         string   `json:"wss"`
	WSSTLS      bool     `json:"wssTLS"`
}

// Join asks the room server at serverURL for a place in roomID.
func Join(ctx context.Context, client *http.Client, serverURL, roomID string) (JoinResponse, error) {
	target := strings.TrimSuffix(serverURL, "/") + "/join/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return JoinResponse{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return JoinResponse{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return JoinResponse{}, fmt.Errorf("join room %s: %w", roomID, ErrRoomFull)
	}
	if resp.StatusCode != http.StatusOK {
		return JoinResponse{}, fmt.Errorf("join room %s: %s", roomID, resp.Status)
	}

	var jr JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return JoinResponse{}, fmt.Errorf("decode join response: %w", err)
	}
	return jr, nil
}
