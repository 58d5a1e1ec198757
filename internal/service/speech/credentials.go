package speech

import (
	"errors"
	"net/http"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/model/speech"
)

var ErrNotConfigured = errors.New("speech credentials missing: set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")

func authHeader(cfg speech.Config, resourceID, connectID string) (http.Header, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return nil, ErrNotConfigured
	}

	h := http.Header{}
	h.Set("X-Api-App-Key", appID)
	h.Set("X-Api-Access-Key", token)
	h.Set("X-Api-Resource-Id", resourceID)
	h.Set("X-Api-Connect-Id", connectID)
	return h, nil
}
