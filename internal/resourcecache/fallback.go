package resourcecache

import (
	"encoding/json"
	"net/http"

	"github.com/jonesrussell/north-cloud/resource-cache/internal/storage"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">` +
	`<rect width="400" height="300" fill="#e5e7eb"/>` +
	`<text x="200" y="150" text-anchor="middle" dominant-baseline="middle" ` +
	`font-family="sans-serif" font-size="18" fill="#6b7280">Image not available</text>` +
	`</svg>`

// OfflineMessage is the human-readable part of the offline response.
const OfflineMessage = "You are offline and no cached response is available"

// OfflineBody is the JSON body of the synthetic offline response.
type OfflineBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// placeholderImage is served for images that cannot be fetched. It is never stored.
func placeholderImage() *storage.Response {
	return &storage.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{"image/svg+xml"},
			"Cache-Control": []string{"no-cache"},
		},
		Body: []byte(placeholderSVG),
	}
}

func offlineResponse() *storage.Response {
	body, _ := json.Marshal(OfflineBody{Error: "offline", Message: OfflineMessage})
	return &storage.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header: http.Header{
			"Content-Type":  []string{"application/json"},
			"Cache-Control": []string{"no-store"},
		},
		Body: body,
	}
}
