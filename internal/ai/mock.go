package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// MockProvider returns deterministic, realistic replies without network
// access. It recognises the caller by keywords in the system prompt.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

var candidateIDPattern = regexp.MustCompile(`ID: ([^,\s]+)`)

func (MockProvider) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case strings.Contains(req.SystemPrompt, "geocoding"):
		return mockDestination(req.UserMessage), nil
	case strings.Contains(req.SystemPrompt, "dispatch"):
		return mockDispatch(req.UserMessage), nil
	default:
		return `{"message":"Mock response"}`, nil
	}
}

type mockPlace struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Address    string  `json:"address"`
	Confidence float64 `json:"confidence"`
}

func mockDestination(msg string) string {
	dest := strings.ToLower(msg)
	// Only the destination line matters; pickup context must not steer the match.
	if line, _, ok := strings.Cut(dest, "\n"); ok {
		dest = line
	}

	var p mockPlace
	switch {
	case strings.Contains(dest, "airport"):
		p = mockPlace{40.6413, -73.7781, "John F. Kennedy International Airport, Queens, NY 11430", 0.95}
	case strings.Contains(dest, "central park"):
		p = mockPlace{40.7829, -73.9654, "Central Park, New York, NY 10024", 0.97}
	case strings.Contains(dest, "downtown"), strings.Contains(dest, "center"):
		p = mockPlace{40.7128, -74.006, "Downtown Manhattan, New York, NY 10007", 0.88}
	case strings.Contains(dest, "nowhere"), strings.Contains(dest, "asdf"):
		p = mockPlace{0, 0, "", 0}
	default:
		h := fnv.New32a()
		_, _ = h.Write([]byte(dest))
		sum := h.Sum32()
		p = mockPlace{
			Lat:        40.748 + float64(sum%200)/10000,
			Lng:        -73.985 + float64((sum/200)%200)/10000,
			Address:    fmt.Sprintf("%d Broadway, New York, NY", sum%500),
			Confidence: 0.82,
		}
	}
	b, _ := json.Marshal(p)
	return string(b)
}

func mockDispatch(msg string) string {
	m := candidateIDPattern.FindStringSubmatch(msg)
	if m == nil {
		return `{"selectedDriverId":"unknown","reasoning":"No drivers found in context."}`
	}
	b, _ := json.Marshal(map[string]string{
		"selectedDriverId": m[1],
		"reasoning":        "Selected the closest available driver with the best balance of proximity and rating.",
	})
	return string(b)
}
