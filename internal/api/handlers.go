package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wellness-aggregator/internal/aggregator"
	"github.com/JakeFAU/wellness-aggregator/internal/feed"
)

const (
	maxCoachBodyBytes = 64 << 10
	timestampLayout   = "2006-01-02T15:04:05.000Z07:00"
)

type eventView struct {
	Title       string        `json:"title"`
	Date        string        `json:"date"`
	Venue       string        `json:"venue"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url"`
	Source      feed.SourceID `json:"source"`
	Category    feed.Category `json:"category"`
	Lat         *float64      `json:"lat,omitempty"`
	Lng         *float64      `json:"lng,omitempty"`
}

type eventsResponse struct {
	Success   bool            `json:"success"`
	City      string          `json:"city"`
	Count     int             `json:"count"`
	Events    []eventView     `json:"events"`
	Timestamp string          `json:"timestamp"`
	Sources   []feed.SourceID `json:"sources"`
}

type placeView struct {
	Name     string        `json:"name"`
	Address  string        `json:"address"`
	URL      string        `json:"url"`
	Source   feed.SourceID `json:"source"`
	Category feed.Category `json:"category"`
	Lat      *float64      `json:"lat,omitempty"`
	Lng      *float64      `json:"lng,omitempty"`
}

type placesResponse struct {
	Success   bool          `json:"success"`
	City      string        `json:"city"`
	Locality  string        `json:"locality"`
	Category  feed.Category `json:"category"`
	Count     int           `json:"count"`
	Places    []placeView   `json:"places"`
	Timestamp string        `json:"timestamp"`
}

type coachRequest struct {
	Question json.RawMessage `json:"question"`
}

type coachResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// getEvents handles GET /events?city=. Upstream failures never surface;
// the response is always 200 unless city is missing.
func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	city, err := requiredParam(r.URL.Query(), "city")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.agg.Aggregate(r.Context(), feed.Query{City: city}, s.events)

	events := make([]eventView, 0, len(res.Records))
	for _, rec := range res.Records {
		events = append(events, eventView{
			Title:       rec.Title,
			Date:        rec.When,
			Venue:       rec.Location,
			Description: rec.Description,
			URL:         rec.URL,
			Source:      rec.Source,
			Category:    rec.Category,
			Lat:         rec.Lat,
			Lng:         rec.Lng,
		})
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Success:   true,
		City:      city,
		Count:     len(events),
		Events:    events,
		Timestamp: formatTimestamp(res),
		Sources:   nonNilSources(res.Sources),
	})
}

// getPlaces handles GET /places?city=&locality=&category=.
func (s *Server) getPlaces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city, err := requiredParam(q, "city")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	locality, err := requiredParam(q, "locality")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rawCategory, err := requiredParam(q, "category")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	category, ok := feed.ParsePlaceCategory(rawCategory)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"invalid category %q: must be one of %s", rawCategory, placeCategoryList()))
		return
	}

	res := s.agg.Aggregate(r.Context(), feed.Query{City: city, Locality: locality, Category: category}, s.places)

	places := make([]placeView, 0, len(res.Records))
	for _, rec := range res.Records {
		places = append(places, placeView{
			Name:     rec.Title,
			Address:  rec.Location,
			URL:      rec.URL,
			Source:   rec.Source,
			Category: rec.Category,
			Lat:      rec.Lat,
			Lng:      rec.Lng,
		})
	}
	writeJSON(w, http.StatusOK, placesResponse{
		Success:   true,
		City:      city,
		Locality:  locality,
		Category:  category,
		Count:     len(places),
		Places:    places,
		Timestamp: formatTimestamp(res),
	})
}

// postCoach handles POST /coach {"question": "..."}. A missing credential is
// the only upstream condition reported as an error.
func (s *Server) postCoach(w http.ResponseWriter, r *http.Request) {
	var req coachRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCoachBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Question) == 0 || string(req.Question) == "null" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	var question string
	if err := json.Unmarshal(req.Question, &question); err != nil {
		writeError(w, http.StatusBadRequest, "question must be a string")
		return
	}
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.coachBudget)
	defer cancel()
	ans, err := s.coach.Answer(ctx, question)
	if errors.Is(err, feed.ErrMissingCredential) {
		s.logger.Error("coach credential not configured", zap.String("request_id", RequestID(r.Context())))
		writeError(w, http.StatusInternalServerError, "AI coach is not configured")
		return
	}
	if err != nil {
		s.logger.Error("coach failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeInternalError(w, "coach failed")
		return
	}
	writeJSON(w, http.StatusOK, coachResponse{Success: true, Text: ans.Text})
}

// requiredParam returns the single trimmed value of key. Absent or blank
// values are missing; repeated keys are the wrong type.
func requiredParam(q url.Values, key string) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	if len(values) > 1 {
		return "", fmt.Errorf("%s parameter must be a single string", key)
	}
	v := strings.TrimSpace(values[0])
	if v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	return v, nil
}

func placeCategoryList() string {
	names := make([]string, 0, len(feed.PlaceCategories))
	for _, c := range feed.PlaceCategories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func formatTimestamp(res aggregator.Result) string {
	ts := res.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(timestampLayout)
}

func nonNilSources(ids []feed.SourceID) []feed.SourceID {
	if ids == nil {
		return []feed.SourceID{}
	}
	return ids
}
