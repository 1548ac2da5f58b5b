package handler

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosight/visittrack/internal/enricher"
	"github.com/gosight/visittrack/internal/producer"
)

const maxBodyBytes = 1 << 20

// Publisher forwards accepted beacons downstream.
type Publisher interface {
	Publish(ctx context.Context, topic, visitUID string, message any) error
}

// CredentialValidator checks partner credentials and request rates.
type CredentialValidator interface {
	ValidateAccessToken(ctx context.Context, token, pixelID string) error
	CheckRateLimit(ctx context.Context, pixelID string) bool
}

type HTTPHandler struct {
	publisher Publisher
	validator CredentialValidator
	enricher  *enricher.Enricher
}

func NewHTTPHandler(p Publisher, v CredentialValidator, e *enricher.Enricher) *HTTPHandler {
	return &HTTPHandler{
		publisher: p,
		validator: v,
		enricher:  e,
	}
}

type InitTrackingRequest struct {
	VisitUID    string  `json:"visitUid"`
	SessionID   string  `json:"sessionId"`
	PageID      *string `json:"page_id"`
	Timestamp   int64   `json:"timestamp"`
	AccessToken *string `json:"access_token"`
	PixelID     *string `json:"pixel_id"`
}

type TrackingRequest struct {
	TrackingData map[string]interface{}   `json:"trackingData"`
	Events       []map[string]interface{} `json:"events"`
	AccessToken  string                   `json:"access_token"`
	PixelID      string                   `json:"pixel_id"`
}

// InitMessage is what the init topic carries.
type InitMessage struct {
	MessageID       string `json:"message_id"`
	VisitUID        string `json:"visit_uid"`
	SessionID       string `json:"session_id"`
	PixelID         string `json:"pixel_id"`
	ClientTimestamp int64  `json:"client_timestamp"`
	ServerTimestamp int64  `json:"server_timestamp"`
	ClientIP        string `json:"client_ip,omitempty"`
	enricher.Enrichment
}

// TrackingMessage is what the tracking topic carries.
type TrackingMessage struct {
	MessageID       string                   `json:"message_id"`
	VisitUID        string                   `json:"visit_uid"`
	SessionID       string                   `json:"session_id"`
	PixelID         string                   `json:"pixel_id"`
	TrackingData    map[string]interface{}   `json:"tracking_data"`
	Events          []map[string]interface{} `json:"events"`
	ServerTimestamp int64                    `json:"server_timestamp"`
	ClientIP        string                   `json:"client_ip,omitempty"`
	enricher.Enrichment
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *HTTPHandler) HandleInitTracking(w http.ResponseWriter, r *http.Request) {
	var req InitTrackingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.VisitUID == "" || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "visitUid and sessionId are required"})
		return
	}

	pixelID := deref(req.PixelID)
	if !h.authorize(w, r, deref(req.AccessToken), pixelID) {
		return
	}

	ip := clientIP(r)
	msg := InitMessage{
		MessageID:       uuid.New().String(),
		VisitUID:        req.VisitUID,
		SessionID:       req.SessionID,
		PixelID:         pixelID,
		ClientTimestamp: req.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
		ClientIP:        ip,
		Enrichment:      h.enricher.Enrich(r.UserAgent(), ip),
	}

	if err := h.publisher.Publish(r.Context(), producer.TopicInit, req.VisitUID, msg); err != nil {
		log.Error().Err(err).Str("visit_uid", req.VisitUID).Msg("Failed to publish init beacon")
		writeJSON(w, http.StatusInternalServerError, Response{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Init tracking received"})
}

func (h *HTTPHandler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	var req TrackingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	visitUID, _ := req.TrackingData["visitUid"].(string)
	sessionID, _ := req.TrackingData["sessionId"].(string)
	if visitUID == "" || sessionID == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "trackingData.visitUid and trackingData.sessionId are required"})
		return
	}

	if !h.authorize(w, r, req.AccessToken, req.PixelID) {
		return
	}

	// Prefer the user agent the page reported over the one on the request.
	userAgent, _ := req.TrackingData["userAgent"].(string)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	// Likewise the public IP the page resolved, when it has one.
	ip, _ := req.TrackingData["ipAddress"].(string)
	if ip == "" {
		ip = clientIP(r)
	}

	events := req.Events
	if events == nil {
		events = []map[string]interface{}{}
	}

	msg := TrackingMessage{
		MessageID:       uuid.New().String(),
		VisitUID:        visitUID,
		SessionID:       sessionID,
		PixelID:         req.PixelID,
		TrackingData:    req.TrackingData,
		Events:          events,
		ServerTimestamp: time.Now().UnixMilli(),
		ClientIP:        ip,
		Enrichment:      h.enricher.Enrich(userAgent, ip),
	}

	if err := h.publisher.Publish(r.Context(), producer.TopicTracking, visitUID, msg); err != nil {
		log.Error().Err(err).Str("visit_uid", visitUID).Msg("Failed to publish tracking data")
		writeJSON(w, http.StatusInternalServerError, Response{Message: err.Error()})
		return
	}

	log.Debug().Str("visit_uid", visitUID).Int("events", len(events)).Msg("Tracking data accepted")
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Tracking data received"})
}

func (h *HTTPHandler) authorize(w http.ResponseWriter, r *http.Request, token, pixelID string) bool {
	if err := h.validator.ValidateAccessToken(r.Context(), token, pixelID); err != nil {
		writeJSON(w, http.StatusUnauthorized, Response{Message: "Invalid access token"})
		return false
	}
	if !h.validator.CheckRateLimit(r.Context(), pixelID) {
		writeJSON(w, http.StatusTooManyRequests, Response{Message: "Rate limit exceeded"})
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
