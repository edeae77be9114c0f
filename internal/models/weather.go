package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// CacheInfoKey is the payload field that carries retrieval metadata.
const CacheInfoKey = "_cache_info"

// WeatherPayload is the provider's JSON object, kept opaque. Numbers are
// decoded as json.Number so they re-encode exactly as received.
type WeatherPayload map[string]any

// DecodePayload parses raw provider or store bytes into a WeatherPayload.
func DecodePayload(raw []byte) (WeatherPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p WeatherPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode weather payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decode weather payload: not a JSON object")
	}
	return p, nil
}

// Encode marshals the payload without any retrieval annotation.
func (p WeatherPayload) Encode() ([]byte, error) {
	if _, ok := p[CacheInfoKey]; !ok {
		return json.Marshal(p)
	}
	clean := make(WeatherPayload, len(p))
	for k, v := range p {
		if k != CacheInfoKey {
			clean[k] = v
		}
	}
	return json.Marshal(clean)
}

// Annotate sets the _cache_info field and returns the payload.
func (p WeatherPayload) Annotate(info CacheInfo) WeatherPayload {
	p[CacheInfoKey] = info
	return p
}

// CacheInfo describes how a payload was retrieved.
type CacheInfo struct {
	Cached              bool      `json:"cached"`
	SavedToCache        *bool     `json:"saved_to_cache,omitempty"`
	DatabaseUnavailable bool      `json:"database_unavailable,omitempty"`
	CacheError          string    `json:"cache_error,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// CacheEntry is one stored payload per city.
type CacheEntry struct {
	City      string
	Payload   WeatherPayload
	UpdatedAt time.Time
}

// FreshAt reports whether the entry is younger than window at now.
func (e CacheEntry) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(e.UpdatedAt) < window
}

// StatusError is the code/message pair recorded by a failed probe.
type StatusError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectivityStatus is the latest known reachability of the cache store.
type ConnectivityStatus struct {
	Connected     bool         `json:"connected"`
	Error         *StatusError `json:"error"`
	LastTest      *time.Time   `json:"lastTest"`
	ServerVersion string       `json:"version,omitempty"`
	Backend       string       `json:"backend,omitempty"`
}
