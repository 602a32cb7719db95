package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTarget(t *testing.T) {
	tests := []struct {
		path, deviceID, want string
	}{
		{"/devices", "", "/api/devices"},
		{"/api/devices", "", "/api/devices"},
		{"/devices", "d2", "/api/proxy/devices?deviceId=d2"},
		{"/api/devices", "d2", "/api/proxy/devices?deviceId=d2"},
		{"/api/devices/ping", "d2", "/api/proxy/devices/ping?deviceId=d2"},
		{"/files?dir=a", "d2", "/api/proxy/files?deviceId=d2&dir=a"},
		{"/apiary", "d2", "/api/proxy/apiary?deviceId=d2"},
	}
	for _, tt := range tests {
		got, err := Target(tt.path, tt.deviceID)
		if err != nil {
			t.Fatalf("Target(%q, %q): %v", tt.path, tt.deviceID, err)
		}
		if got != tt.want {
			t.Errorf("Target(%q, %q) = %q, want %q", tt.path, tt.deviceID, got, tt.want)
		}
	}
}

func TestCall_ForwardsThroughProxyWithToken(t *testing.T) {
	var gotURI, gotAuth, gotContentType, gotMethod string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.URL.RequestURI()
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		if r.Body != nil {
			b, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(b, &gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"x"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	raw, err := c.Call(context.Background(), "/devices", CallOptions{DeviceID: "d2", Token: "T"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if gotURI != "/api/proxy/devices?deviceId=d2" {
		t.Errorf("URI = %q", gotURI)
	}
	if gotAuth != "Bearer T" {
		t.Errorf("Authorization = %q, want Bearer T", gotAuth)
	}
	if gotContentType != "application/json" || gotMethod != http.MethodGet {
		t.Errorf("content type %q method %q", gotContentType, gotMethod)
	}
	if string(raw) != `[{"id":"x"}]` {
		t.Errorf("body = %s", raw)
	}

	_, err = c.Call(context.Background(), "/api/devices", CallOptions{Method: http.MethodPost, Body: map[string]string{"name": "n"}, Token: "T"})
	if err != nil {
		t.Fatalf("local Call: %v", err)
	}
	if gotURI != "/api/devices" || gotMethod != http.MethodPost || gotBody["name"] != "n" {
		t.Errorf("local call uri=%q method=%q body=%v", gotURI, gotMethod, gotBody)
	}
}

func TestCall_RequestError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"remote message", http.StatusForbidden, `{"error":"ADDRESS_NOT_ALLOWED"}`, "ADDRESS_NOT_ALLOWED"},
		{"no body", http.StatusInternalServerError, ``, "request failed: 500"},
		{"non json", http.StatusBadRequest, `oops`, "request failed: 400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).Call(context.Background(), "/devices", CallOptions{Token: "T"})
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("err = %T %v, want *RequestError", err, err)
			}
			if reqErr.Status != tt.status || reqErr.Message != tt.wantMessage {
				t.Errorf("RequestError = %+v", reqErr)
			}
			if IsTransport(err) {
				t.Error("application error reported as transport failure")
			}
		})
	}
}

func TestCall_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil).Call(context.Background(), "/devices", CallOptions{})
	if !IsTransport(err) {
		t.Errorf("closed server err = %T %v, want *TransportError", err, err)
	}

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"device unreachable","code":"DEVICE_UNREACHABLE"}`))
	}))
	defer proxy.Close()
	_, err = NewClient(proxy.URL, nil).Call(context.Background(), "/devices", CallOptions{DeviceID: "d2"})
	if !IsTransport(err) {
		t.Fatalf("unreachable device err = %T %v, want *TransportError", err, err)
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		t.Errorf("unreachable device must not also be a RequestError: %v", err)
	}
	if !strings.Contains(err.Error(), "device unreachable") {
		t.Errorf("err = %q, want the proxy message", err.Error())
	}
}

func TestCall_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, nil).Call(ctx, "/devices", CallOptions{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}
