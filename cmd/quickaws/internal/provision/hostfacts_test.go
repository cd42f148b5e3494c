// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

func newTestFactsSource(metadataURL, fallbackURL string) *MetadataFactsSource {
	return &MetadataFactsSource{
		client:      &http.Client{Timeout: 500 * time.Millisecond},
		metadataURL: metadataURL,
		fallbackURL: fallbackURL,
	}
}

func TestMetadataFactsSource(t *testing.T) {
	t.Run("uses instance metadata when available", func(t *testing.T) {
		metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("203.0.113.50\n"))
		}))
		defer metadata.Close()

		src := newTestFactsSource(metadata.URL, "")
		facts := src.Facts(context.Background())
		if facts.PublicIP != "203.0.113.50" {
			t.Errorf("PublicIP = %q", facts.PublicIP)
		}
		if facts.Arch != runtime.GOARCH {
			t.Errorf("Arch = %q, want %q", facts.Arch, runtime.GOARCH)
		}
	})

	t.Run("falls back when metadata is unreachable", func(t *testing.T) {
		fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("198.51.100.7"))
		}))
		defer fallback.Close()

		src := newTestFactsSource("http://127.0.0.1:1", fallback.URL)
		facts := src.Facts(context.Background())
		if facts.PublicIP != "198.51.100.7" {
			t.Errorf("PublicIP = %q", facts.PublicIP)
		}
	})

	t.Run("falls back on non-200 metadata answer", func(t *testing.T) {
		metadata := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer metadata.Close()
		fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("198.51.100.8"))
		}))
		defer fallback.Close()

		src := newTestFactsSource(metadata.URL, fallback.URL)
		facts := src.Facts(context.Background())
		if facts.PublicIP != "198.51.100.8" {
			t.Errorf("PublicIP = %q", facts.PublicIP)
		}
	})

	t.Run("reports UNKNOWN when every source fails", func(t *testing.T) {
		src := newTestFactsSource("http://127.0.0.1:1", "http://127.0.0.1:1")
		facts := src.Facts(context.Background())
		if facts.PublicIP != "UNKNOWN" {
			t.Errorf("PublicIP = %q, want UNKNOWN", facts.PublicIP)
		}
	})
}

func TestStaticFactsSource(t *testing.T) {
	want := HostFacts{PublicIP: "192.0.2.1", Hostname: "fixed", Arch: "arm64"}
	got := StaticFactsSource{F: want}.Facts(context.Background())
	if got != want {
		t.Errorf("Facts = %+v, want %+v", got, want)
	}
}
