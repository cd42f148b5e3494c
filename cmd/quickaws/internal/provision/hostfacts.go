// Copyright (C) 2025 QuickAWS Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package provision

import (
	"context"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"
)

// unknownValue marks host facts that could not be determined. The run
// proceeds; the operator substitutes the value when reading the report.
const unknownValue = "UNKNOWN"

// FactsSource supplies the host facts consumed by synthesis.
type FactsSource interface {
	Facts(ctx context.Context) HostFacts
}

// ec2MetadataURL is the instance metadata endpoint the original
// provisioner targeted; it answers on EC2 in single-digit milliseconds
// and not at all anywhere else, hence the short timeout.
const (
	ec2MetadataURL  = "http://169.254.169.254/latest/meta-data/public-ipv4"
	fallbackIPURL   = "https://ifconfig.co/ip"
	metadataTimeout = 2 * time.Second
	maxIPBodyBytes  = 64
)

// MetadataFactsSource detects the public IP via EC2 instance metadata
// with a generic echo-service fallback, plus hostname and architecture.
// Detection never fails a run: undeterminable facts become "UNKNOWN".
type MetadataFactsSource struct {
	client      *http.Client
	metadataURL string
	fallbackURL string
}

// NewMetadataFactsSource returns the production facts source.
func NewMetadataFactsSource() *MetadataFactsSource {
	return &MetadataFactsSource{
		client:      &http.Client{Timeout: metadataTimeout},
		metadataURL: ec2MetadataURL,
		fallbackURL: fallbackIPURL,
	}
}

// Facts gathers public IP, hostname, and CPU architecture.
func (s *MetadataFactsSource) Facts(ctx context.Context) HostFacts {
	facts := HostFacts{
		PublicIP: unknownValue,
		Hostname: unknownValue,
		Arch:     runtime.GOARCH,
	}

	if ip := s.fetchIP(ctx, s.metadataURL); ip != "" {
		facts.PublicIP = ip
	} else if ip := s.fetchIP(ctx, s.fallbackURL); ip != "" {
		facts.PublicIP = ip
	}

	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		facts.Hostname = hostname
	}
	return facts
}

func (s *MetadataFactsSource) fetchIP(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIPBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

// StaticFactsSource returns fixed facts; used by tests and by callers
// that already know the host's address.
type StaticFactsSource struct {
	F HostFacts
}

// Facts returns the fixed facts.
func (s StaticFactsSource) Facts(_ context.Context) HostFacts {
	return s.F
}

var (
	_ FactsSource = (*MetadataFactsSource)(nil)
	_ FactsSource = StaticFactsSource{}
)
