// Copyright 2026 The PlantOps Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import "go.opentelemetry.io/otel/metric"

// IdentityMetrics bundles the service-level instruments recorded by the
// HTTP transport.
type IdentityMetrics struct {
	TokensIssued     metric.Int64Counter
	TokensRefreshed  metric.Int64Counter
	TokensRevoked    metric.Int64Counter
	VerifyFailures   metric.Int64Counter
	AuthorizeDenials metric.Int64Counter
	RequestDuration  metric.Float64Histogram
}

// NewIdentityMetrics creates the instrument set on the given meter.
func NewIdentityMetrics(m *Meter) (*IdentityMetrics, error) {
	issued, err := m.CreateCounter("identity.tokens.issued", "Number of module access tokens issued")
	if err != nil {
		return nil, err
	}
	refreshed, err := m.CreateCounter("identity.tokens.refreshed", "Number of module access tokens refreshed")
	if err != nil {
		return nil, err
	}
	revoked, err := m.CreateCounter("identity.tokens.revoked", "Number of module access tokens revoked")
	if err != nil {
		return nil, err
	}
	verifyFailures, err := m.CreateCounter("identity.tokens.verify_failures", "Number of failed token verifications")
	if err != nil {
		return nil, err
	}
	denials, err := m.CreateCounter("identity.authorize.denials", "Number of denied authorization requests")
	if err != nil {
		return nil, err
	}
	duration, err := m.CreateHistogram("identity.request.duration", "HTTP request duration", "ms")
	if err != nil {
		return nil, err
	}

	return &IdentityMetrics{
		TokensIssued:     issued,
		TokensRefreshed:  refreshed,
		TokensRevoked:    revoked,
		VerifyFailures:   verifyFailures,
		AuthorizeDenials: denials,
		RequestDuration:  duration,
	}, nil
}
