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

package token

import "errors"

// Domain errors. All verification failures are typed so callers can decide
// whether to re-authenticate, re-authorize, or surface the failure; nothing
// is retried internally.
var (
	ErrInvalidSignature    = errors.New("token signature invalid")
	ErrUnknownIssuer       = errors.New("token issuer unknown")
	ErrExpired             = errors.New("token expired")
	ErrModuleMismatch      = errors.New("token not valid for requested module")
	ErrRevoked             = errors.New("token revoked")
	ErrRefreshNotPermitted = errors.New("token refresh not permitted")
)
