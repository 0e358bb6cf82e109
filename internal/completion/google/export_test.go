// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"github.com/sigil-dev/chatrelay/internal/completion"
	"google.golang.org/genai"
)

// ResponseText exposes responseText for white-box testing.
var ResponseText = responseText

// BuildConfig exposes buildConfig for white-box testing.
var BuildConfig = func(opts completion.Options) *genai.GenerateContentConfig {
	return buildConfig(opts)
}

// Classify exposes classify for white-box testing.
var Classify = (&Client{}).classify
