// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads lorachat client configuration.
//
// Sources are applied in a fixed order, each overriding the previous:
//
//  1. built-in defaults ([Default])
//  2. a .env file in the working directory, if present, which only
//     populates environment variables that are not already set
//  3. the file named by LORACHAT_CONFIG, if set: YAML, or JSON/JSONC
//     when the extension is .json or .jsonc
//  4. the LORACHAT_API_URL and LORACHAT_LOG_LEVEL environment variables
//
// The result is validated before it is returned. ${VAR} and
// ${VAR:-default} patterns in the API URL and serial port names are
// expanded after loading.
//
// Key exports:
//
//   - [Config] -- API endpoint, delivery policy, stream and poll timing
//   - [Default] -- the defaults matching the appliance's stock backend
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other lorachat packages.
package config
