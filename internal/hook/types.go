// Package hook runs external programs for every published prediction.
package hook

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ManifestFile is the manifest name expected in each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
}

// Event is written as JSON to a hook's stdin.
type Event struct {
	Letter     string       `json:"letter"`
	Confidence float64      `json:"confidence"`
	Points     [][3]float64 `json:"points"`
}

// Response is read from a hook's stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}
