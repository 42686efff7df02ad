package manifest

import (
	"fmt"
	"strings"

	"github.com/agentx-labs/forksync/internal/branding"
)

// Overlay stamps the brand's identity onto doc. It returns false and leaves
// doc untouched when displayName already carries the brand marker, which
// makes repeated application a no-op.
func Overlay(doc *Document, b branding.Brand) bool {
	if name, ok := doc.GetString("displayName"); ok && b.HasMarker(name) {
		return false
	}

	doc.Set("displayName", b.DisplayName)

	desc, _ := doc.GetString("description")
	switch {
	case desc == "":
		desc = b.Description
	case b.UpstreamDisplayName != "":
		desc = strings.ReplaceAll(desc, b.UpstreamDisplayName, b.DisplayName)
	}
	if desc != "" {
		doc.Set("description", desc)
	}

	if b.Icon != "" {
		doc.Set("icon", b.Icon)
	}
	return true
}

// ApplyOverlayFile applies Overlay to the manifest at path and rewrites the
// file only when something changed.
func ApplyOverlayFile(path string, b branding.Brand) (bool, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return false, err
	}
	if !Overlay(doc, b) {
		return false, nil
	}
	if err := WriteFile(path, doc); err != nil {
		return false, fmt.Errorf("applying brand overlay: %w", err)
	}
	return true, nil
}

// HasBrandMarker reports whether the manifest at path is already branded.
func HasBrandMarker(path string, b branding.Brand) (bool, error) {
	doc, err := ReadFile(path)
	if err != nil {
		return false, err
	}
	name, _ := doc.GetString("displayName")
	return b.HasMarker(name), nil
}

// EngineConstraint returns engines[name] (e.g. "node", "vscode") or "".
func EngineConstraint(doc *Document, name string) string {
	engines, ok := doc.Object("engines")
	if !ok {
		return ""
	}
	s, _ := engines.GetString(name)
	return s
}
