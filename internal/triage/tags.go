package triage

import (
	"strings"

	"github.com/mikey/mail-triage/internal/core"
)

// maxSecondaryTags caps how many runner-up labels are tagged
const maxSecondaryTags = 2

// FormatTags renders a classification as prefixed tags: one folder tag, a
// label tag for the primary label unless it is Unknown, then up to two
// runner-up labels in confidence order.
func FormatTags(prefix string, c core.Classified) []string {
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = DefaultTagPrefix
	}

	var tags []string
	seen := make(map[string]bool)
	add := func(tag string) {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	if c.PrimaryFolder != "" {
		add(prefix + ":Folder:" + c.PrimaryFolder)
	}
	if c.PrimaryLabel != "" && c.PrimaryLabel != core.UnknownLabel {
		add(prefix + ":Label:" + c.PrimaryLabel)
	}

	secondary := 0
	for _, d := range c.Detections {
		if secondary == maxSecondaryTags {
			break
		}
		if d.Label == c.PrimaryLabel {
			continue
		}
		add(prefix + ":Label:" + d.Label)
		secondary++
	}
	return tags
}

// DiffTags compares the tags a message carries with the desired set. Only
// tags in the prefix namespace are ever removed. Applying the same desired
// set twice yields empty diffs the second time.
func DiffTags(prefix string, existing, desired []string) (toAdd, toRemove []string) {
	namespace := prefix + ":"

	have := make(map[string]bool, len(existing))
	for _, tag := range existing {
		have[tag] = true
	}
	want := make(map[string]bool, len(desired))
	for _, tag := range desired {
		want[tag] = true
	}

	for _, tag := range desired {
		if !have[tag] {
			toAdd = append(toAdd, tag)
			have[tag] = true
		}
	}
	for _, tag := range existing {
		if strings.HasPrefix(tag, namespace) && !want[tag] {
			toRemove = append(toRemove, tag)
			want[tag] = true
		}
	}
	return toAdd, toRemove
}
