package main

import (
	"fmt"

	"github.com/flyingcircusio/backy/internal/blog"
	"github.com/flyingcircusio/backy/internal/config"
	"github.com/flyingcircusio/backy/internal/source"
)

// buildSource resolves a job's configured source stanza into a concrete
// internal/source adapter (spec.md §4.4). The "virtualized" type wraps
// another spec, per SPEC_FULL.md's freeze/thaw expansion.
func buildSource(spec config.SourceSpec, log *blog.Logger) (source.Source, error) {
	switch spec.Type {
	case "file":
		path, err := stringField(spec.Fields, "path")
		if err != nil {
			return nil, err
		}
		trackChanges, _ := spec.Fields["track-changes"].(bool)
		return &source.File{Path: path, TrackChanges: trackChanges}, nil

	case "rbd":
		pool, err := stringField(spec.Fields, "pool")
		if err != nil {
			return nil, err
		}
		image, err := stringField(spec.Fields, "image")
		if err != nil {
			return nil, err
		}
		return &source.RBD{Pool: pool, Image: image, Log: log}, nil

	case "virtualized":
		innerRaw, ok := spec.Fields["source"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("virtualized source requires a nested source stanza")
		}
		innerType, _ := innerRaw["type"].(string)
		inner, err := buildSource(config.SourceSpec{Type: innerType, Fields: innerRaw}, log)
		if err != nil {
			return nil, err
		}
		freeze := stringSliceField(spec.Fields, "freeze-command")
		thaw := stringSliceField(spec.Fields, "thaw-command")
		return &source.Virtualized{Source: inner, FreezeCmd: freeze, ThawCmd: thaw, Log: log}, nil

	default:
		return nil, fmt.Errorf("unknown source type %q", spec.Type)
	}
}

func stringField(fields map[string]interface{}, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("source: missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("source: field %q must be a string", key)
	}
	return s, nil
}

func stringSliceField(fields map[string]interface{}, key string) []string {
	raw, ok := fields[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
