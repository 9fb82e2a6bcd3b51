package core

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/ecpack/internal/config"
	"github.com/JonMunkholm/ecpack/internal/transform"
)

// Mode selects which pipeline handles an upload.
type Mode string

const (
	ModeChunk        Mode = "chunk"
	ModeChunk500     Mode = "chunk500"
	ModeChunk250     Mode = "chunk250"
	ModePassport     Mode = "passport"
	ModeReplacePinfl Mode = "replace_pinfl"
)

// chunk250 files are numbered in steps of 250 regardless of the configured
// chunk size.
const chunk250Stride = 250

// ArtifactPrefix starts every chunk file and archive name.
const ArtifactPrefix = "AllPackageEC_"

var allModes = []Mode{ModeChunk, ModeChunk500, ModeChunk250, ModePassport, ModeReplacePinfl}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allModes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

// IsChunk reports whether the mode splits a register into template chunks.
func (m Mode) IsChunk() bool {
	return m == ModeChunk || m == ModeChunk500 || m == ModeChunk250
}

// ChunkPlan is the chunk size and file naming of a chunk mode.
type ChunkPlan struct {
	Size   int
	Naming transform.Naming
}

// ChunkPlan returns the sizing for a chunk mode.
func (m Mode) ChunkPlan(cfg config.JobsConfig) (ChunkPlan, error) {
	naming := transform.Naming{Prefix: ArtifactPrefix}
	switch m {
	case ModeChunk:
		return ChunkPlan{Size: cfg.ChunkSize, Naming: naming}, nil
	case ModeChunk500:
		return ChunkPlan{Size: cfg.ChunkSize500, Naming: naming}, nil
	case ModeChunk250:
		naming.Stride = chunk250Stride
		return ChunkPlan{Size: cfg.ChunkSize250, Naming: naming}, nil
	default:
		return ChunkPlan{}, fmt.Errorf("unknown mode for chunk job: %s", m)
	}
}

// ModeInfo describes a mode for clients.
type ModeInfo struct {
	Mode      Mode   `json:"mode"`
	Label     string `json:"label"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	Uploads   int    `json:"uploads"`
}

// Modes lists every mode with its effective chunk size.
func Modes(cfg config.JobsConfig) []ModeInfo {
	out := make([]ModeInfo, 0, len(allModes))
	for _, m := range allModes {
		info := ModeInfo{Mode: m, Uploads: 1}
		switch m {
		case ModePassport:
			info.Label = "Passport macro"
		case ModeReplacePinfl:
			info.Label = "PINFL replacement"
			info.Uploads = 2
		default:
			plan, _ := m.ChunkPlan(cfg)
			info.ChunkSize = plan.Size
			info.Label = fmt.Sprintf("Split into parts (%d)", plan.Size)
		}
		out = append(out, info)
	}
	return out
}
