package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/michalholes/audiomason2-sub000/internal/jail"
	"github.com/michalholes/audiomason2-sub000/internal/jobstore"
)

// runAudioProcessing re-encodes every mp3 under a staged or in-place
// target to a fixed bitrate, optionally loudness-normalized, in place.
// Only .mp3 members are touched -- other audio formats are left alone
// and noted as a warning, matching the original's conservative scope
// for this phase-2-only feature.
func (e *Engine) runAudioProcessing(ctx context.Context, targetRoot jail.RootName, targetRel, unitType string, mode jobstore.SourceHandlingMode, ap map[string]any, opts *jobstore.TransitionOpts, cancelled func() bool) error {
	enabled, _ := ap["enabled"].(bool)
	confirmed, _ := ap["confirmed"].(bool)
	if !enabled || !confirmed {
		return nil
	}

	bitrateKbps := 96
	if v, ok := asInt(ap["bitrate_kbps"]); ok && v > 0 {
		bitrateKbps = v
	}
	bitrateMode := "cbr"
	if v, ok := ap["bitrate_mode"].(string); ok && v != "" {
		bitrateMode = strings.ToLower(v)
	}
	loudnorm, _ := ap["loudnorm"].(bool)

	audioFiles, err := e.collectAudioFiles(ctx, targetRoot, targetRel, unitType, mode)
	if err != nil {
		return err
	}

	for _, rel := range audioFiles {
		if cancelled() {
			return nil
		}
		ext := extOf(rel)
		if ext != ".mp3" {
			opts.Warnings = append(opts.Warnings, "audio_processing skip ext="+ext+" rel="+rel)
			continue
		}
		if err := e.reencodeInPlace(ctx, targetRoot, rel, bitrateKbps, bitrateMode, loudnorm); err != nil {
			return fmt.Errorf("audio_processing rel=%s: %w", rel, err)
		}
	}
	return nil
}

// collectAudioFiles builds the deterministic, deduplicated, sorted list
// of audio-extension members a unit's audio processing pass should
// touch. A loose file unit staged into its own folder is searched the
// same way a directory unit is; a file unit left in place is checked
// directly against its own extension.
func (e *Engine) collectAudioFiles(ctx context.Context, targetRoot jail.RootName, targetRel, unitType string, mode jobstore.SourceHandlingMode) ([]string, error) {
	var files []string
	if unitType == "file" && mode != jobstore.ModeStage {
		if audioExt[extOf(targetRel)] {
			files = append(files, targetRel)
		}
		return files, nil
	}

	entries, err := e.fs.List(ctx, targetRoot, targetRel, true)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, en := range entries {
		if en.IsDir || !audioExt[extOf(en.RelPath)] {
			continue
		}
		if !seen[en.RelPath] {
			seen[en.RelPath] = true
			files = append(files, en.RelPath)
		}
	}
	sort.Strings(files)
	return files, nil
}

// reencodeInPlace shells out to ffmpeg to re-encode root/rel into a
// sibling temp file, then atomically replaces the original. ffmpeg
// needs real filesystem paths for its own I/O, so this is the one place
// the runner resolves an absolute path instead of going through
// jail.FileService's Open*/Copy surface.
func (e *Engine) reencodeInPlace(ctx context.Context, root jail.RootName, rel string, bitrateKbps int, bitrateMode string, loudnorm bool) error {
	abs, err := e.fs.Resolve(ctx, root, rel)
	if err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(abs), safeTempName(rel))
	defer os.Remove(tmp)

	if err := ffmpegReencodeMP3(ctx, abs, tmp, bitrateKbps, bitrateMode, loudnorm); err != nil {
		return err
	}
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("ffmpeg did not create output: %w", err)
	}
	return os.Rename(tmp, abs)
}

func ffmpegReencodeMP3(ctx context.Context, src, dst string, bitrateKbps int, bitrateMode string, loudnorm bool) error {
	bitrate := strconv.Itoa(bitrateKbps) + "k"
	args := []string{"-nostdin", "-hide_banner", "-y", "-i", src, "-vn", "-map_metadata", "0"}
	if loudnorm {
		args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
	}
	args = append(args, "-codec:a", "libmp3lame")
	if bitrateMode == "vbr" {
		args = append(args, "-b:a", bitrate, "-q:a", "4")
	} else {
		args = append(args, "-b:a", bitrate, "-minrate", bitrate, "-maxrate", bitrate, "-bufsize", "192k")
	}
	args = append(args, "-loglevel", "error", dst)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func safeTempName(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	short := hex.EncodeToString(sum[:])[:12]
	base := rel
	if i := lastSlash(base); i >= 0 {
		base = base[i+1:]
	}
	stem := fileStem(base)
	return stem + ".am2tmp." + short + ".mp3"
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}
